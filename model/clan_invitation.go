package model

import "time"

// Invitation status values.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationExpired  = "expired"
)

// ClanInvitation is a time-boxed offer for a specific user to join a clan.
// PendingFlag uses the same NULL-on-resolve trick as ClanApplication to
// enforce one active invitation per (clan, invitee).
type ClanInvitation struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID      int64     `gorm:"not null;uniqueIndex:idx_clan_invitations_pending" json:"clan_id"`
	InviterID   int64     `gorm:"not null" json:"inviter_id"`
	InviteeID   int64     `gorm:"not null;uniqueIndex:idx_clan_invitations_pending" json:"invitee_id"`
	Status      string    `gorm:"size:16;default:'pending'" json:"status"`
	PendingFlag *bool     `gorm:"uniqueIndex:idx_clan_invitations_pending" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
}

// Expired reports whether the invitation's TTL has elapsed.
func (i *ClanInvitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
