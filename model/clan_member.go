package model

import "time"

// ClanMember links a user to a clan through exactly one role.
// The unique index on user_id makes the database the final arbiter of the
// one-membership-per-user rule, even under concurrent join attempts.
type ClanMember struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID        int64      `gorm:"not null;index:idx_clan_members_clan" json:"clan_id"`
	UserID        int64      `gorm:"not null;uniqueIndex:idx_clan_members_user" json:"user_id"`
	RoleID        int64      `gorm:"not null" json:"role_id"`
	IsMuted       bool       `gorm:"default:false" json:"is_muted"`
	MuteExpiresAt *time.Time `json:"mute_expires_at"`
	JoinedAt      time.Time  `gorm:"autoCreateTime" json:"joined_at"`
}

// ClanMemberHistory records past and present stints in a clan. Used for
// review eligibility and the "has been here before" flag on clan pages.
type ClanMemberHistory struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID   int64      `gorm:"not null;index:idx_member_history" json:"clan_id"`
	UserID   int64      `gorm:"not null;index:idx_member_history" json:"user_id"`
	JoinedAt time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}
