package model

import (
	"time"

	"gorm.io/datatypes"
)

// Application status values.
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// ClanApplication is a pending request to join an application-policy clan.
// PendingFlag is set while status is pending and NULLed on resolution; the
// composite unique index then only collides for live applications, which is
// how "one pending application per (clan, user)" is enforced portably on
// both SQLite and MySQL (neither supports partial unique indexes via GORM).
type ClanApplication struct {
	ID          int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID      int64             `gorm:"not null;uniqueIndex:idx_clan_applications_pending" json:"clan_id"`
	UserID      int64             `gorm:"not null;uniqueIndex:idx_clan_applications_pending" json:"user_id"`
	Answers     datatypes.JSONMap `json:"answers"`
	Status      string            `gorm:"size:16;default:'pending'" json:"status"`
	PendingFlag *bool             `gorm:"uniqueIndex:idx_clan_applications_pending" json:"-"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
}
