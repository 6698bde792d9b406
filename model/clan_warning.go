package model

import "time"

// ClanWarning is a moderation audit entry against a clan member. Warnings
// survive independently of membership state.
type ClanWarning struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID    int64     `gorm:"not null;index:idx_clan_warnings_clan" json:"clan_id"`
	ActorID   int64     `gorm:"not null" json:"actor_id"`
	TargetID  int64     `gorm:"not null;index:idx_clan_warnings_target" json:"target_id"`
	Reason    string    `gorm:"type:text;not null" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
