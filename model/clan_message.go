package model

import "time"

// Clan chat channels.
const (
	ChannelGeneral = "general"
	ChannelAdmin   = "admin" // requires the canAccessAdminChat toggle
)

// ClanMessage is one message in a clan's chat. AuthorID is nulled when a
// message is moderated away so the row survives for reply threading.
type ClanMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID    int64     `gorm:"not null;index:idx_clan_messages_clan" json:"clan_id"`
	AuthorID  *int64    `json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Channel   string    `gorm:"size:16;default:'general'" json:"channel"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
