package model

import "time"

// Message is a direct message between two users. Rows are never hard
// deleted; IsDeleted hides the content while keeping reply threads intact.
type Message struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64      `gorm:"not null;index:idx_messages_pair" json:"sender_id"`
	ReceiverID int64      `gorm:"not null;index:idx_messages_pair" json:"receiver_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	ParentID   *int64     `json:"parent_id"`
	ViewedAt   *time.Time `json:"viewed_at"`
	IsDeleted  bool       `gorm:"default:false" json:"is_deleted"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
