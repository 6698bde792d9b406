package model

import "time"

// Friendship status values.
const (
	FriendshipPending  = 0
	FriendshipAccepted = 1
	FriendshipBlocked  = 2
)

// Friendship represents a friend/block relationship between two users.
// Rows are directional: RequesterID initiated, ReceiverID answers.
type Friendship struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID int64     `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"requester_id"`
	ReceiverID  int64     `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"receiver_id"`
	Status      int       `gorm:"default:0" json:"status"` // 0=pending,1=friend,2=blocked
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
