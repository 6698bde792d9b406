package model

import "time"

// ClanReview is a rating left by a current or former member. One per
// (clan, author).
type ClanReview struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID    int64     `gorm:"not null;uniqueIndex:idx_clan_reviews_author" json:"clan_id"`
	AuthorID  int64     `gorm:"not null;uniqueIndex:idx_clan_reviews_author" json:"author_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
