package model

import "time"

// ClanJoinType is a clan's policy for admitting new members.
type ClanJoinType = string

const (
	JoinTypeOpen        ClanJoinType = "open"        // self-serve join
	JoinTypeApplication ClanJoinType = "application" // vetted via application form
	JoinTypeClosed      ClanJoinType = "closed"      // invite-only
)

// ApplicationField is one question in a clan's application form.
type ApplicationField struct {
	Label string `json:"label" binding:"required,max=100"`
	Type  string `json:"type" binding:"required,oneof=text textarea number"`
}

// Clan is a named, tagged community owned by exactly one user.
type Clan struct {
	ID                  int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                string             `gorm:"size:100;not null" json:"name"`
	Tag                 string             `gorm:"uniqueIndex;size:50;not null" json:"tag"`
	Description         string             `gorm:"type:text" json:"description"`
	CardImageURL        string             `gorm:"size:255" json:"card_image_url"`
	CardIconURL         string             `gorm:"size:255" json:"card_icon_url"`
	CardColor           string             `gorm:"size:7;default:'#32383E'" json:"card_color"`
	TextColor           string             `gorm:"size:7;default:'#F0F4F8'" json:"text_color"`
	JoinType            ClanJoinType       `gorm:"size:16;default:'closed'" json:"join_type"`
	ApplicationTemplate []ApplicationField `gorm:"serializer:json" json:"application_template"`
	OwnerID             int64              `gorm:"not null;index" json:"owner_id"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}
