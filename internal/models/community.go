package models

import "time"

// Community is a board that groups posts.
type Community struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:120;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Community) TableName() string {
	return "communities"
}

// NewCommunity is the insert payload for a community.
type NewCommunity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
