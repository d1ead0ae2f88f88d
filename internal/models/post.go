package models

import "time"

// Post is a titled entry with an image, optionally filed under a community.
type Post struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	ImageURL    string     `json:"image_url"`
	AvatarURL   *string    `json:"avatar_url"`
	CommunityID *int64     `gorm:"index" json:"community_id"`
	Community   *Community `gorm:"foreignKey:CommunityID" json:"communities,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	// LikeCount is not persisted; computed at query time
	LikeCount int `gorm:"->;-:migration" json:"like_count"`
	// CommentCount is not persisted; computed at query time
	CommentCount int `gorm:"->;-:migration" json:"comment_count"`
}

// TableName specifies the table name for GORM.
func (Post) TableName() string {
	return "posts"
}

// NewPost is the insert payload for a post row.
type NewPost struct {
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	ImageURL    string  `json:"image_url"`
	AvatarURL   *string `json:"avatar_url"`
	CommunityID *int64  `json:"community_id"`
}
