package models

import "time"

// Like records that a user liked a post. Unique per (post, user).
type Like struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	PostID    int64     `gorm:"not null;uniqueIndex:idx_likes_post_user" json:"post_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_likes_post_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Like) TableName() string {
	return "likes"
}

// NewLike is the insert payload for a like.
type NewLike struct {
	PostID int64  `json:"post_id"`
	UserID string `json:"user_id"`
}

// LikeState is what a like button renders.
type LikeState struct {
	PostID int64 `json:"post_id"`
	Count  int   `json:"count"`
	Liked  bool  `json:"liked"`
}
