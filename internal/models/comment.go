package models

import "time"

// Comment belongs to a post and optionally replies to another comment.
type Comment struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	PostID          int64     `gorm:"not null;index" json:"post_id"`
	UserID          string    `gorm:"size:64;not null" json:"user_id"`
	Author          string    `gorm:"size:120" json:"author"`
	AvatarURL       *string   `json:"avatar_url"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	ParentCommentID *int64    `gorm:"index" json:"parent_comment_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Comment) TableName() string {
	return "comments"
}

// NewComment is the insert payload for a comment.
type NewComment struct {
	PostID          int64   `json:"post_id"`
	UserID          string  `json:"user_id"`
	Author          string  `json:"author"`
	AvatarURL       *string `json:"avatar_url"`
	Content         string  `json:"content"`
	ParentCommentID *int64  `json:"parent_comment_id"`
}

// CommentNode is a comment with its replies, used to render a thread.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}
