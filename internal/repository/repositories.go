package repository

import (
	"gorm.io/gorm"

	"nexora/internal/remote"
)

// Set bundles the repositories of one backend.
type Set struct {
	Communities CommunityRepository
	Posts       PostRepository
	Comments    CommentRepository
	Likes       LikeRepository
}

// NewRESTSet returns repositories backed by the hosted rest API.
func NewRESTSet(client *remote.Client) Set {
	return Set{
		Communities: NewRESTCommunityRepository(client),
		Posts:       NewRESTPostRepository(client),
		Comments:    NewRESTCommentRepository(client),
		Likes:       NewRESTLikeRepository(client),
	}
}

// NewGormSet returns repositories backed by a direct database connection.
func NewGormSet(db *gorm.DB) Set {
	return Set{
		Communities: NewCommunityRepository(db),
		Posts:       NewPostRepository(db),
		Comments:    NewCommentRepository(db),
		Likes:       NewLikeRepository(db),
	}
}
