package repository

import (
	"context"

	"gorm.io/gorm"

	"nexora/internal/models"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	// ListByPost returns a post's comments, oldest first.
	ListByPost(ctx context.Context, postID int64) ([]models.Comment, error)
	Create(ctx context.Context, in *models.NewComment) (*models.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a GORM comment repository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) ListByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	return comments, translate(err)
}

func (r *commentRepository) Create(ctx context.Context, in *models.NewComment) (*models.Comment, error) {
	comment := models.Comment{
		PostID:          in.PostID,
		UserID:          in.UserID,
		Author:          in.Author,
		AvatarURL:       in.AvatarURL,
		Content:         in.Content,
		ParentCommentID: in.ParentCommentID,
	}
	if err := r.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, translate(err)
	}
	return &comment, nil
}
