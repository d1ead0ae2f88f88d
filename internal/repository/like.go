package repository

import (
	"context"

	"gorm.io/gorm"

	"nexora/internal/models"
)

// LikeRepository defines the interface for like data operations
type LikeRepository interface {
	ListByPost(ctx context.Context, postID int64) ([]models.Like, error)
	// Create fails with ErrDuplicate when the user already likes the post.
	Create(ctx context.Context, postID int64, userID string) error
	Delete(ctx context.Context, postID int64, userID string) error
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a GORM like repository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) ListByPost(ctx context.Context, postID int64) ([]models.Like, error) {
	likes := []models.Like{}
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("id ASC").Find(&likes).Error
	return likes, translate(err)
}

func (r *likeRepository) Create(ctx context.Context, postID int64, userID string) error {
	like := models.Like{PostID: postID, UserID: userID}
	return translate(r.db.WithContext(ctx).Create(&like).Error)
}

func (r *likeRepository) Delete(ctx context.Context, postID int64, userID string) error {
	return translate(r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{}).Error)
}
