package repository

import (
	"context"

	"gorm.io/gorm"

	"nexora/internal/models"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	// ListWithCounts returns every post, newest first, with like and comment counts.
	ListWithCounts(ctx context.Context) ([]models.Post, error)
	// ListByCommunity returns a community's posts, newest first, with the community name embedded.
	ListByCommunity(ctx context.Context, communityID int64) ([]models.Post, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, in *models.NewPost) (*models.Post, error)
}

// postRepository implements PostRepository on GORM
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a GORM post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

const postCountsSelect = `posts.*,
	(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS like_count,
	(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count`

func (r *postRepository) ListWithCounts(ctx context.Context) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(postCountsSelect).
		Order("posts.created_at DESC").
		Find(&posts).Error
	return posts, translate(err)
}

func (r *postRepository) ListByCommunity(ctx context.Context, communityID int64) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.db.WithContext(ctx).
		Preload("Community").
		Where("community_id = ?", communityID).
		Order("created_at DESC").
		Find(&posts).Error
	return posts, translate(err)
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, in *models.NewPost) (*models.Post, error) {
	post := models.Post{
		Title:       in.Title,
		Content:     in.Content,
		ImageURL:    in.ImageURL,
		AvatarURL:   in.AvatarURL,
		CommunityID: in.CommunityID,
	}
	if err := r.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}
