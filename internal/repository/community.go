package repository

import (
	"context"

	"gorm.io/gorm"

	"nexora/internal/models"
)

// CommunityRepository defines the interface for community data operations
type CommunityRepository interface {
	List(ctx context.Context) ([]models.Community, error)
	GetByID(ctx context.Context, id int64) (*models.Community, error)
	Create(ctx context.Context, in *models.NewCommunity) (*models.Community, error)
}

// communityRepository implements CommunityRepository on GORM
type communityRepository struct {
	db *gorm.DB
}

// NewCommunityRepository creates a GORM community repository
func NewCommunityRepository(db *gorm.DB) CommunityRepository {
	return &communityRepository{db: db}
}

func (r *communityRepository) List(ctx context.Context) ([]models.Community, error) {
	communities := []models.Community{}
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&communities).Error
	return communities, translate(err)
}

func (r *communityRepository) GetByID(ctx context.Context, id int64) (*models.Community, error) {
	var community models.Community
	if err := r.db.WithContext(ctx).First(&community, id).Error; err != nil {
		return nil, translate(err)
	}
	return &community, nil
}

func (r *communityRepository) Create(ctx context.Context, in *models.NewCommunity) (*models.Community, error) {
	community := models.Community{Name: in.Name, Description: in.Description}
	if err := r.db.WithContext(ctx).Create(&community).Error; err != nil {
		return nil, translate(err)
	}
	return &community, nil
}
