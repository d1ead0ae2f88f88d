package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/query"
	"nexora/internal/repository"
)

// CommunityService handles community listing and creation.
type CommunityService struct {
	communities repository.CommunityRepository
	cache       *query.Client
	logger      *slog.Logger
}

// NewCommunityService creates a new community service.
func NewCommunityService(communities repository.CommunityRepository, cache *query.Client) *CommunityService {
	return &CommunityService{
		communities: communities,
		cache:       cache,
		logger:      observability.Component("community_service"),
	}
}

// CreateCommunityInput represents input for creating a community.
type CreateCommunityInput struct {
	Name        string
	Description string
}

// ListCommunities returns all communities, newest first.
func (s *CommunityService) ListCommunities(ctx context.Context) ([]models.Community, error) {
	list, err := query.Fetch(ctx, s.cache, CommunitiesKey(), s.communities.List)
	if err != nil {
		return nil, mapError(err, "Communities", "")
	}
	return list, nil
}

// GetCommunity returns the community or nil when no such community exists.
func (s *CommunityService) GetCommunity(ctx context.Context, id int64) (*models.Community, error) {
	community, err := query.Fetch(ctx, s.cache, CommunityKey(id), func(ctx context.Context) (*models.Community, error) {
		c, err := s.communities.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return c, err
	})
	if err != nil {
		return nil, mapError(err, "Community", id)
	}
	return community, nil
}

// CreateCommunity inserts a community and invalidates the community list and
// any cached lookup of its id.
func (s *CommunityService) CreateCommunity(ctx context.Context, in CreateCommunityInput) (*models.Community, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Community name is required")
	}
	if len(name) > 100 {
		return nil, models.NewValidationError("Community name must be at most 100 characters")
	}

	community, err := s.communities.Create(ctx, &models.NewCommunity{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return nil, mapError(err, "Community", name)
	}

	s.cache.Invalidate(ctx, CommunitiesKey())
	s.cache.Invalidate(ctx, CommunityKey(community.ID))
	s.logger.InfoContext(ctx, "community created", slog.Int64("community_id", community.ID))
	return community, nil
}
