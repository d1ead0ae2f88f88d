package service

import (
	"context"
	"errors"
	"log/slog"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/query"
	"nexora/internal/repository"
)

// LikeService handles the like button of a post.
type LikeService struct {
	likes  repository.LikeRepository
	cache  *query.Client
	logger *slog.Logger
}

// NewLikeService creates a new like service.
func NewLikeService(likes repository.LikeRepository, cache *query.Client) *LikeService {
	return &LikeService{
		likes:  likes,
		cache:  cache,
		logger: observability.Component("like_service"),
	}
}

func likeState(postID int64, likes []models.Like, user *models.User) *models.LikeState {
	state := &models.LikeState{PostID: postID, Count: len(likes)}
	if user == nil {
		return state
	}
	for _, l := range likes {
		if l.UserID == user.ID {
			state.Liked = true
			break
		}
	}
	return state
}

// State returns the like count of a post and whether user liked it.
// The like list is cached per post and shared between users.
func (s *LikeService) State(ctx context.Context, postID int64, user *models.User) (*models.LikeState, error) {
	likes, err := query.Fetch(ctx, s.cache, LikesKey(postID), func(ctx context.Context) ([]models.Like, error) {
		return s.likes.ListByPost(ctx, postID)
	})
	if err != nil {
		return nil, mapError(err, "Post", postID)
	}
	return likeState(postID, likes, user), nil
}

// Toggle likes the post, or removes the like when user already liked it.
func (s *LikeService) Toggle(ctx context.Context, postID int64, user *models.User) (*models.LikeState, error) {
	if user == nil {
		return nil, models.NewUnauthorizedError("You must be signed in to like posts")
	}

	// Decide from the source, not the shared cache entry.
	current, err := s.likes.ListByPost(ctx, postID)
	if err != nil {
		return nil, mapError(err, "Post", postID)
	}

	if likeState(postID, current, user).Liked {
		err = s.likes.Delete(ctx, postID, user.ID)
	} else {
		err = s.likes.Create(ctx, postID, user.ID)
		if errors.Is(err, repository.ErrDuplicate) {
			// A concurrent toggle already inserted it.
			err = nil
		}
	}
	if err != nil {
		return nil, mapError(err, "Post", postID)
	}

	s.cache.Invalidate(ctx, LikesKey(postID))
	s.cache.Invalidate(ctx, PostsKey())
	s.logger.DebugContext(ctx, "like toggled", slog.Int64("post_id", postID))

	return s.State(ctx, postID, user)
}
