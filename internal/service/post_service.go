package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/query"
	"nexora/internal/remote"
	"nexora/internal/repository"
)

// ObjectStorage is the bucket the post images live in.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, body io.Reader, contentType string) (*remote.UploadResult, error)
	PublicURL(path string) string
	Remove(ctx context.Context, paths ...string) error
}

// PostService handles post reads and the post creation flow.
type PostService struct {
	posts   repository.PostRepository
	storage ObjectStorage
	cache   *query.Client
	images  *ImageValidator
	now     func() time.Time
	logger  *slog.Logger
}

// NewPostService creates a new post service.
func NewPostService(posts repository.PostRepository, storage ObjectStorage, cache *query.Client, images *ImageValidator) *PostService {
	if images == nil {
		images = NewImageValidator(0)
	}
	return &PostService{
		posts:   posts,
		storage: storage,
		cache:   cache,
		images:  images,
		now:     time.Now,
		logger:  observability.Component("post_service"),
	}
}

// CreatePostInput represents input for creating a post.
type CreatePostInput struct {
	Title       string
	Content     string
	CommunityID *int64
	File        *UploadFile
	// Author supplies the avatar; nil for anonymous posts.
	Author *models.User
}

// ParseCommunityID reads the optional community form field. Empty means none.
func ParseCommunityID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, models.NewValidationError("Invalid community")
	}
	return &id, nil
}

// ListPosts returns all posts with like and comment counts, newest first.
func (s *PostService) ListPosts(ctx context.Context) ([]models.Post, error) {
	posts, err := query.Fetch(ctx, s.cache, PostsKey(), s.posts.ListWithCounts)
	if err != nil {
		return nil, mapError(err, "Posts", "")
	}
	return posts, nil
}

// ListCommunityPosts returns the posts of one community, newest first.
func (s *PostService) ListCommunityPosts(ctx context.Context, communityID int64) ([]models.Post, error) {
	posts, err := query.Fetch(ctx, s.cache, CommunityPostsKey(communityID), func(ctx context.Context) ([]models.Post, error) {
		return s.posts.ListByCommunity(ctx, communityID)
	})
	if err != nil {
		return nil, mapError(err, "Community", communityID)
	}
	return posts, nil
}

// GetPost returns the post or nil when no such post exists.
func (s *PostService) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	post, err := query.Fetch(ctx, s.cache, PostKey(id), func(ctx context.Context) (*models.Post, error) {
		p, err := s.posts.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return p, err
	})
	if err != nil {
		return nil, mapError(err, "Post", id)
	}
	return post, nil
}

// StoragePath is the object key an upload is stored under.
func StoragePath(title string, at time.Time, filename string) string {
	return fmt.Sprintf("%s-%d-%s", title, at.UnixMilli(), filepath.Base(filename))
}

// CreatePost uploads the image, then inserts the post row pointing at it.
// A failed upload inserts nothing; a failed insert removes the uploaded object.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (post *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "create",
		attribute.String("post.title", in.Title))
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				outcome = strings.ToLower(appErr.Code)
			}
		}
		observability.PostCreations.WithLabelValues(outcome).Inc()
		observability.EndSpan(span, err)
	}()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	contentType, err := s.images.Validate(in.File)
	if err != nil {
		return nil, err
	}

	path := StoragePath(in.Title, s.now(), in.File.Filename)
	if _, err := s.storage.Upload(ctx, path, bytes.NewReader(in.File.Content), contentType); err != nil {
		s.logger.WarnContext(ctx, "image upload failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, models.NewUploadError(err)
	}

	payload := &models.NewPost{
		Title:       in.Title,
		Content:     in.Content,
		ImageURL:    s.storage.PublicURL(path),
		AvatarURL:   in.Author.AvatarPtr(),
		CommunityID: in.CommunityID,
	}
	post, err = s.posts.Create(ctx, payload)
	if err != nil {
		return nil, s.compensate(ctx, path, err)
	}

	s.cache.Invalidate(ctx, PostsKey())
	// a detail page opened before the insert cached a nil post
	s.cache.Invalidate(ctx, PostKey(post.ID))
	if in.CommunityID != nil {
		s.cache.Invalidate(ctx, CommunityPostsKey(*in.CommunityID))
	}

	s.logger.InfoContext(ctx, "post created", slog.Int64("post_id", post.ID), slog.String("path", path))
	return post, nil
}

// compensate removes an uploaded object whose row could not be inserted.
func (s *PostService) compensate(ctx context.Context, path string, insertErr error) error {
	appErr := models.NewUpstreamError(insertErr)
	if rmErr := s.storage.Remove(context.WithoutCancel(ctx), path); rmErr != nil {
		s.logger.ErrorContext(ctx, "failed to remove orphaned upload",
			slog.String("path", path), slog.String("error", rmErr.Error()))
		appErr.Err = errors.Join(insertErr, fmt.Errorf("remove orphaned upload %s: %w", path, rmErr))
	}
	return appErr
}
