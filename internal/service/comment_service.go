package service

import (
	"context"
	"log/slog"
	"strings"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/query"
	"nexora/internal/repository"
)

// CommentService handles post comments and their threads.
type CommentService struct {
	comments repository.CommentRepository
	cache    *query.Client
	logger   *slog.Logger
}

// NewCommentService creates a new comment service.
func NewCommentService(comments repository.CommentRepository, cache *query.Client) *CommentService {
	return &CommentService{
		comments: comments,
		cache:    cache,
		logger:   observability.Component("comment_service"),
	}
}

// CreateCommentInput represents input for commenting on a post.
type CreateCommentInput struct {
	PostID          int64
	Content         string
	ParentCommentID *int64
}

// BuildCommentTree nests comments under their parents, keeping input order
// among siblings. Comments whose parent is absent are placed at the root.
func BuildCommentTree(comments []models.Comment) []*models.CommentNode {
	nodes := make(map[int64]*models.CommentNode, len(comments))
	for i := range comments {
		nodes[comments[i].ID] = &models.CommentNode{Comment: comments[i], Replies: []*models.CommentNode{}}
	}

	roots := make([]*models.CommentNode, 0)
	for i := range comments {
		node := nodes[comments[i].ID]
		pid := node.ParentCommentID
		if pid == nil || *pid == node.ID {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*pid]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return roots
}

func (s *CommentService) list(ctx context.Context, postID int64) ([]models.Comment, error) {
	return query.Fetch(ctx, s.cache, CommentsKey(postID), func(ctx context.Context) ([]models.Comment, error) {
		return s.comments.ListByPost(ctx, postID)
	})
}

// Thread returns the comment tree of a post.
func (s *CommentService) Thread(ctx context.Context, postID int64) ([]*models.CommentNode, error) {
	comments, err := s.list(ctx, postID)
	if err != nil {
		return nil, mapError(err, "Post", postID)
	}
	return BuildCommentTree(comments), nil
}

// CreateComment adds a comment as the signed-in user.
func (s *CommentService) CreateComment(ctx context.Context, author *models.User, in CreateCommentInput) (*models.Comment, error) {
	if author == nil {
		return nil, models.NewUnauthorizedError("You must be signed in to comment")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Comment cannot be empty")
	}

	if in.ParentCommentID != nil {
		existing, err := s.list(ctx, in.PostID)
		if err != nil {
			return nil, mapError(err, "Post", in.PostID)
		}
		found := false
		for _, c := range existing {
			if c.ID == *in.ParentCommentID {
				found = true
				break
			}
		}
		if !found {
			return nil, models.NewValidationError("Parent comment does not belong to this post")
		}
	}

	comment, err := s.comments.Create(ctx, &models.NewComment{
		PostID:          in.PostID,
		UserID:          author.ID,
		Author:          author.DisplayName(),
		AvatarURL:       author.AvatarPtr(),
		Content:         content,
		ParentCommentID: in.ParentCommentID,
	})
	if err != nil {
		return nil, mapError(err, "Post", in.PostID)
	}

	s.cache.Invalidate(ctx, CommentsKey(in.PostID))
	s.cache.Invalidate(ctx, PostsKey())
	s.logger.InfoContext(ctx, "comment created",
		slog.Int64("post_id", in.PostID), slog.Int64("comment_id", comment.ID))
	return comment, nil
}
