package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/models"
	"nexora/internal/query"
)

func ptr(v int64) *int64 { return &v }

func TestBuildCommentTree(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: 1, Content: "root", CreatedAt: base},
		{ID: 2, Content: "reply", ParentCommentID: ptr(1), CreatedAt: base.Add(time.Minute)},
		{ID: 3, Content: "orphan", ParentCommentID: ptr(42), CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, Content: "nested", ParentCommentID: ptr(2), CreatedAt: base.Add(3 * time.Minute)},
		{ID: 5, Content: "second reply", ParentCommentID: ptr(1), CreatedAt: base.Add(4 * time.Minute)},
	}

	roots := BuildCommentTree(comments)
	require.Len(t, roots, 2)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, int64(3), roots[1].ID, "orphans surface at the root")

	require.Len(t, roots[0].Replies, 2)
	assert.Equal(t, int64(2), roots[0].Replies[0].ID)
	assert.Equal(t, int64(5), roots[0].Replies[1].ID)
	require.Len(t, roots[0].Replies[0].Replies, 1)
	assert.Equal(t, int64(4), roots[0].Replies[0].Replies[0].ID)
	assert.Empty(t, roots[1].Replies)
}

func TestBuildCommentTree_ReplyBeforeParent(t *testing.T) {
	roots := BuildCommentTree([]models.Comment{
		{ID: 2, ParentCommentID: ptr(1)},
		{ID: 1},
	})
	require.Len(t, roots, 1)
	assert.Equal(t, int64(1), roots[0].ID)
	require.Len(t, roots[0].Replies, 1)
}

func TestCommentService_CreateComment(t *testing.T) {
	stored := []models.Comment{{ID: 1, PostID: 7, Content: "first"}}
	repo := &commentRepoStub{
		listByPostFn: func(_ context.Context, postID int64) ([]models.Comment, error) {
			return append([]models.Comment{}, stored...), nil
		},
		createFn: func(_ context.Context, in *models.NewComment) (*models.Comment, error) {
			c := models.Comment{
				ID: int64(len(stored) + 1), PostID: in.PostID, UserID: in.UserID,
				Author: in.Author, Content: in.Content, ParentCommentID: in.ParentCommentID,
			}
			stored = append(stored, c)
			return &c, nil
		},
	}
	svc := NewCommentService(repo, query.New())
	ctx := context.Background()
	user := &models.User{ID: "u1", Email: "ada@example.com"}

	thread, err := svc.Thread(ctx, 7)
	require.NoError(t, err)
	require.Len(t, thread, 1)

	c, err := svc.CreateComment(ctx, user, CreateCommentInput{PostID: 7, Content: " hi ", ParentCommentID: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Content)
	assert.Equal(t, "ada@example.com", c.Author)

	thread, err = svc.Thread(ctx, 7)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.Len(t, thread[0].Replies, 1, "thread is re-fetched after the comment")
}

func TestCommentService_CreateCommentRejects(t *testing.T) {
	repo := &commentRepoStub{
		listByPostFn: func(context.Context, int64) ([]models.Comment, error) {
			return []models.Comment{{ID: 1, PostID: 7}}, nil
		},
		createFn: func(context.Context, *models.NewComment) (*models.Comment, error) {
			t.Fatal("create must not be called")
			return nil, nil
		},
	}
	svc := NewCommentService(repo, query.New())
	ctx := context.Background()
	user := &models.User{ID: "u1"}

	_, err := svc.CreateComment(ctx, nil, CreateCommentInput{PostID: 7, Content: "x"})
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = svc.CreateComment(ctx, user, CreateCommentInput{PostID: 7, Content: "  "})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = svc.CreateComment(ctx, user, CreateCommentInput{PostID: 7, Content: "x", ParentCommentID: ptr(99)})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}
