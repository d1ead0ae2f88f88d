package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/models"
	"nexora/internal/query"
	"nexora/internal/repository"
	"nexora/internal/testutil"
)

func newTestPostService(t *testing.T, repo *postRepoStub, storage *storageStub) (*PostService, *query.Client) {
	t.Helper()
	cache := query.New(query.WithStaleTime(time.Minute))
	t.Cleanup(cache.Wait)
	svc := NewPostService(repo, storage, cache, NewImageValidator(1))
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, cache
}

func validInput(t *testing.T) CreatePostInput {
	return CreatePostInput{
		Title:   "Sunset",
		Content: "Golden hour",
		File:    &UploadFile{Filename: "sun.png", Content: testutil.TinyPNG(t, 4, 4)},
	}
}

func TestCreatePost_UploadsThenInserts(t *testing.T) {
	var inserted *models.NewPost
	repo := noopPostRepo()
	repo.createFn = func(_ context.Context, in *models.NewPost) (*models.Post, error) {
		inserted = in
		return &models.Post{ID: 9, Title: in.Title, ImageURL: in.ImageURL}, nil
	}
	storage := newStorageStub()
	svc, _ := newTestPostService(t, repo, storage)

	communityID := int64(3)
	in := validInput(t)
	in.CommunityID = &communityID
	in.Author = &models.User{ID: "u1", AvatarURL: "https://avatars.test/u1.png"}

	post, err := svc.CreatePost(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(9), post.ID)

	path := "Sunset-1700000000000-sun.png"
	require.Len(t, storage.objects, 1)
	assert.Contains(t, storage.objects, path)
	require.NotNil(t, inserted)
	assert.Equal(t, "https://cdn.test/post-images/"+path, inserted.ImageURL)
	assert.Equal(t, &communityID, inserted.CommunityID)
	require.NotNil(t, inserted.AvatarURL)
	assert.Equal(t, "https://avatars.test/u1.png", *inserted.AvatarURL)
}

func TestCreatePost_UploadFailureInsertsNothing(t *testing.T) {
	var inserts int32
	repo := noopPostRepo()
	repo.createFn = func(context.Context, *models.NewPost) (*models.Post, error) {
		atomic.AddInt32(&inserts, 1)
		return &models.Post{}, nil
	}
	storage := newStorageStub()
	storage.uploadErr = errors.New("The resource already exists")
	svc, _ := newTestPostService(t, repo, storage)

	_, err := svc.CreatePost(context.Background(), validInput(t))
	require.Error(t, err)

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Alert)
	assert.Equal(t, "Upload failed: The resource already exists", appErr.Message)
	assert.Zero(t, atomic.LoadInt32(&inserts))
}

func TestCreatePost_InsertFailureRemovesUpload(t *testing.T) {
	repo := noopPostRepo()
	repo.createFn = func(context.Context, *models.NewPost) (*models.Post, error) {
		return nil, errors.New("new row violates row-level security policy")
	}
	storage := newStorageStub()
	svc, _ := newTestPostService(t, repo, storage)

	_, err := svc.CreatePost(context.Background(), validInput(t))
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUpstream))
	assert.Contains(t, err.Error(), "row-level security")
	assert.Empty(t, storage.objects)
	assert.Equal(t, []string{"Sunset-1700000000000-sun.png"}, storage.removed)
}

func TestCreatePost_FailedCompensationIsJoined(t *testing.T) {
	repo := noopPostRepo()
	insertErr := errors.New("insert failed")
	repo.createFn = func(context.Context, *models.NewPost) (*models.Post, error) { return nil, insertErr }
	storage := newStorageStub()
	storage.removeErr = errors.New("bucket unavailable")
	svc, _ := newTestPostService(t, repo, storage)

	_, err := svc.CreatePost(context.Background(), validInput(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, insertErr)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestCreatePost_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreatePostInput)
		errMsg string
	}{
		{"missing title", func(in *CreatePostInput) { in.Title = "  " }, "Title is required"},
		{"missing content", func(in *CreatePostInput) { in.Content = "" }, "Content is required"},
		{"missing file", func(in *CreatePostInput) { in.File = nil }, "image file is required"},
		{"not an image", func(in *CreatePostInput) { in.File.Content = []byte("plain text") }, "Unsupported image format"},
		{"too large", func(in *CreatePostInput) { in.File.Content = make([]byte, 2<<20) }, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newStorageStub()
			svc, _ := newTestPostService(t, noopPostRepo(), storage)
			in := validInput(t)
			tt.mutate(&in)

			_, err := svc.CreatePost(context.Background(), in)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.CodeValidation))
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Empty(t, storage.objects)
		})
	}
}

func TestCreatePost_InvalidatesListings(t *testing.T) {
	var listCalls, communityCalls int32
	repo := noopPostRepo()
	repo.listWithCountsFn = func(context.Context) ([]models.Post, error) {
		atomic.AddInt32(&listCalls, 1)
		return []models.Post{}, nil
	}
	repo.listByCommunityFn = func(context.Context, int64) ([]models.Post, error) {
		atomic.AddInt32(&communityCalls, 1)
		return []models.Post{}, nil
	}
	svc, _ := newTestPostService(t, repo, newStorageStub())
	ctx := context.Background()

	_, err := svc.ListPosts(ctx)
	require.NoError(t, err)
	_, err = svc.ListCommunityPosts(ctx, 3)
	require.NoError(t, err)
	_, err = svc.ListPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&listCalls), "second read is a cache hit")

	communityID := int64(3)
	in := validInput(t)
	in.CommunityID = &communityID
	_, err = svc.CreatePost(ctx, in)
	require.NoError(t, err)

	_, err = svc.ListPosts(ctx)
	require.NoError(t, err)
	_, err = svc.ListCommunityPosts(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&listCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&communityCalls))
}

func TestGetPost_MissingIsNil(t *testing.T) {
	repo := noopPostRepo()
	repo.getByIDFn = func(context.Context, int64) (*models.Post, error) {
		return nil, repository.ErrNotFound
	}
	svc, _ := newTestPostService(t, repo, newStorageStub())

	post, err := svc.GetPost(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestListPosts_UpstreamErrorKeepsMessage(t *testing.T) {
	repo := noopPostRepo()
	repo.listWithCountsFn = func(context.Context) ([]models.Post, error) {
		return nil, errors.New("JWT expired")
	}
	svc, _ := newTestPostService(t, repo, newStorageStub())

	_, err := svc.ListPosts(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUpstream))
	assert.Equal(t, "JWT expired", err.Error())
}

func TestParseCommunityID(t *testing.T) {
	id, err := ParseCommunityID("")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = ParseCommunityID("12")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(12), *id)

	_, err = ParseCommunityID("abc")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestStoragePath(t *testing.T) {
	at := time.UnixMilli(1234)
	assert.Equal(t, "Hello-1234-cat.png", StoragePath("Hello", at, "cat.png"))
	assert.Equal(t, "Hello-1234-cat.png", StoragePath("Hello", at, "/tmp/uploads/cat.png"))
}

func TestCreatePost_RefreshesCachedMissingPost(t *testing.T) {
	var stored *models.Post
	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id int64) (*models.Post, error) {
		if stored == nil || stored.ID != id {
			return nil, repository.ErrNotFound
		}
		return stored, nil
	}
	repo.createFn = func(_ context.Context, in *models.NewPost) (*models.Post, error) {
		stored = &models.Post{ID: 5, Title: in.Title, ImageURL: in.ImageURL}
		return stored, nil
	}
	svc, _ := newTestPostService(t, repo, newStorageStub())
	ctx := context.Background()

	missing, err := svc.GetPost(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.CreatePost(ctx, validInput(t))
	require.NoError(t, err)

	post, err := svc.GetPost(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "Sunset", post.Title)
}
