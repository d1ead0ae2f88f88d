package service

import (
	"context"
	"io"
	"sync"

	"nexora/internal/models"
	"nexora/internal/remote"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	listWithCountsFn  func(context.Context) ([]models.Post, error)
	listByCommunityFn func(context.Context, int64) ([]models.Post, error)
	getByIDFn         func(context.Context, int64) (*models.Post, error)
	createFn          func(context.Context, *models.NewPost) (*models.Post, error)
}

func (s *postRepoStub) ListWithCounts(ctx context.Context) ([]models.Post, error) {
	return s.listWithCountsFn(ctx)
}
func (s *postRepoStub) ListByCommunity(ctx context.Context, id int64) ([]models.Post, error) {
	return s.listByCommunityFn(ctx, id)
}
func (s *postRepoStub) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) Create(ctx context.Context, in *models.NewPost) (*models.Post, error) {
	return s.createFn(ctx, in)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		listWithCountsFn:  func(context.Context) ([]models.Post, error) { return nil, nil },
		listByCommunityFn: func(context.Context, int64) ([]models.Post, error) { return nil, nil },
		getByIDFn:         func(context.Context, int64) (*models.Post, error) { return nil, nil },
		createFn: func(_ context.Context, in *models.NewPost) (*models.Post, error) {
			return &models.Post{ID: 1, Title: in.Title, Content: in.Content, ImageURL: in.ImageURL, CommunityID: in.CommunityID}, nil
		},
	}
}

// communityRepoStub is a stub for repository.CommunityRepository.
type communityRepoStub struct {
	listFn    func(context.Context) ([]models.Community, error)
	getByIDFn func(context.Context, int64) (*models.Community, error)
	createFn  func(context.Context, *models.NewCommunity) (*models.Community, error)
}

func (s *communityRepoStub) List(ctx context.Context) ([]models.Community, error) {
	return s.listFn(ctx)
}
func (s *communityRepoStub) GetByID(ctx context.Context, id int64) (*models.Community, error) {
	return s.getByIDFn(ctx, id)
}
func (s *communityRepoStub) Create(ctx context.Context, in *models.NewCommunity) (*models.Community, error) {
	return s.createFn(ctx, in)
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	listByPostFn func(context.Context, int64) ([]models.Comment, error)
	createFn     func(context.Context, *models.NewComment) (*models.Comment, error)
}

func (s *commentRepoStub) ListByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	return s.listByPostFn(ctx, postID)
}
func (s *commentRepoStub) Create(ctx context.Context, in *models.NewComment) (*models.Comment, error) {
	return s.createFn(ctx, in)
}

// likeRepoStub keeps likes in memory.
type likeRepoStub struct {
	mu        sync.Mutex
	likes     []models.Like
	listCalls int
	createErr error
}

func (s *likeRepoStub) ListByPost(_ context.Context, postID int64) ([]models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []models.Like
	for _, l := range s.likes {
		if l.PostID == postID {
			out = append(out, l)
		}
	}
	return out, nil
}
func (s *likeRepoStub) Create(_ context.Context, postID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.likes = append(s.likes, models.Like{ID: int64(len(s.likes) + 1), PostID: postID, UserID: userID})
	return nil
}
func (s *likeRepoStub) Delete(_ context.Context, postID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.likes[:0]
	for _, l := range s.likes {
		if l.PostID != postID || l.UserID != userID {
			kept = append(kept, l)
		}
	}
	s.likes = kept
	return nil
}

// storageStub records uploads and removals.
type storageStub struct {
	mu        sync.Mutex
	objects   map[string][]byte
	removed   []string
	uploadErr error
	removeErr error
}

func newStorageStub() *storageStub {
	return &storageStub{objects: map[string][]byte{}}
}

func (s *storageStub) Upload(_ context.Context, path string, body io.Reader, _ string) (*remote.UploadResult, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return &remote.UploadResult{Key: "post-images/" + path}, nil
}

func (s *storageStub) PublicURL(path string) string {
	return "https://cdn.test/post-images/" + path
}

func (s *storageStub) Remove(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, paths...)
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}
