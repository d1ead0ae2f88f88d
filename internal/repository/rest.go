package repository

import (
	"context"

	"nexora/internal/models"
	"nexora/internal/remote"
)

// Stored procedure returning posts with like and comment counts.
const postsWithCountsRPC = "get_posts_with_counts"

type restCommunityRepository struct {
	client *remote.Client
}

// NewRESTCommunityRepository creates a community repository over the rest API
func NewRESTCommunityRepository(client *remote.Client) CommunityRepository {
	return &restCommunityRepository{client: client}
}

func (r *restCommunityRepository) List(ctx context.Context) ([]models.Community, error) {
	communities := []models.Community{}
	err := r.client.From("communities").Select("*").Order("created_at", false).Execute(ctx, &communities)
	return communities, translate(err)
}

func (r *restCommunityRepository) GetByID(ctx context.Context, id int64) (*models.Community, error) {
	var community models.Community
	if err := r.client.From("communities").Select("*").Eq("id", id).Single().Execute(ctx, &community); err != nil {
		return nil, translate(err)
	}
	return &community, nil
}

func (r *restCommunityRepository) Create(ctx context.Context, in *models.NewCommunity) (*models.Community, error) {
	var community models.Community
	if err := r.client.From("communities").Single().Insert(ctx, in, &community); err != nil {
		return nil, translate(err)
	}
	return &community, nil
}

type restPostRepository struct {
	client *remote.Client
}

// NewRESTPostRepository creates a post repository over the rest API
func NewRESTPostRepository(client *remote.Client) PostRepository {
	return &restPostRepository{client: client}
}

func (r *restPostRepository) ListWithCounts(ctx context.Context) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.client.RPC(ctx, postsWithCountsRPC, nil, &posts)
	return posts, translate(err)
}

func (r *restPostRepository) ListByCommunity(ctx context.Context, communityID int64) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.client.From("posts").
		Select("*, communities(name)").
		Eq("community_id", communityID).
		Order("created_at", false).
		Execute(ctx, &posts)
	return posts, translate(err)
}

func (r *restPostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.client.From("posts").Select("*").Eq("id", id).Single().Execute(ctx, &post); err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

func (r *restPostRepository) Create(ctx context.Context, in *models.NewPost) (*models.Post, error) {
	var post models.Post
	if err := r.client.From("posts").Single().Insert(ctx, in, &post); err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

type restCommentRepository struct {
	client *remote.Client
}

// NewRESTCommentRepository creates a comment repository over the rest API
func NewRESTCommentRepository(client *remote.Client) CommentRepository {
	return &restCommentRepository{client: client}
}

func (r *restCommentRepository) ListByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := r.client.From("comments").Select("*").Eq("post_id", postID).Order("created_at", true).Execute(ctx, &comments)
	return comments, translate(err)
}

func (r *restCommentRepository) Create(ctx context.Context, in *models.NewComment) (*models.Comment, error) {
	var comment models.Comment
	if err := r.client.From("comments").Single().Insert(ctx, in, &comment); err != nil {
		return nil, translate(err)
	}
	return &comment, nil
}

type restLikeRepository struct {
	client *remote.Client
}

// NewRESTLikeRepository creates a like repository over the rest API
func NewRESTLikeRepository(client *remote.Client) LikeRepository {
	return &restLikeRepository{client: client}
}

func (r *restLikeRepository) ListByPost(ctx context.Context, postID int64) ([]models.Like, error) {
	likes := []models.Like{}
	err := r.client.From("likes").Select("*").Eq("post_id", postID).Execute(ctx, &likes)
	return likes, translate(err)
}

func (r *restLikeRepository) Create(ctx context.Context, postID int64, userID string) error {
	return translate(r.client.From("likes").Insert(ctx, models.NewLike{PostID: postID, UserID: userID}, nil))
}

func (r *restLikeRepository) Delete(ctx context.Context, postID int64, userID string) error {
	return translate(r.client.From("likes").Eq("post_id", postID).Eq("user_id", userID).Delete(ctx))
}
