// Package service holds the application's use cases: the reads behind each
// view, served through the query cache, and the mutations that invalidate them.
package service

import (
	"errors"

	"nexora/internal/models"
	"nexora/internal/query"
	"nexora/internal/repository"
)

// Cache keys of the views.
func PostsKey() query.Key                  { return query.NewKey("posts") }
func CommunitiesKey() query.Key            { return query.NewKey("communities") }
func CommunityKey(id int64) query.Key      { return query.NewKey("community", id) }
func CommunityPostsKey(id int64) query.Key { return query.NewKey("communityPost", id) }
func PostKey(id int64) query.Key           { return query.NewKey("post", id) }
func LikesKey(postID int64) query.Key      { return query.NewKey("likes", postID) }
func CommentsKey(postID int64) query.Key   { return query.NewKey("comments", postID) }

// mapError converts repository errors to application errors. Remote failures
// keep the service-provided message.
func mapError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewUpstreamError(err)
}
