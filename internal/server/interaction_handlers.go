package server

import (
	"github.com/gofiber/fiber/v2"

	"nexora/internal/middleware"
	"nexora/internal/models"
	"nexora/internal/service"
)

// LikeState handles GET /post/:id/like
// @Summary Like button state
// @Tags likes
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.LikeState
// @Router /post/{id}/like [get]
func (s *Server) LikeState(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	state, err := s.likeService.State(c.UserContext(), id, middleware.UserFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// ToggleLike handles POST /post/:id/like
// @Summary Like or unlike a post
// @Tags likes
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.LikeState
// @Failure 401 {object} models.ErrorResponse
// @Router /post/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	state, err := s.likeService.Toggle(c.UserContext(), id, middleware.UserFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// CommentThread handles GET /post/:id/comments
// @Summary Comment thread
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {array} models.CommentNode
// @Router /post/{id}/comments [get]
func (s *Server) CommentThread(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	thread, err := s.commentService.Thread(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(thread)
}

// CreateComment handles POST /post/:id/comments
// @Summary Comment on a post
// @Tags comments
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body object{content=string,parent_comment_id=int} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /post/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content         string `json:"content" form:"content"`
		ParentCommentID *int64 `json:"parent_comment_id" form:"parent_comment_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), middleware.UserFrom(c), service.CreateCommentInput{
		PostID:          id,
		Content:         req.Content,
		ParentCommentID: req.ParentCommentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
