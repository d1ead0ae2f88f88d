package server

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"nexora/internal/middleware"
	"nexora/internal/models"
	"nexora/internal/service"
)

// PostDetailView is the post page: the post with its like button and comments.
type PostDetailView struct {
	Post     *models.Post `json:"post"`
	Like     Section      `json:"like"`
	Comments Section      `json:"comments"`
}

// PostList handles GET /
// @Summary Post list
// @Description All posts with like and comment counts, newest first
// @Tags posts
// @Produce json
// @Success 200 {object} Page{data=[]models.Post}
// @Failure 502 {object} Page
// @Router / [get]
func (s *Server) PostList(c *fiber.Ctx) error {
	posts, err := s.postService.ListPosts(c.UserContext())
	if err != nil {
		return s.renderError(c, "post_list", err)
	}

	page := Page{View: "post_list", Data: posts}
	if len(posts) == 0 {
		page.Message = msgNoPosts
	}
	return s.render(c, fiber.StatusOK, page)
}

// PostDetail handles GET /post/:id
// @Summary Post detail
// @Description A post with its like state and comment thread
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} Page{data=PostDetailView}
// @Failure 404 {object} Page
// @Router /post/{id} [get]
func (s *Server) PostDetail(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx := c.UserContext()

	post, err := s.postService.GetPost(ctx, id)
	if err != nil {
		return s.renderError(c, "post_detail", err)
	}
	if post == nil {
		return s.render(c, fiber.StatusNotFound, Page{View: "post_detail", Message: msgNoPost})
	}

	like, likeErr := s.likeService.State(ctx, id, middleware.UserFrom(c))
	thread, threadErr := s.commentService.Thread(ctx, id)

	return s.render(c, fiber.StatusOK, Page{
		View:    "post_detail",
		Heading: post.Title,
		Data: PostDetailView{
			Post:     post,
			Like:     section(like, likeErr),
			Comments: section(thread, threadErr),
		},
	})
}

// PostForm handles GET /create
// @Summary Post form
// @Description The communities a new post can be filed under
// @Tags posts
// @Produce json
// @Success 200 {object} Page{data=object{communities=[]models.Community}}
// @Router /create [get]
func (s *Server) PostForm(c *fiber.Ctx) error {
	communities, err := s.communityService.ListCommunities(c.UserContext())
	if err != nil {
		return s.renderError(c, "post_form", err)
	}
	return s.render(c, fiber.StatusOK, Page{
		View:    "post_form",
		Heading: "Create New Post",
		Data:    fiber.Map{"communities": communities},
	})
}

// CreatePost handles POST /create
// @Summary Create a post
// @Description Uploads the image, then stores the post pointing at it
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param community_id formData int false "Community ID"
// @Param image formData file true "Image"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse "alert is set when the upload failed"
// @Router /create [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	communityID, err := service.ParseCommunityID(c.FormValue("community_id"))
	if err != nil {
		return respondError(c, err)
	}

	file, err := readUpload(c, "image")
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		Title:       c.FormValue("title"),
		Content:     c.FormValue("content"),
		CommunityID: communityID,
		File:        file,
		Author:      middleware.UserFrom(c),
	})
	if err != nil {
		return respondError(c, err)
	}

	c.Location("/post/" + strconv.FormatInt(post.ID, 10))
	return c.Status(fiber.StatusCreated).JSON(post)
}

// readUpload reads an optional multipart file; a missing file yields nil.
func readUpload(c *fiber.Ctx, field string) (*service.UploadFile, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return nil, nil
		}
		return nil, models.NewValidationError("Invalid upload")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &service.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}
