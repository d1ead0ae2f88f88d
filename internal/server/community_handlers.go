package server

import (
	"github.com/gofiber/fiber/v2"

	"nexora/internal/models"
	"nexora/internal/service"
)

// CommunityList handles GET /communities
// @Summary Community list
// @Tags communities
// @Produce json
// @Success 200 {object} Page{data=[]models.Community}
// @Router /communities [get]
func (s *Server) CommunityList(c *fiber.Ctx) error {
	communities, err := s.communityService.ListCommunities(c.UserContext())
	if err != nil {
		return s.renderError(c, "community_list", err)
	}

	page := Page{View: "community_list", Heading: "Communities", Data: communities}
	if len(communities) == 0 {
		page.Message = msgNoCommunities
	}
	return s.render(c, fiber.StatusOK, page)
}

// CommunityPosts handles GET /community/:id
// @Summary Community posts
// @Description Posts filed under a community, newest first
// @Tags communities
// @Produce json
// @Param id path int true "Community ID"
// @Success 200 {object} Page{data=[]models.Post}
// @Router /community/{id} [get]
func (s *Server) CommunityPosts(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	posts, err := s.postService.ListCommunityPosts(c.UserContext(), id)
	if err != nil {
		return s.renderError(c, "community_posts", err)
	}

	page := Page{View: "community_posts", Heading: communityHeading(posts), Data: posts}
	if len(posts) == 0 {
		page.Message = msgNoCommunityPosts
		// No post carries the community name; look the community up instead.
		if community, err := s.communityService.GetCommunity(c.UserContext(), id); err == nil && community != nil {
			page.Heading = community.Name + " " + communityHeadingTitle
		}
	}
	return s.render(c, fiber.StatusOK, page)
}

// communityHeading names the community after its first post's embedded community.
func communityHeading(posts []models.Post) string {
	if len(posts) > 0 && posts[0].Community != nil && posts[0].Community.Name != "" {
		return posts[0].Community.Name + " " + communityHeadingTitle
	}
	return communityHeadingTitle
}

// CommunityForm handles GET /community/create
// @Summary Community form
// @Tags communities
// @Produce json
// @Success 200 {object} Page
// @Router /community/create [get]
func (s *Server) CommunityForm(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, Page{View: "community_form", Heading: "Create New Community"})
}

// CreateCommunity handles POST /community/create
// @Summary Create a community
// @Description Creates the community and redirects to the community list
// @Tags communities
// @Accept json,x-www-form-urlencoded
// @Param request body object{name=string,description=string} true "Community"
// @Success 303
// @Failure 400 {object} models.ErrorResponse
// @Router /community/create [post]
func (s *Server) CreateCommunity(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name" form:"name"`
		Description string `json:"description" form:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if _, err := s.communityService.CreateCommunity(c.UserContext(), service.CreateCommunityInput{
		Name:        req.Name,
		Description: req.Description,
	}); err != nil {
		return respondError(c, err)
	}

	return c.Redirect("/communities", fiber.StatusSeeOther)
}
