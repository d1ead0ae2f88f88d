package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"nexora/internal/middleware"
	"nexora/internal/models"
	"nexora/internal/query"
	"nexora/internal/session"
)

// Empty-state and missing-data messages.
const (
	msgNoPosts            = "No posts yet."
	msgNoCommunities      = "No communities yet."
	msgNoCommunityPosts   = "No posts in this community yet."
	msgNoPost             = "No post found"
	communityHeadingTitle = "Community Posts"
)

// Link is a navigation entry.
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
	// Method is set on actions; plain links are GETs.
	Method string `json:"method,omitempty"`
}

var navLinks = []Link{
	{Label: "Home", Href: "/"},
	{Label: "Create Post", Href: "/create"},
	{Label: "Communities", Href: "/communities"},
	{Label: "Create Community", Href: "/community/create"},
}

// NavView is the navigation bar. It reads the session without waiting, so a
// session still loading shows as uninitialized.
type NavView struct {
	Identity    session.Phase `json:"identity"`
	DisplayName string        `json:"display_name"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Links       []Link        `json:"links"`
	Action      Link          `json:"action"`
}

// Section is an independently loaded part of a page.
type Section struct {
	Status query.Status `json:"status"`
	Data   any          `json:"data,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Page is the view model every browser route renders. Status is either
// error or success; loading is only observable on the query stream.
type Page struct {
	View    string       `json:"view"`
	Status  query.Status `json:"status"`
	Nav     NavView      `json:"nav"`
	Heading string       `json:"heading,omitempty"`
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func navFor(c *fiber.Ctx) NavView {
	state := middleware.StateFrom(c)
	nav := NavView{Links: navLinks, Identity: state.Phase, DisplayName: state.User.DisplayName()}
	if state.Phase == session.Authenticated {
		nav.AvatarURL = state.User.AvatarURL
		nav.Action = Link{Label: "Sign Out", Href: "/auth/signout", Method: fiber.MethodPost}
	} else {
		nav.Action = Link{Label: "Sign In With GitHub", Href: "/auth/signin", Method: fiber.MethodGet}
	}
	return nav
}

// errorMessage is the text shown in place of a view.
func errorMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (s *Server) render(c *fiber.Ctx, status int, page Page) error {
	page.Status = query.StatusSuccess
	page.Nav = navFor(c)
	return c.Status(status).JSON(page)
}

func (s *Server) renderError(c *fiber.Ctx, view string, err error) error {
	return c.Status(models.StatusFor(err)).JSON(Page{
		View:   view,
		Status: query.StatusError,
		Nav:    navFor(c),
		Error:  errorMessage(err),
	})
}

func section(data any, err error) Section {
	if err != nil {
		return Section{Status: query.StatusError, Error: errorMessage(err)}
	}
	return Section{Status: query.StatusSuccess, Data: data}
}
