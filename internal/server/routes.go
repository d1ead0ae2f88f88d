package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"

	_ "nexora/docs" // swagger docs
	"nexora/internal/middleware"
)

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Everything below belongs to a browser session.
	browser := app.Group("", middleware.SessionMiddleware(s.sessions, s.config.CookieSecure))
	optionalUser := middleware.ResolveIdentity(false)
	requireUser := middleware.ResolveIdentity(true)

	auth := browser.Group("/auth")
	mount := middleware.MountSession(s.sessions)
	auth.Get("/signin", s.limiter.Limit("signin", 10, 5*time.Minute), mount, s.SignIn)
	auth.Get("/callback", mount, s.AuthCallback)
	auth.Post("/signout", mount, s.SignOut)
	auth.Get("/me", s.Me)

	browser.Get("/", s.PostList)
	browser.Get("/create", s.PostForm)
	browser.Post("/create", s.limiter.Limit("create_post", 5, 5*time.Minute),
		optionalUser, s.CreatePost)
	browser.Get("/communities", s.CommunityList)
	// /community/create before /community/:id
	browser.Get("/community/create", s.CommunityForm)
	browser.Post("/community/create", s.limiter.Limit("create_community", 5, 10*time.Minute),
		optionalUser, s.CreateCommunity)
	browser.Get("/community/:id", s.CommunityPosts)

	browser.Get("/post/:id/like", s.LikeState)
	browser.Post("/post/:id/like", s.limiter.Limit("like", 30, time.Minute),
		requireUser, s.ToggleLike)
	browser.Get("/post/:id/comments", s.CommentThread)
	browser.Post("/post/:id/comments", s.limiter.Limit("create_comment", 10, time.Minute),
		requireUser, s.CreateComment)
	browser.Get("/post/:id", s.PostDetail)

	ws := browser.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/query", s.QueryStreamHandler())
}
