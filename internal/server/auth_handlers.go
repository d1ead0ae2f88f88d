package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"nexora/internal/middleware"
	"nexora/internal/models"
	"nexora/internal/session"
)

// SignIn handles GET /auth/signin
// @Summary Start OAuth sign-in
// @Description Redirects the browser to the OAuth provider
// @Tags auth
// @Success 302
// @Router /auth/signin [get]
func (s *Server) SignIn(c *fiber.Ctx) error {
	holder := middleware.HolderFrom(c)

	url, err := holder.SignIn(c.UserContext())
	if err != nil {
		s.logger.ErrorContext(c.UserContext(), "sign-in start failed", slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusBadGateway, models.NewUpstreamError(err))
	}
	return c.Redirect(url, fiber.StatusFound)
}

// AuthCallback handles GET /auth/callback
// @Summary Complete OAuth sign-in
// @Description Exchanges the provider code for a session, then redirects home
// @Tags auth
// @Param code query string true "Authorization code"
// @Success 303
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/callback [get]
func (s *Server) AuthCallback(c *fiber.Ctx) error {
	if desc := c.Query("error_description", c.Query("error")); desc != "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(desc))
	}
	code := c.Query("code")
	if code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing authorization code"))
	}

	user, err := middleware.HolderFrom(c).CompleteSignIn(c.UserContext(), code)
	if err != nil {
		s.logger.WarnContext(c.UserContext(), "sign-in callback failed", slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(err.Error()))
	}

	s.logger.InfoContext(c.UserContext(), "user signed in", slog.String("user_id", user.ID))
	return c.Redirect("/", fiber.StatusSeeOther)
}

// SignOut handles POST /auth/signout
// @Summary Sign out
// @Description Clears the session. The session is anonymous afterwards even if the remote sign-out failed.
// @Tags auth
// @Produce json
// @Success 200 {object} session.State
// @Router /auth/signout [post]
func (s *Server) SignOut(c *fiber.Ctx) error {
	holder := middleware.HolderFrom(c)

	resp := fiber.Map{}
	if err := holder.SignOut(c.UserContext()); err != nil {
		s.logger.WarnContext(c.UserContext(), "remote sign-out failed", slog.String("error", err.Error()))
		resp["warning"] = err.Error()
	}
	resp["state"] = holder.State()
	return c.JSON(resp)
}

// Me handles GET /auth/me
// @Summary Current identity
// @Description Waits for the session to load unless wait=false, which returns the current phase immediately
// @Tags auth
// @Produce json
// @Param wait query bool false "Wait for the session to load" default(true)
// @Success 200 {object} session.State
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	holder := middleware.HolderFrom(c)
	if holder == nil || !c.QueryBool("wait", true) {
		return c.JSON(middleware.StateFrom(c))
	}

	state, err := holder.Wait(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable, models.NewInternalError(err))
	}
	if state.Phase == session.Authenticated {
		// Surfaces a refresh failure as an anonymous identity.
		if _, err := holder.AccessToken(c.UserContext()); err != nil {
			state = holder.State()
		}
	}
	return c.JSON(state)
}
