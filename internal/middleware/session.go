package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/remote"
	"nexora/internal/session"
)

// SessionCookie carries the browser session id.
const SessionCookie = "nexora_sid"

var errShuttingDown = errors.New("server is shutting down")

// SessionMiddleware assigns every browser a session id. A holder is mounted
// only for an id the browser sent back; a freshly minted id cannot have a
// stored session, so it reads as anonymous until MountSession runs. It never
// blocks on the holder: a holder that is still loading reports an
// Uninitialized identity.
func SessionMiddleware(registry *session.Registry, secureCookie bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(SessionCookie)
		if _, err := uuid.Parse(sid); err != nil {
			sid = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				Expires:  time.Now().Add(session.SessionTTL),
				HTTPOnly: true,
				Secure:   secureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		} else if err := attachHolder(c, registry, sid); err != nil {
			return err
		}
		c.Locals(LocalSessionID, sid)

		ctx := observability.WithValue(c.UserContext(), observability.SessionIDKey, sid)
		if user := UserFrom(c); user != nil {
			ctx = observability.WithValue(ctx, observability.UserIDKey, user.ID)
		}
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// MountSession makes sure the request has a mounted holder. Routes that start
// or end a sign-in put it after SessionMiddleware.
func MountSession(registry *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if HolderFrom(c) != nil {
			return c.Next()
		}
		sid, _ := c.Locals(LocalSessionID).(string)
		if sid == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("No session"))
		}
		if err := attachHolder(c, registry, sid); err != nil {
			return err
		}
		return c.Next()
	}
}

func attachHolder(c *fiber.Ctx, registry *session.Registry, sid string) error {
	holder := registry.Get(sid)
	if holder == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errShuttingDown))
	}
	c.Locals(LocalSession, holder)
	if user := holder.User(); user != nil {
		c.Locals(LocalUser, user)
	}
	return nil
}

// ResolveIdentity waits for the session holder to finish loading and, for a
// signed-in user, forwards a valid access token to remote calls made by the
// handler. A request without a mounted holder is anonymous. With required set,
// anonymous requests are rejected.
func ResolveIdentity(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		holder := HolderFrom(c)
		if holder == nil {
			c.Locals(LocalUser, nil)
			if required {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("You must be signed in"))
			}
			return c.Next()
		}

		ctx := c.UserContext()
		state, err := holder.Wait(ctx)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable, models.NewInternalError(err))
		}

		var user *models.User
		if state.Phase == session.Authenticated {
			token, err := holder.AccessToken(ctx)
			switch {
			case err == nil:
				user = state.User
				ctx = remote.WithAccessToken(ctx, token)
				ctx = observability.WithValue(ctx, observability.UserIDKey, user.ID)
			case errors.Is(err, session.ErrNoSession):
			default:
				observability.Logger.WarnContext(ctx, "session token unusable", slog.String("error", err.Error()))
			}
		}
		c.Locals(LocalUser, user)
		c.SetUserContext(ctx)

		if required && user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("You must be signed in"))
		}
		return c.Next()
	}
}

// HolderFrom returns the mounted session holder of the request, or nil.
func HolderFrom(c *fiber.Ctx) *session.Holder {
	h, _ := c.Locals(LocalSession).(*session.Holder)
	return h
}

// StateFrom returns the identity of the request without mounting a holder.
func StateFrom(c *fiber.Ctx) session.State {
	if h := HolderFrom(c); h != nil {
		return h.State()
	}
	return session.State{Phase: session.Anonymous}
}

// UserFrom returns the signed-in user of the request, or nil.
func UserFrom(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(LocalUser).(*models.User)
	return u
}
