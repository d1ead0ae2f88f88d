package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"nexora/internal/models"
	"nexora/internal/observability"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

var errNoRedis = errors.New("rate limit store not configured")

// RateLimiter counts mutations per identity in fixed Redis windows.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter returns a limiter for env. Local environments ("development",
// "test" or empty) are never throttled.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch env {
	case "", "development", "test":
		return &RateLimiter{rdb: rdb}
	}
	return &RateLimiter{rdb: rdb, enabled: true}
}

// Allow counts one hit of resource by id and reports whether it is within
// limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	if l.rdb == nil {
		return false, errNoRedis
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(limit), nil
}

// Limit returns a FailOpen middleware enforcing limit requests per window on resource.
func (l *RateLimiter) Limit(resource string, limit int, window time.Duration) fiber.Handler {
	return l.LimitWithPolicy(resource, limit, window, FailOpen)
}

// LimitWithPolicy is Limit with an explicit policy for an unavailable store.
// Requests are keyed by signed-in user, then browser session, then IP.
func (l *RateLimiter) LimitWithPolicy(resource string, limit int, window time.Duration, policy FailPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, err := l.Allow(c.UserContext(), resource, rateLimitIdentity(c), limit, window)
		if err != nil {
			if policy == FailClosed {
				observability.Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					slog.String("resource", resource), slog.String("error", err.Error()))
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					models.NewInternalError(errors.New("rate limit unavailable")))
			}
			return c.Next()
		}

		if !allowed {
			observability.RateLimited.WithLabelValues(resource).Inc()
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		}
		return c.Next()
	}
}

func rateLimitIdentity(c *fiber.Ctx) string {
	if user, ok := c.Locals(LocalUser).(*models.User); ok && user != nil {
		return "user:" + user.ID
	}
	if sid := c.Cookies(SessionCookie); sid != "" {
		return "sid:" + sid
	}
	return "ip:" + c.IP()
}
