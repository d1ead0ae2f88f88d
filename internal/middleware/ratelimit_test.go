package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name          string
		env           string
		nilRedis      bool
		expectedAllow bool
		expectError   bool
	}{
		{name: "test environment bypass", env: "test", nilRedis: true, expectedAllow: true},
		{name: "development environment bypass", env: "development", nilRedis: true, expectedAllow: true},
		{name: "empty environment bypass", env: "", nilRedis: true, expectedAllow: true},
		{name: "nil redis in production", env: "production", nilRedis: true, expectError: true},
		{name: "first request in production", env: "production", expectedAllow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rdb *redis.Client
			if !tt.nilRedis {
				_, rdb = setupRedis(t)
			}

			allowed, err := NewRateLimiter(rdb, tt.env).Allow(context.Background(), "create_post", "ip:1", 1, time.Minute)
			if tt.expectError {
				assert.Error(t, err)
				assert.False(t, allowed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAllow, allowed)
		})
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	mr, rdb := setupRedis(t)
	limiter := NewRateLimiter(rdb, "production")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "comment", "user:u1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "comment", "user:u2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "limits are per identity")

	mr.FastForward(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Limit(t *testing.T) {
	_, rdb := setupRedis(t)
	limiter := NewRateLimiter(rdb, "production")

	app := fiber.New()
	app.Post("/community/create", limiter.Limit("create_community", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/community/create", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/community/create", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

	// A different browser session has its own budget.
	req := httptest.NewRequest(fiber.MethodPost, "/community/create", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "other-session"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestRateLimiter_FailPolicies(t *testing.T) {
	mr, rdb := setupRedis(t)
	limiter := NewRateLimiter(rdb, "production")
	mr.Close()

	closed := fiber.New()
	closed.Post("/x", limiter.LimitWithPolicy("x", 5, time.Minute, FailClosed), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	open := fiber.New()
	open.Post("/x", limiter.Limit("x", 5, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := closed.Test(httptest.NewRequest(fiber.MethodPost, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = open.Test(httptest.NewRequest(fiber.MethodPost, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
