package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/observability"
)

func TestContextMiddleware_PropagatesIDs(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(TracingMiddleware())
	app.Use(ContextMiddleware())
	app.Use(StructuredLogger())

	var requestID, traceID string
	app.Get("/", func(c *fiber.Ctx) error {
		requestID, _ = c.UserContext().Value(observability.RequestIDKey).(string)
		traceID, _ = c.UserContext().Value(observability.TraceIDKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", requestID)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, resp.Header.Get("X-Trace-ID"))
}
