// Package middleware provides the Fiber middleware shared by every route.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"nexora/internal/observability"
)

// Fiber locals set by the middleware chain.
const (
	LocalRequestID = "requestid"
	LocalTraceID   = "traceID"
	LocalSession   = "session"
	LocalSessionID = "sessionID"
	LocalUser      = "user"
)

// ContextMiddleware copies the request and trace ids from Fiber locals into the
// request context so the context-aware logger picks them up in deeper layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals(LocalRequestID).(string); ok && rid != "" {
			ctx = observability.WithValue(ctx, observability.RequestIDKey, rid)
		}
		if tid, ok := c.Locals(LocalTraceID).(string); ok && tid != "" {
			ctx = observability.WithValue(ctx, observability.TraceIDKey, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		// *Context variants so request, session and user ids are attached
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}
