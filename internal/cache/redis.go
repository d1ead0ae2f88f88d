// Package cache provides Redis connection and JSON helpers shared by the
// query tier, the session store and the rate limiter.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"nexora/internal/observability"
)

// metricsHook counts failed commands. redis.Nil is a cache miss, not an error.
type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// Connect opens a Redis client for addr (host:port or redis:// URL) and pings it.
// It returns nil when Redis is unreachable; callers fall back to memory only.
func Connect(addr string) *redis.Client {
	logger := observability.Component("cache")
	if strings.TrimSpace(addr) == "" {
		logger.Info("redis disabled: no address configured")
		return nil
	}

	// Accept both a bare host:port and a full redis:// URL
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid REDIS_URL, continuing without redis", slog.String("addr", addr), slog.String("error", err.Error()))
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := Wrap(redis.NewClient(opts))

	// Ping once so a dead server disables redis up front
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without redis", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}

// Wrap installs the error-counting hook on an existing client.
func Wrap(client *redis.Client) *redis.Client {
	client.AddHook(metricsHook{})
	return client
}
