package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"nexora/internal/observability"
	"nexora/internal/query"
)

const streamWriteTimeout = 10 * time.Second

// streamCommand is sent by the client over the query stream.
type streamCommand struct {
	Action string `json:"action"`
}

// loaderFor maps a cache key to the read that populates it. Streams only
// carry shared data, so per-user fields are computed for no user.
func (s *Server) loaderFor(key query.Key) (func(context.Context) error, error) {
	var id int64
	if len(key) == 2 {
		n, err := strconv.ParseInt(key[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid id in key %q", key.String())
		}
		id = n
	}

	switch {
	case len(key) == 1 && key[0] == "posts":
		return func(ctx context.Context) error { _, err := s.postService.ListPosts(ctx); return err }, nil
	case len(key) == 1 && key[0] == "communities":
		return func(ctx context.Context) error { _, err := s.communityService.ListCommunities(ctx); return err }, nil
	case len(key) == 2 && key[0] == "community":
		return func(ctx context.Context) error { _, err := s.communityService.GetCommunity(ctx, id); return err }, nil
	case len(key) == 2 && key[0] == "communityPost":
		return func(ctx context.Context) error { _, err := s.postService.ListCommunityPosts(ctx, id); return err }, nil
	case len(key) == 2 && key[0] == "post":
		return func(ctx context.Context) error { _, err := s.postService.GetPost(ctx, id); return err }, nil
	case len(key) == 2 && key[0] == "likes":
		return func(ctx context.Context) error { _, err := s.likeService.State(ctx, id, nil); return err }, nil
	case len(key) == 2 && key[0] == "comments":
		return func(ctx context.Context) error { _, err := s.commentService.Thread(ctx, id); return err }, nil
	}
	return nil, fmt.Errorf("unknown key %q", key.String())
}

// QueryStreamHandler handles GET /ws/query?key=<key>. It streams every state
// transition (loading, error, success) of one cache key. Sending
// {"action":"refetch"} invalidates the key, which refetches it.
func (s *Server) QueryStreamHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.ActiveWebSockets.Inc()
		defer observability.ActiveWebSockets.Dec()
		defer func() { _ = conn.Close() }()

		ctx := s.shutdownCtx
		logger := s.logger.With(slog.String("stream", "query"))

		key := query.ParseKey(conn.Query("key"))
		load, err := s.loaderFor(key)
		if err != nil {
			_ = conn.WriteJSON(fiber.Map{"error": err.Error()})
			return
		}

		states, unsubscribe := s.queries.Subscribe(key)
		defer unsubscribe()

		// Reader: commands from the client; a read error ends the stream.
		go func() {
			defer unsubscribe()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var cmd streamCommand
				if json.Unmarshal(msg, &cmd) != nil {
					continue
				}
				if cmd.Action == "refetch" {
					s.queries.Invalidate(ctx, key)
				}
			}
		}()

		go func() {
			if err := load(ctx); err != nil {
				logger.DebugContext(ctx, "initial load failed", slog.String("key", key.String()), slog.String("error", err.Error()))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(st); err != nil {
					logger.DebugContext(ctx, "stream write failed", slog.String("error", err.Error()))
					return
				}
			}
		}
	})
}
