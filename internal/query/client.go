// Package query is the data-fetch cache: keyed results with single-flight
// producers, stale-while-refresh reads, prefix invalidation and state
// subscriptions for views.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"nexora/internal/observability"
)

// Status is the render state of a key.
type Status string

// Statuses a view renders exactly one of.
const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// State is a snapshot of one key.
type State struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Producer fetches the value for a key.
type Producer func(ctx context.Context) (any, error)

// Query couples a key with its producer. Decode, when set, lets a first read be
// served from the second tier.
type Query struct {
	Key    Key
	Fn     Producer
	Decode func([]byte) (any, error)
}

type entry struct {
	key   Key
	query Query

	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time

	invalidated bool
	generation  uint64

	subs map[*subscriber]struct{}
}

func (e *entry) snapshot() State {
	s := State{Key: e.key.String(), Status: e.status, UpdatedAt: e.updatedAt}
	if e.hasData {
		s.Data = e.data
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// Client is the cache. The zero value is not usable; call New.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	staleTime time.Duration
	tier      Tier
	now       func() time.Time
	logger    *slog.Logger

	// tierMu orders tier writes against invalidation: writers hold it shared
	// while checking their generation, Invalidate holds it exclusively.
	tierMu sync.RWMutex

	// refreshes tracks background work so Close can wait for it.
	refreshes sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithStaleTime sets how long a result is served before a background refresh
// starts. Zero means results are never refreshed in the background.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

// WithTier adds a second-level store.
func WithTier(t Tier) Option {
	return func(c *Client) { c.tier = t }
}

// WithRedis adds a Redis second tier when rdb is non-nil.
func WithRedis(rdb *redis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		if rdb != nil {
			c.tier = NewRedisTier(rdb, ttl)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a cache client.
func New(opts ...Option) *Client {
	c := &Client{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  observability.Component("query"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) entryLocked(q Query) *entry {
	id := q.Key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: q.Key, status: StatusLoading, subs: map[*subscriber]struct{}{}}
		c.entries[id] = e
	}
	if q.Fn != nil {
		e.query = q
	}
	return e
}

// Fetch returns the value for q.Key, calling q.Fn when there is no usable
// result. Concurrent callers for one key share a single producer call. A result
// older than the stale time is returned as-is while a refresh runs in the
// background. The producer runs detached from ctx cancellation; ctx only bounds
// how long this caller waits.
func (c *Client) Fetch(ctx context.Context, q Query) (any, error) {
	if len(q.Key) == 0 || q.Fn == nil {
		return nil, errors.New("query: key and producer are required")
	}

	c.mu.Lock()
	e := c.entryLocked(q)
	if e.hasData && !e.invalidated {
		data := e.data
		stale := c.staleTime > 0 && c.now().Sub(e.updatedAt) >= c.staleTime
		c.mu.Unlock()

		observability.QueryCacheEvents.WithLabelValues("hit").Inc()
		if stale {
			observability.QueryCacheEvents.WithLabelValues("stale").Inc()
			c.refreshInBackground(ctx, q)
		}
		return data, nil
	}
	useTier := !e.invalidated && !e.hasData && q.Decode != nil
	c.mu.Unlock()

	observability.QueryCacheEvents.WithLabelValues("miss").Inc()
	return c.load(ctx, q, useTier)
}

func (c *Client) refreshInBackground(ctx context.Context, q Query) {
	detached := context.WithoutCancel(ctx)
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		if _, err := c.load(detached, q, false); err != nil {
			c.logger.WarnContext(detached, "background refresh failed",
				slog.String("key", q.Key.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// load joins or starts the in-flight producer call for q.Key.
func (c *Client) load(ctx context.Context, q Query, useTier bool) (any, error) {
	id := q.Key.String()
	ch := c.group.DoChan(id, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		gen := c.begin(q)
		v, fromTier, err := c.produce(detached, q, useTier)
		if err == nil && !fromTier {
			c.storeTier(detached, id, gen, q.Key, v)
		}
		c.complete(id, gen, v, err)
		return v, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			observability.QueryCacheEvents.WithLabelValues("dedup").Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) begin(q Query) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(q)
	e.generation++
	e.status = StatusLoading
	c.notifyLocked(e)
	return e.generation
}

// produce reports whether the value came from the second tier.
func (c *Client) produce(ctx context.Context, q Query, useTier bool) (any, bool, error) {
	if useTier && c.tier != nil {
		raw, found, err := c.tier.Get(ctx, q.Key)
		if err != nil {
			c.logger.WarnContext(ctx, "query tier read failed", slog.String("key", q.Key.String()), slog.String("error", err.Error()))
		}
		if found {
			if v, err := q.Decode(raw); err == nil {
				observability.QueryCacheEvents.WithLabelValues("tier_hit").Inc()
				return v, true, nil
			}
		}
	}

	v, err := q.Fn(ctx)
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// storeTier writes a fresh result to the second tier unless the key was
// invalidated while its producer ran.
func (c *Client) storeTier(ctx context.Context, id string, gen uint64, key Key, v any) {
	if c.tier == nil {
		return
	}
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	c.mu.Lock()
	e, ok := c.entries[id]
	current := ok && e.generation == gen
	c.mu.Unlock()
	if !current {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.tier.Set(ctx, key, raw); err != nil {
		c.logger.WarnContext(ctx, "query tier write failed", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
}

// complete records a producer result unless a newer generation has started.
func (c *Client) complete(id string, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || e.generation != gen {
		observability.QueryCacheEvents.WithLabelValues("discard").Inc()
		return
	}

	if err != nil {
		observability.QueryCacheEvents.WithLabelValues("error").Inc()
		e.status = StatusError
		e.err = err
	} else {
		e.status = StatusSuccess
		e.data = v
		e.hasData = true
		e.err = nil
		e.updatedAt = c.now()
		e.invalidated = false
	}
	c.notifyLocked(e)
}

// Invalidate marks every entry whose key starts with prefix as stale so the
// next read re-fetches, and drops the second-tier copies. Entries with live
// subscribers are re-fetched right away.
func (c *Client) Invalidate(ctx context.Context, prefix Key) {
	var active []Query

	c.tierMu.Lock()
	c.mu.Lock()
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		// results of fetches already in flight are now outdated
		e.generation++
		c.group.Forget(id)
		observability.QueryCacheEvents.WithLabelValues("invalidate").Inc()
		if len(e.subs) > 0 && e.query.Fn != nil {
			active = append(active, e.query)
		}
	}
	c.mu.Unlock()

	if c.tier != nil {
		if err := c.tier.DeleteTree(ctx, prefix); err != nil {
			c.logger.WarnContext(ctx, "query tier invalidation failed", slog.String("key", prefix.String()), slog.String("error", err.Error()))
		}
	}
	c.tierMu.Unlock()

	for _, q := range active {
		c.refreshInBackground(ctx, q)
	}
}

// Peek returns the current state of key without fetching.
func (c *Client) Peek(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{}, false
	}
	return e.snapshot(), true
}

// Wait blocks until background refreshes started so far have finished.
func (c *Client) Wait() {
	c.refreshes.Wait()
}
