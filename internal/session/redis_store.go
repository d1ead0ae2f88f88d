package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"nexora/internal/cache"
	"nexora/internal/observability"
	"nexora/internal/remote"
)

const (
	sessionKeyPrefix  = "session:"
	verifierKeyPrefix = "session:pkce:"
	eventsChannel     = "session:events:"

	// SessionTTL bounds how long an unused browser session is kept.
	SessionTTL  = 7 * 24 * time.Hour
	verifierTTL = 10 * time.Minute
)

// RedisStore persists sessions as JSON in Redis and publishes changes on
// "session:events:<sid>". One pattern subscription per process feeds all local listeners.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	events *fanout
	logger *slog.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// NewRedisStore creates a store on rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		ttl:     SessionTTL,
		events:  newFanout(),
		logger:  observability.Component("session_store"),
		stopped: make(chan struct{}),
	}
}

func sessionKey(sid string) string { return sessionKeyPrefix + sid }

// Load returns the stored session or nil.
func (s *RedisStore) Load(ctx context.Context, sid string) (*remote.Session, error) {
	var sess remote.Session
	found, err := cache.GetJSON(ctx, s.rdb, sessionKey(sid), &sess)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

// Save stores sess and publishes event.
func (s *RedisStore) Save(ctx context.Context, sid string, sess *remote.Session, event EventType) error {
	if err := cache.SetJSON(ctx, s.rdb, sessionKey(sid), sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return s.publish(ctx, Event{SID: sid, Type: event})
}

// Clear deletes the session and publishes SIGNED_OUT.
func (s *RedisStore) Clear(ctx context.Context, sid string) error {
	if err := s.rdb.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return s.publish(ctx, Event{SID: sid, Type: EventSignedOut})
}

func (s *RedisStore) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	return s.rdb.Publish(ctx, eventsChannel+ev.SID, payload).Err()
}

// Subscribe listens for changes to sid. The first call starts the process-wide subscriber.
func (s *RedisStore) Subscribe(sid string) (<-chan Event, func()) {
	s.startOnce.Do(s.start)
	return s.events.subscribe(sid)
}

func (s *RedisStore) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	sub := s.rdb.PSubscribe(ctx, eventsChannel+"*")
	// wait for the subscription so events published right after Subscribe are seen
	if _, err := sub.Receive(ctx); err != nil {
		s.logger.Warn("session event subscription failed", slog.String("error", err.Error()))
	}
	ch := sub.Channel()

	go func() {
		defer close(s.stopped)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.dispatch(msg)
			}
		}
	}()
}

func (s *RedisStore) dispatch(msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in session event dispatch", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		s.logger.Warn("malformed session event", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
		return
	}
	if ev.SID == "" {
		ev.SID = strings.TrimPrefix(msg.Channel, eventsChannel)
	}
	s.events.publish(ev)
}

// SaveVerifier keeps a pending PKCE verifier for a short time.
func (s *RedisStore) SaveVerifier(ctx context.Context, sid, verifier string) error {
	return s.rdb.Set(ctx, verifierKeyPrefix+sid, verifier, verifierTTL).Err()
}

// TakeVerifier returns and deletes the pending verifier; empty when none.
func (s *RedisStore) TakeVerifier(ctx context.Context, sid string) (string, error) {
	v, err := s.rdb.GetDel(ctx, verifierKeyPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// Close stops the event subscriber.
func (s *RedisStore) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.stopped
}
