// Package session keeps the signed-in identity of each browser session and
// keeps it in sync with the auth service.
package session

import (
	"context"
	"sync"

	"nexora/internal/remote"
)

// EventType names a session change, using the auth service's vocabulary.
type EventType string

// Session change events.
const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event tells holders of a browser session that its stored session changed.
// It carries no tokens; holders reload from the store.
type Event struct {
	SID  string    `json:"sid"`
	Type EventType `json:"type"`
}

// Store persists per-browser sessions and fans out change notifications.
type Store interface {
	Load(ctx context.Context, sid string) (*remote.Session, error)
	Save(ctx context.Context, sid string, sess *remote.Session, event EventType) error
	Clear(ctx context.Context, sid string) error
	Subscribe(sid string) (<-chan Event, func())

	// SaveVerifier keeps the PKCE verifier of a pending sign-in.
	SaveVerifier(ctx context.Context, sid, verifier string) error
	// TakeVerifier returns and deletes the pending verifier.
	TakeVerifier(ctx context.Context, sid string) (string, error)
}

const listenerBuffer = 8

type listener struct {
	ch   chan Event
	once sync.Once
}

func (l *listener) deliver(ev Event) {
	for {
		select {
		case l.ch <- ev:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// fanout routes events to the listeners of one sid.
type fanout struct {
	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
}

func newFanout() *fanout {
	return &fanout{listeners: make(map[string]map[*listener]struct{})}
}

func (f *fanout) subscribe(sid string) (<-chan Event, func()) {
	l := &listener{ch: make(chan Event, listenerBuffer)}
	f.mu.Lock()
	if f.listeners[sid] == nil {
		f.listeners[sid] = make(map[*listener]struct{})
	}
	f.listeners[sid][l] = struct{}{}
	f.mu.Unlock()

	return l.ch, func() {
		l.once.Do(func() {
			f.mu.Lock()
			delete(f.listeners[sid], l)
			if len(f.listeners[sid]) == 0 {
				delete(f.listeners, sid)
			}
			close(l.ch)
			f.mu.Unlock()
		})
	}
}

func (f *fanout) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for l := range f.listeners[ev.SID] {
		l.deliver(ev)
	}
}

func (f *fanout) count(sid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[sid])
}
