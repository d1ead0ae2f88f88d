package session

import (
	"context"
	"sync"

	"nexora/internal/remote"
)

// MemoryStore keeps sessions in process. Used when Redis is unavailable and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]remote.Session
	verifiers map[string]string
	events    *fanout
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]remote.Session),
		verifiers: make(map[string]string),
		events:    newFanout(),
	}
}

// Load returns the stored session or nil.
func (s *MemoryStore) Load(_ context.Context, sid string) (*remote.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// Save stores sess and notifies listeners.
func (s *MemoryStore) Save(_ context.Context, sid string, sess *remote.Session, event EventType) error {
	s.mu.Lock()
	s.sessions[sid] = *sess
	s.mu.Unlock()
	s.events.publish(Event{SID: sid, Type: event})
	return nil
}

// Clear removes the session and notifies listeners.
func (s *MemoryStore) Clear(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	s.events.publish(Event{SID: sid, Type: EventSignedOut})
	return nil
}

// Subscribe listens for changes to sid.
func (s *MemoryStore) Subscribe(sid string) (<-chan Event, func()) {
	return s.events.subscribe(sid)
}

// SaveVerifier keeps a pending PKCE verifier.
func (s *MemoryStore) SaveVerifier(_ context.Context, sid, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiers[sid] = verifier
	return nil
}

// TakeVerifier returns and forgets the pending verifier.
func (s *MemoryStore) TakeVerifier(_ context.Context, sid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.verifiers[sid]
	delete(s.verifiers, sid)
	return v, nil
}
