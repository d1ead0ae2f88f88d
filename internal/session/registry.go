package session

import (
	"context"
	"sync"
	"time"

	"nexora/internal/observability"
)

// Registry maps browser session ids to mounted holders.
type Registry struct {
	deps Deps
	idle time.Duration

	mu      sync.Mutex
	holders map[string]*Holder
	closed  bool
}

// NewRegistry creates a registry whose holders share deps. Holders unused for
// longer than idle are closed by Sweep; zero disables eviction.
func NewRegistry(deps Deps, idle time.Duration) *Registry {
	return &Registry{
		deps:    deps,
		idle:    idle,
		holders: make(map[string]*Holder),
	}
}

// Get returns the holder for sid, mounting it on first use. It returns nil
// after Close.
func (r *Registry) Get(sid string) *Holder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if h, ok := r.holders[sid]; ok {
		h.touch()
		return h
	}
	h := Mount(sid, r.deps)
	r.holders[sid] = h
	observability.SessionHolders.Inc()
	return h
}

// Len returns the number of mounted holders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}

// Sweep closes holders idle since before now-idle and returns how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idle)

	r.mu.Lock()
	var evicted []*Holder
	for sid, h := range r.holders {
		if h.IdleSince().Before(cutoff) {
			evicted = append(evicted, h)
			delete(r.holders, sid)
		}
	}
	r.mu.Unlock()

	for _, h := range evicted {
		h.Close()
		observability.SessionHolders.Dec()
	}
	return len(evicted)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idle <= 0 {
		return
	}
	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				observability.Component("session").Debug("evicted idle session holders", "count", n)
			}
		}
	}
}

// Close unmounts every holder. Further Get calls return nil.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	holders := r.holders
	r.holders = make(map[string]*Holder)
	r.mu.Unlock()

	for _, h := range holders {
		h.Close()
		observability.SessionHolders.Dec()
	}
}
