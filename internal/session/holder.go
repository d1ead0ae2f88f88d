package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/remote"
)

// Phase is the identity state of a holder.
type Phase int

// Holder phases.
const (
	Uninitialized Phase = iota
	Authenticated
	Anonymous
)

func (p Phase) String() string {
	switch p {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the phase name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a read-only snapshot of the held identity.
type State struct {
	Phase Phase        `json:"phase"`
	User  *models.User `json:"user,omitempty"`
}

// ErrNoSession is returned when an operation needs a signed-in session.
var ErrNoSession = errors.New("session: not signed in")

// Authenticator is the part of the auth service the holder needs.
type Authenticator interface {
	SignInWithOAuth(provider, redirectTo string) (*remote.OAuthStart, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*remote.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*remote.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Deps are shared by every holder of a registry.
type Deps struct {
	Store       Store
	Auth        Authenticator
	Verifier    *TokenVerifier
	Provider    string
	RedirectURL string
	Now         func() time.Time
}

type command struct {
	fn  func()
	ack chan struct{}
}

// Holder owns the identity of one browser session. Its sync goroutine is the
// only writer; any goroutine may read.
type Holder struct {
	sid    string
	deps   Deps
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	session *remote.Session

	ready     chan struct{}
	readyOnce sync.Once

	cmds      chan command
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	refreshMu sync.Mutex
	lastUsed  atomic.Int64
}

// Mount starts a holder for sid: it subscribes to session changes, then loads
// the current session. It returns immediately; State reports Uninitialized
// until the first load completes.
func Mount(sid string, deps Deps) *Holder {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(observability.WithValue(context.Background(), observability.SessionIDKey, sid))
	h := &Holder{
		sid:    sid,
		deps:   deps,
		logger: observability.Component("session"),
		ready:  make(chan struct{}),
		cmds:   make(chan command),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.touch()

	events, unsubscribe := deps.Store.Subscribe(sid)
	go h.run(ctx, events, unsubscribe)
	return h
}

// SID returns the browser session id.
func (h *Holder) SID() string { return h.sid }

func (h *Holder) run(ctx context.Context, events <-chan Event, unsubscribe func()) {
	defer close(h.done)
	defer unsubscribe()

	h.reload(ctx, EventInitialSession)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.cmds:
			cmd.fn()
			close(cmd.ack)
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.reload(ctx, ev.Type)
		}
	}
}

// reload re-reads the stored session and applies it. Runs on the sync goroutine.
func (h *Holder) reload(ctx context.Context, event EventType) {
	sess, err := h.deps.Store.Load(ctx, h.sid)
	if err != nil {
		h.logger.WarnContext(ctx, "session load failed", slog.String("event", string(event)), slog.String("error", err.Error()))
		if h.State().Phase == Uninitialized {
			h.write(nil)
		}
		return
	}

	if sess != nil {
		sess, err = h.validate(ctx, sess)
		if err != nil {
			h.logger.InfoContext(ctx, "stored session rejected", slog.String("error", err.Error()))
			sess = nil
		}
	}
	h.write(sess)
	h.logger.DebugContext(ctx, "session state applied", slog.String("event", string(event)), slog.String("phase", h.State().Phase.String()))
}

// validate checks the access token and refreshes it once when it has expired.
// Invalid sessions are removed from the store.
func (h *Holder) validate(ctx context.Context, sess *remote.Session) (*remote.Session, error) {
	expired, err := h.expired(sess)
	if err != nil {
		_ = h.deps.Store.Clear(ctx, h.sid)
		return nil, err
	}
	if !expired {
		return sess, nil
	}
	return h.refresh(ctx)
}

func (h *Holder) expired(sess *remote.Session) (bool, error) {
	if h.deps.Verifier != nil {
		_, err := h.deps.Verifier.Verify(sess.AccessToken)
		switch {
		case err == nil:
			return false, nil
		case IsExpired(err):
			return true, nil
		default:
			return false, fmt.Errorf("invalid access token: %w", err)
		}
	}
	return sess.Expired(h.deps.Now()), nil
}

// refresh trades the stored refresh token for a new session unless another
// goroutine already did. A failed refresh clears the stored session.
func (h *Holder) refresh(ctx context.Context) (*remote.Session, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	latest, err := h.deps.Store.Load(ctx, h.sid)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrNoSession
	}
	if expired, err := h.expired(latest); err == nil && !expired {
		return latest, nil
	}

	fresh, err := h.deps.Auth.Refresh(ctx, latest.RefreshToken)
	if err != nil {
		_ = h.deps.Store.Clear(ctx, h.sid)
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if err := h.deps.Store.Save(ctx, h.sid, fresh, EventTokenRefreshed); err != nil {
		h.logger.WarnContext(ctx, "refreshed session not persisted", slog.String("error", err.Error()))
	}
	return fresh, nil
}

func (h *Holder) write(sess *remote.Session) {
	h.mu.Lock()
	if sess == nil {
		h.session = nil
		h.state = State{Phase: Anonymous}
	} else {
		cp := *sess
		h.session = &cp
		h.state = State{Phase: Authenticated, User: sess.User.ToModel()}
	}
	h.mu.Unlock()
	h.readyOnce.Do(func() { close(h.ready) })
}

// exec runs fn on the sync goroutine and waits for it. Once the holder is
// closed there is no other writer, so fn runs inline.
func (h *Holder) exec(fn func()) {
	cmd := command{fn: fn, ack: make(chan struct{})}
	select {
	case h.cmds <- cmd:
		<-cmd.ack
	case <-h.done:
		fn()
	}
}

// State returns the current identity without blocking.
func (h *Holder) State() State {
	h.touch()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// User returns the signed-in user or nil.
func (h *Holder) User() *models.User {
	return h.State().User
}

// Wait blocks until the first load has resolved the identity.
func (h *Holder) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.ready:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// AccessToken returns a valid access token, refreshing an expired one once.
func (h *Holder) AccessToken(ctx context.Context) (string, error) {
	h.mu.RLock()
	sess := h.session
	h.mu.RUnlock()
	if sess == nil {
		return "", ErrNoSession
	}

	sess, err := h.validate(ctx, sess)
	if err != nil {
		h.exec(func() { h.write(nil) })
		return "", err
	}
	return sess.AccessToken, nil
}

// SignIn begins the OAuth flow and returns the provider URL to redirect the browser to.
func (h *Holder) SignIn(ctx context.Context) (string, error) {
	start, err := h.deps.Auth.SignInWithOAuth(h.deps.Provider, h.deps.RedirectURL)
	if err != nil {
		return "", err
	}
	if err := h.deps.Store.SaveVerifier(ctx, h.sid, start.Verifier); err != nil {
		return "", fmt.Errorf("save sign-in verifier: %w", err)
	}
	return start.URL, nil
}

// CompleteSignIn exchanges the OAuth code returned to the callback for a session.
func (h *Holder) CompleteSignIn(ctx context.Context, code string) (*models.User, error) {
	verifier, err := h.deps.Store.TakeVerifier(ctx, h.sid)
	if err != nil {
		return nil, fmt.Errorf("load sign-in verifier: %w", err)
	}
	if verifier == "" {
		return nil, errors.New("no sign-in in progress for this session")
	}

	sess, err := h.deps.Auth.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if err := h.deps.Store.Save(ctx, h.sid, sess, EventSignedIn); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	h.exec(func() { h.write(sess) })
	return sess.User.ToModel(), nil
}

// SignOut asks the auth service to invalidate the session, then clears it
// locally. The holder ends up Anonymous even when the remote call fails; that
// failure is still returned.
func (h *Holder) SignOut(ctx context.Context) error {
	h.mu.RLock()
	sess := h.session
	h.mu.RUnlock()

	var remoteErr error
	if sess != nil {
		remoteErr = h.deps.Auth.SignOut(ctx, sess.AccessToken)
	}
	clearErr := h.deps.Store.Clear(ctx, h.sid)
	h.exec(func() { h.write(nil) })

	return errors.Join(remoteErr, clearErr)
}

// Close stops the sync goroutine and releases the subscription. Safe to call repeatedly.
func (h *Holder) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Done is closed once the holder has stopped.
func (h *Holder) Done() <-chan struct{} { return h.done }

func (h *Holder) touch() {
	h.lastUsed.Store(time.Now().UnixNano())
}

// IdleSince returns when the holder was last read.
func (h *Holder) IdleSince() time.Time {
	return time.Unix(0, h.lastUsed.Load())
}
