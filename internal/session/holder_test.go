package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nexora/internal/remote"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) SignInWithOAuth(provider, redirectTo string) (*remote.OAuthStart, error) {
	args := m.Called(provider, redirectTo)
	s, _ := args.Get(0).(*remote.OAuthStart)
	return s, args.Error(1)
}

func (m *mockAuth) ExchangeCode(ctx context.Context, code, verifier string) (*remote.Session, error) {
	args := m.Called(ctx, code, verifier)
	s, _ := args.Get(0).(*remote.Session)
	return s, args.Error(1)
}

func (m *mockAuth) Refresh(ctx context.Context, refreshToken string) (*remote.Session, error) {
	args := m.Called(ctx, refreshToken)
	s, _ := args.Get(0).(*remote.Session)
	return s, args.Error(1)
}

func (m *mockAuth) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func testSession(access, refresh string) *remote.Session {
	return &remote.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User: remote.AuthUser{
			ID:           "u-1",
			Email:        "dev@example.com",
			UserMetadata: map[string]any{"user_name": "octocat", "avatar_url": "https://avatars/1"},
		},
	}
}

func waitState(t *testing.T, h *Holder) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err)
	return st
}

// blockingStore delays the first Load until released.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Load(ctx context.Context, sid string) (*remote.Session, error) {
	<-s.release
	return s.MemoryStore.Load(ctx, sid)
}

func TestHolder_ReadsBeforeInitializationDoNotBlock(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	h := Mount("sid-1", Deps{Store: store, Auth: &mockAuth{}})
	defer h.Close()

	assert.Equal(t, Uninitialized, h.State().Phase)
	assert.Nil(t, h.User())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	st, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Uninitialized, st.Phase)

	close(store.release)
	assert.Equal(t, Anonymous, waitState(t, h).Phase)
}

func TestHolder_InitialSessionIsApplied(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "sid-1", testSession("at", "rt"), EventSignedIn))

	h := Mount("sid-1", Deps{Store: store, Auth: &mockAuth{}})
	defer h.Close()

	st := waitState(t, h)
	assert.Equal(t, Authenticated, st.Phase)
	require.NotNil(t, st.User)
	assert.Equal(t, "octocat", st.User.UserName)

	token, err := h.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", token)
}

func TestHolder_SignInFlowNotifiesOtherHolders(t *testing.T) {
	store := NewMemoryStore()
	auth := &mockAuth{}
	auth.On("SignInWithOAuth", "github", "http://localhost/auth/callback").
		Return(&remote.OAuthStart{URL: "https://idp/authorize", Verifier: "v-1"}, nil)
	auth.On("ExchangeCode", mock.Anything, "code-1", "v-1").Return(testSession("at", "rt"), nil)

	deps := Deps{Store: store, Auth: auth, Provider: "github", RedirectURL: "http://localhost/auth/callback"}
	h := Mount("sid-1", deps)
	defer h.Close()
	other := Mount("sid-1", deps)
	defer other.Close()
	assert.Equal(t, Anonymous, waitState(t, h).Phase)
	assert.Equal(t, Anonymous, waitState(t, other).Phase)

	url, err := h.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://idp/authorize", url)

	user, err := h.CompleteSignIn(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.DisplayName())
	assert.Equal(t, Authenticated, h.State().Phase)

	assert.Eventually(t, func() bool {
		return other.State().Phase == Authenticated
	}, time.Second, 5*time.Millisecond)

	_, err = h.CompleteSignIn(context.Background(), "code-1")
	assert.Error(t, err, "the verifier is single use")
	auth.AssertExpectations(t)
}

func TestHolder_SignOutIsAnonymousEvenWhenRemoteFails(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "sid-1", testSession("at", "rt"), EventSignedIn))

	auth := &mockAuth{}
	auth.On("SignOut", mock.Anything, "at").Return(errors.New("network unreachable"))

	h := Mount("sid-1", Deps{Store: store, Auth: auth})
	defer h.Close()
	require.Equal(t, Authenticated, waitState(t, h).Phase)

	err := h.SignOut(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network unreachable")
	assert.Equal(t, Anonymous, h.State().Phase)

	stored, err := store.Load(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestHolder_SignOutWhenAnonymousSkipsRemote(t *testing.T) {
	auth := &mockAuth{}
	h := Mount("sid-1", Deps{Store: NewMemoryStore(), Auth: auth})
	defer h.Close()
	waitState(t, h)

	require.NoError(t, h.SignOut(context.Background()))
	assert.Equal(t, Anonymous, h.State().Phase)
	auth.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
}

func TestHolder_SignOutAfterCloseStillClears(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "sid-1", testSession("at", "rt"), EventSignedIn))
	auth := &mockAuth{}
	auth.On("SignOut", mock.Anything, "at").Return(nil)

	h := Mount("sid-1", Deps{Store: store, Auth: auth})
	waitState(t, h)
	h.Close()

	require.NoError(t, h.SignOut(context.Background()))
	assert.Equal(t, Anonymous, h.State().Phase)
}

func TestHolder_ExpiredTokenIsRefreshedOnce(t *testing.T) {
	store := NewMemoryStore()
	expired := testSession(signToken(t, "u-1", time.Now().Add(-time.Minute)), "rt-old")
	require.NoError(t, store.Save(context.Background(), "sid-1", expired, EventSignedIn))

	freshToken := signToken(t, "u-1", time.Now().Add(time.Hour))
	auth := &mockAuth{}
	auth.On("Refresh", mock.Anything, "rt-old").Return(testSession(freshToken, "rt-new"), nil).Once()

	h := Mount("sid-1", Deps{Store: store, Auth: auth, Verifier: NewTokenVerifier(testSecret)})
	defer h.Close()

	assert.Equal(t, Authenticated, waitState(t, h).Phase)

	token, err := h.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, freshToken, token)

	stored, err := store.Load(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-new", stored.RefreshToken)
	auth.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestHolder_FailedRefreshSignsOut(t *testing.T) {
	store := NewMemoryStore()
	expired := testSession(signToken(t, "u-1", time.Now().Add(-time.Minute)), "rt-old")
	require.NoError(t, store.Save(context.Background(), "sid-1", expired, EventSignedIn))

	auth := &mockAuth{}
	auth.On("Refresh", mock.Anything, "rt-old").Return(nil, errors.New("Invalid Refresh Token")).Once()

	h := Mount("sid-1", Deps{Store: store, Auth: auth, Verifier: NewTokenVerifier(testSecret)})
	defer h.Close()

	assert.Equal(t, Anonymous, waitState(t, h).Phase)
	_, err := h.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestHolder_ForgedTokenIsRejected(t *testing.T) {
	store := NewMemoryStore()
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("some-other-secret-of-sufficient-length!!"))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "sid-1", testSession(forged, "rt"), EventSignedIn))

	h := Mount("sid-1", Deps{Store: store, Auth: &mockAuth{}, Verifier: NewTokenVerifier(testSecret)})
	defer h.Close()

	assert.Equal(t, Anonymous, waitState(t, h).Phase)
}

func TestHolder_CloseReleasesSubscription(t *testing.T) {
	store := NewMemoryStore()
	h := Mount("sid-1", Deps{Store: store, Auth: &mockAuth{}})
	waitState(t, h)
	assert.Equal(t, 1, store.events.count("sid-1"))

	h.Close()
	h.Close()

	select {
	case <-h.Done():
	default:
		t.Fatal("holder still running after Close")
	}
	assert.Equal(t, 0, store.events.count("sid-1"))
}

func TestTokenVerifier(t *testing.T) {
	assert.Nil(t, NewTokenVerifier(""))

	v := NewTokenVerifier(testSecret)
	claims, err := v.Verify(signToken(t, "u-9", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u-9", claims.Subject)
	assert.Equal(t, "u-9@example.com", claims.Email)

	_, err = v.Verify(signToken(t, "u-9", time.Now().Add(-time.Hour)))
	assert.True(t, IsExpired(err))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u-9"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.Error(t, err)
	assert.False(t, IsExpired(err))
}

func TestPhase_JSON(t *testing.T) {
	b, err := Anonymous.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(b))
	assert.Equal(t, "uninitialized", Uninitialized.String())
}
