package remote

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nexora/internal/models"
)

// Session is a GoTrue session: the token pair plus the user it belongs to.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         AuthUser `json:"user"`
}

// Expired reports whether the access token is past its expiry (with a small skew).
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return now.Add(10*time.Second).Unix() >= s.ExpiresAt
}

// AuthUser is the user object returned by the auth service.
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// ToModel flattens provider metadata into the domain user.
func (u AuthUser) ToModel() *models.User {
	user := &models.User{ID: u.ID, Email: u.Email}
	if v, ok := u.UserMetadata["user_name"].(string); ok {
		user.UserName = v
	}
	if v, ok := u.UserMetadata["avatar_url"].(string); ok {
		user.AvatarURL = v
	}
	if user.Email == "" {
		if v, ok := u.UserMetadata["email"].(string); ok {
			user.Email = v
		}
	}
	return user
}

// OAuthStart is the beginning of a PKCE OAuth flow. Verifier must be kept
// server-side until the callback exchanges the code.
type OAuthStart struct {
	URL      string
	Verifier string
}

// Auth is the GoTrue API.
type Auth struct {
	client *Client
}

// Auth returns the auth API of the client.
func (c *Client) Auth() *Auth {
	return &Auth{client: c}
}

func newCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SignInWithOAuth builds the provider authorize URL. No request is made; the
// browser follows the URL.
func (a *Auth) SignInWithOAuth(provider, redirectTo string) (*OAuthStart, error) {
	if provider == "" {
		return nil, errors.New("remote: oauth provider is required")
	}
	verifier, err := newCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("remote: generate code verifier: %w", err)
	}

	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	q.Set("code_challenge", codeChallenge(verifier))
	q.Set("code_challenge_method", "s256")

	return &OAuthStart{
		URL:      a.client.baseURL + authPrefix + "/authorize?" + q.Encode(),
		Verifier: verifier,
	}, nil
}

func (a *Auth) token(ctx context.Context, grant string, payload any) (*Session, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}
	var s Session
	err = a.client.do(ctx, request{
		service:   "auth",
		operation: "token " + grant,
		method:    http.MethodPost,
		path:      authPrefix + "/token",
		query:     url.Values{"grant_type": []string{grant}},
		header:    http.Header{"Content-Type": []string{"application/json"}},
		body:      body,
		bearer:    a.client.apiKey,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return &s, nil
}

// ExchangeCode trades an OAuth authorization code for a session.
func (a *Auth) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if code == "" {
		return nil, errors.New("remote: authorization code is required")
	}
	return a.token(ctx, "pkce", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
}

// Refresh trades a refresh token for a new session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, errors.New("remote: refresh token is required")
	}
	return a.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// GetUser fetches the user that owns accessToken.
func (a *Auth) GetUser(ctx context.Context, accessToken string) (*AuthUser, error) {
	var u AuthUser
	err := a.client.do(ctx, request{
		service:   "auth",
		operation: "user",
		method:    http.MethodGet,
		path:      authPrefix + "/user",
		bearer:    accessToken,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SignOut invalidates the session's refresh tokens remotely.
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	return a.client.do(ctx, request{
		service:   "auth",
		operation: "logout",
		method:    http.MethodPost,
		path:      authPrefix + "/logout",
		query:     url.Values{"scope": []string{"global"}},
		bearer:    accessToken,
	}, nil)
}
