// Package remote is the client for the hosted backend: PostgREST tables,
// object storage and GoTrue auth, all reached over HTTPS with the project's
// public API key.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nexora/internal/observability"
)

// Service path prefixes under the project URL.
const (
	restPrefix    = "/rest/v1"
	storagePrefix = "/storage/v1"
	authPrefix    = "/auth/v1"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// Timeout of zero keeps net/http's default of no client timeout.
	Timeout time.Duration
	// Transport overrides the underlying round tripper; it is still wrapped for tracing.
	Transport http.RoundTripper
}

// Client is a configured handle to the remote service. It is safe for concurrent use
// and is meant to be constructed once at process start.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the project at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL: base,
		apiKey:  opts.APIKey,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: observability.Component("remote"),
	}, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type accessTokenKey struct{}

// WithAccessToken makes calls made with ctx act as the signed-in user instead of the anon role.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFrom returns the user access token stored on ctx, if any.
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// request is a single HTTP exchange with the remote service.
type request struct {
	service   string
	operation string
	method    string
	path      string
	query     url.Values
	header    http.Header
	body      io.Reader
	// bearer overrides the context access token when set.
	bearer string
}

func (c *Client) newHTTPRequest(ctx context.Context, r request) (*http.Request, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	token := r.bearer
	if token == "" {
		token = AccessTokenFrom(ctx)
	}
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

// do performs r and decodes a JSON response into dest (which may be nil).
// Any non-2xx response is returned as an *APIError.
func (c *Client) do(ctx context.Context, r request, dest any) (err error) {
	done := observability.TrackRemote(r.service, r.operation)
	defer func() { done(err) }()

	req, err := c.newHTTPRequest(ctx, r)
	if err != nil {
		return fmt.Errorf("remote: build %s request: %w", r.operation, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", r.operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s response: %w", r.operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, payload)
		c.logger.DebugContext(ctx, "remote call failed",
			slog.String("service", r.service),
			slog.String("operation", r.operation),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}

	if dest == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("remote: decode %s response: %w", r.operation, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
