package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:            "8375",
		Env:             "development",
		SupabaseURL:     "https://example.supabase.co",
		SupabaseAnonKey: "anon",
		StorageBucket:   "post-images",
		DataBackend:     BackendREST,
		UploadMaxSizeMB: 10,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid rest config", func(_ *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing bucket", func(c *Config) { c.StorageBucket = "" }, true},
		{"unknown backend", func(c *Config) { c.DataBackend = "mongo" }, true},
		{"postgres without url", func(c *Config) { c.DataBackend = BackendPostgres }, true},
		{"postgres with url", func(c *Config) {
			c.DataBackend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/nexora"
		}, false},
		{"zero upload size", func(c *Config) { c.UploadMaxSizeMB = 0 }, true},
		{"negative stale time", func(c *Config) { c.QueryStaleSeconds = -1 }, true},
		{"production without anon key", func(c *Config) {
			c.Env = "production"
			c.SupabaseAnonKey = ""
		}, true},
		{"production with short jwt secret", func(c *Config) {
			c.Env = "prod"
			c.SupabaseJWTSecret = "short"
		}, true},
		{"production with strong jwt secret", func(c *Config) {
			c.Env = "production"
			c.SupabaseJWTSecret = "a-very-long-jwt-secret-of-at-least-32-chars"
			c.CookieSecure = true
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := &Config{QueryStaleSeconds: 30, QueryCacheTTLMinute: 2, SessionIdleMinutes: 15, RemoteTimeoutSeconds: 0}
	assert.Equal(t, 30*time.Second, c.QueryStaleTime())
	assert.Equal(t, 2*time.Minute, c.QueryCacheTTL())
	assert.Equal(t, 15*time.Minute, c.SessionIdleTimeout())
	assert.Zero(t, c.RemoteTimeout())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("DATA_BACKEND", "  REST ")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("PUBLIC_BASE_URL", "http://localhost:9000/")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendREST, c.DataBackend)
	assert.Equal(t, "https://project.supabase.co", c.SupabaseURL)
	assert.Equal(t, "http://localhost:9000/auth/callback", c.OAuthRedirectURL())
	assert.Equal(t, "post-images", c.StorageBucket)
	assert.Equal(t, "github", c.OAuthProvider)
}
