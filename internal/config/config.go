// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Data backends understood by the repository layer.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

const defaultSupabaseURL = "https://zernhagrhrgwxoqgbdrl.supabase.co"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	PublicBaseURL  string `mapstructure:"PUBLIC_BASE_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`

	SupabaseURL       string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey   string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `mapstructure:"SUPABASE_JWT_SECRET"`
	StorageBucket     string `mapstructure:"STORAGE_BUCKET"`
	OAuthProvider     string `mapstructure:"OAUTH_PROVIDER"`
	// RemoteTimeoutSeconds of zero leaves the transport defaults in place.
	RemoteTimeoutSeconds int `mapstructure:"REMOTE_TIMEOUT_SECONDS"`

	DataBackend string `mapstructure:"DATA_BACKEND"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	QueryStaleSeconds   int `mapstructure:"QUERY_STALE_SECONDS"`
	QueryCacheTTLMinute int `mapstructure:"QUERY_CACHE_TTL_MINUTES"`
	SessionIdleMinutes  int `mapstructure:"SESSION_IDLE_MINUTES"`
	UploadMaxSizeMB     int `mapstructure:"UPLOAD_MAX_SIZE_MB"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8375")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("SUPABASE_URL", defaultSupabaseURL)
	viper.SetDefault("SUPABASE_ANON_KEY", viper.GetString("VITE_SUPABASE_ANON_KEY"))
	viper.SetDefault("SUPABASE_JWT_SECRET", "")
	viper.SetDefault("STORAGE_BUCKET", "post-images")
	viper.SetDefault("OAUTH_PROVIDER", "github")
	viper.SetDefault("REMOTE_TIMEOUT_SECONDS", 0)
	viper.SetDefault("DATA_BACKEND", BackendREST)
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("QUERY_STALE_SECONDS", 60)
	viper.SetDefault("QUERY_CACHE_TTL_MINUTES", 5)
	viper.SetDefault("SESSION_IDLE_MINUTES", 30)
	viper.SetDefault("UPLOAD_MAX_SIZE_MB", 10)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.DataBackend = strings.ToLower(strings.TrimSpace(c.DataBackend))
	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
}

// IsProduction reports whether the app runs with production strictness.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.SupabaseURL == "" {
		return errors.New("SUPABASE_URL is required")
	}
	if c.StorageBucket == "" {
		return errors.New("STORAGE_BUCKET is required")
	}

	switch c.DataBackend {
	case BackendREST:
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for DATA_BACKEND=%s", c.DataBackend)
		}
	default:
		return fmt.Errorf("unknown DATA_BACKEND %q", c.DataBackend)
	}

	if c.UploadMaxSizeMB <= 0 {
		return errors.New("UPLOAD_MAX_SIZE_MB must be positive")
	}
	if c.QueryStaleSeconds < 0 {
		return errors.New("QUERY_STALE_SECONDS cannot be negative")
	}

	if c.IsProduction() {
		if c.SupabaseAnonKey == "" {
			return errors.New("SUPABASE_ANON_KEY is required in production")
		}
		if c.SupabaseJWTSecret != "" && len(c.SupabaseJWTSecret) < 32 {
			return errors.New("SUPABASE_JWT_SECRET must be at least 32 characters in production")
		}
		if !c.CookieSecure {
			log.Println("WARNING: COOKIE_SECURE is disabled in production. Session cookies will be sent over plain HTTP.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if c.SupabaseAnonKey == "" {
		log.Println("WARNING: SUPABASE_ANON_KEY is empty. Remote calls will be rejected by the service.")
	}

	return nil
}

// QueryStaleTime returns how long a cached query result is served before a background refresh.
func (c *Config) QueryStaleTime() time.Duration {
	return time.Duration(c.QueryStaleSeconds) * time.Second
}

// QueryCacheTTL returns the lifetime of query results in the Redis tier.
func (c *Config) QueryCacheTTL() time.Duration {
	return time.Duration(c.QueryCacheTTLMinute) * time.Minute
}

// SessionIdleTimeout returns how long an unused session holder stays mounted.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// RemoteTimeout returns the remote HTTP client timeout; zero means none.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// OAuthRedirectURL is where the OAuth provider sends the browser back to.
func (c *Config) OAuthRedirectURL() string {
	return c.PublicBaseURL + "/auth/callback"
}
