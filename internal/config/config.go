package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// DefaultLocation is the location prefilled on the create form.
const DefaultLocation = "[56.838095,60.603567]"

// Config holds all configuration for the memory journal.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode session cookies are not marked Secure and an ephemeral
	// session key is accepted without a warning.
	Mode string

	// Database
	DatastoreType string // "postgres" or "sqlite"
	DBURL         string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool

	// BaseURL is the externally visible URL used to build OAuth callback URLs.
	BaseURL string

	// Sessions
	// SessionKey is a hex or base64 encoded 16/24/32-byte key. The cookie
	// signing key is derived from it. Empty generates an ephemeral key.
	SessionKey        string
	SessionCookieName string
	SessionTTL        time.Duration
	// CookieSecure marks session and flash cookies Secure. Forced off in testing mode.
	CookieSecure bool

	// Identity providers
	GoogleClientID     string
	GoogleClientSecret string
	GoogleIssuer       string
	VKClientID         string
	VKClientSecret     string
	VKAPIVersion       string

	// Memories
	DefaultLocation string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "sqlite",
		DBURL:                   "file:memory-journal.db",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         false,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		BaseURL:           "http://localhost:8080",
		SessionCookieName: "memory_journal_session",
		SessionTTL:        14 * 24 * time.Hour,
		CookieSecure:      true,
		GoogleIssuer:      "https://accounts.google.com",
		VKAPIVersion:      "5.131",
		DefaultLocation:   DefaultLocation,
		MetricsLabels:     "service=memory-journal",
		MaxBodySize:       1024 * 1024,
		DrainTimeout:      30,
	}
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	if c == nil || c.Mode == ModeTesting {
		return false
	}
	return c.CookieSecure
}

// ResolvedBaseURL returns BaseURL without a trailing slash.
func (c *Config) ResolvedBaseURL() string {
	if c == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// ResolvedDefaultLocation returns the configured default location or the built-in one.
func (c *Config) ResolvedDefaultLocation() string {
	if c == nil {
		return DefaultLocation
	}
	if loc := strings.TrimSpace(c.DefaultLocation); loc != "" {
		return loc
	}
	return DefaultLocation
}
