package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/memory-journal/internal/plugin/route/system"
	_ "github.com/chirino/memory-journal/internal/plugin/store/postgres"
	_ "github.com/chirino/memory-journal/internal/plugin/store/sqlite"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the memory journal web server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (" + config.ModeProd + "|" + config.ModeTesting + ")",
		},
		&cli.StringFlag{
			Name:        "base-url",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_BASE_URL"),
			Destination: &cfg.BaseURL,
			Value:       cfg.BaseURL,
			Usage:       "Externally visible URL used to build OAuth callback URLs",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database connection URL (a file name for sqlite)",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run schema migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Sessions ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "session-key",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_SESSION_KEY"),
			Destination: &cfg.SessionKey,
			Usage:       "Session signing key (hex or base64, 16/24/32 bytes); an ephemeral key is generated when unset",
		},
		&cli.StringFlag{
			Name:        "session-cookie-name",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_SESSION_COOKIE_NAME"),
			Destination: &cfg.SessionCookieName,
			Value:       cfg.SessionCookieName,
			Usage:       "Name of the session cookie",
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_SESSION_TTL"),
			Destination: &cfg.SessionTTL,
			Value:       cfg.SessionTTL,
			Usage:       "Session lifetime",
		},
		&cli.BoolFlag{
			Name:        "cookie-secure",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_COOKIE_SECURE"),
			Destination: &cfg.CookieSecure,
			Value:       cfg.CookieSecure,
			Usage:       "Mark session and message cookies Secure (ignored in testing mode)",
		},

		// ── Identity Providers ────────────────────────────────────
		&cli.StringFlag{
			Name:        "google-client-id",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_GOOGLE_CLIENT_ID"),
			Destination: &cfg.GoogleClientID,
			Usage:       "Google OAuth client ID (enables Google login)",
		},
		&cli.StringFlag{
			Name:        "google-client-secret",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_GOOGLE_CLIENT_SECRET"),
			Destination: &cfg.GoogleClientSecret,
			Usage:       "Google OAuth client secret",
		},
		&cli.StringFlag{
			Name:        "google-issuer",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_GOOGLE_ISSUER"),
			Destination: &cfg.GoogleIssuer,
			Value:       cfg.GoogleIssuer,
			Usage:       "Google OIDC issuer URL",
		},
		&cli.StringFlag{
			Name:        "vk-client-id",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_VK_CLIENT_ID"),
			Destination: &cfg.VKClientID,
			Usage:       "VK application ID (enables VK login)",
		},
		&cli.StringFlag{
			Name:        "vk-client-secret",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_VK_CLIENT_SECRET"),
			Destination: &cfg.VKClientSecret,
			Usage:       "VK application secret key",
		},
		&cli.StringFlag{
			Name:        "vk-api-version",
			Category:    "Identity Providers:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_VK_API_VERSION"),
			Destination: &cfg.VKAPIVersion,
			Value:       cfg.VKAPIVersion,
			Usage:       "VK API version used for profile lookups",
		},

		// ── Memories ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "default-location",
			Category:    "Memories:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_DEFAULT_LOCATION"),
			Destination: &cfg.DefaultLocation,
			Value:       cfg.DefaultLocation,
			Usage:       "Location prefilled on the create form, formatted [lat,lon]",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("MEMORY_JOURNAL_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// configMiddleware makes cfg reachable from request contexts.
func configMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(config.WithContext(c.Request.Context(), cfg))
		c.Next()
	}
}
