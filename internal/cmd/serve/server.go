package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/plugin/route/accounts"
	"github.com/chirino/memory-journal/internal/plugin/route/memories"
	routesystem "github.com/chirino/memory-journal/internal/plugin/route/system"
	storemetrics "github.com/chirino/memory-journal/internal/plugin/store/metrics"
	registrymigrate "github.com/chirino/memory-journal/internal/registry/migrate"
	registryroute "github.com/chirino/memory-journal/internal/registry/route"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/social"
	"github.com/chirino/memory-journal/internal/web"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.MemoryStore
	Router     *gin.Engine
	Sessions   *security.SessionManager
	Running    *RunningListener
	Management *RunningListener
}

// Shutdown gracefully stops the listeners and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Management != nil {
		_ = s.Management.Close(ctx)
	}
	err := s.Running.Close(ctx)
	if cerr := s.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// StartServer initializes all subsystems and starts serving.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting memory journal",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"mode", cfg.Mode,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	sessions, err := security.NewSessionManager(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	connectors := social.NewConnectors(ctx, cfg)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	router.Use(configMiddleware(cfg))
	web.LoadTemplates(router)

	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	session := sessions.Middleware()
	memories.MountRoutes(router, store, cfg, session)
	accounts.MountRoutes(router, store, sessions, connectors, session)

	// Management routes get their own listener when --management-port is set,
	// otherwise they share the main router.
	var management *RunningListener
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		if !mgmtCfg.EnablePlainText && !mgmtCfg.EnableTLS {
			mgmtCfg.EnablePlainText = true
		}
		management, err = StartListener("management", mgmtCfg, mgmtRouter)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "addr", management.Addr)
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartListener("main", cfg.Listener, router)
	if err != nil {
		if management != nil {
			_ = management.Close(context.Background())
		}
		_ = store.Close()
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
		"providers", connectors.Enabled(),
	)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Sessions:   sessions,
		Running:    running,
		Management: management,
	}, nil
}
