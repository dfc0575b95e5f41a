package optimist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/hub"
	"github.com/optimist-go/optimist/pkg/server"
)

// =============================================================================
// App Type
// =============================================================================

// App is the main optimist application entry point.
// It wraps the shared cache, the sync hub and the HTTP server into a
// single http.Handler.
//
// Create an App with optimist.New():
//
//	app := optimist.New(optimist.Config{
//	    Addr:    ":8080",
//	    Metrics: true,
//	})
//
//	counter := optimist.NewState(0, optimist.WithCache[int](app.Cache(), "counter"))
//	http.ListenAndServe(":8080", app)
type App struct {
	// Internal components
	cache  *cache.Cache
	hub    *hub.Hub
	server *server.Server

	// Configuration
	config Config
	logger *slog.Logger
}

// New creates a new optimist application with the given configuration.
// When a snapshot store is configured, the latest snapshot is restored
// before New returns.
func New(cfg Config) *App {
	// Apply defaults
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.Cache.JanitorInterval == 0 {
		cfg.Cache.JanitorInterval = DefaultCacheConfig().JanitorInterval
	}

	// Set up logger
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Wire components
	c := buildCache(cfg, logger)
	h := buildHub(cfg, c, logger)
	srv := server.New(buildServerConfig(cfg, c, h, logger))

	return &App{
		cache:  c,
		hub:    h,
		server: srv,
		config: cfg,
		logger: logger,
	}
}

// =============================================================================
// http.Handler Implementation
// =============================================================================

// ServeHTTP implements http.Handler.
// It serves /sync, /healthz, /v1/keys and, when enabled, /metrics.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.Handler().ServeHTTP(w, r)
}

// Handler returns the underlying router, for mounting the app under a
// path prefix inside a larger application.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// =============================================================================
// Component Access
// =============================================================================

// Cache returns the shared cache. Bind States to it with WithCache.
func (a *App) Cache() *cache.Cache {
	return a.cache
}

// Hub returns the sync hub serving /sync.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// =============================================================================
// Lifecycle
// =============================================================================

// Run serves on the configured address until ctx is cancelled or the
// listener fails. On cancellation the app is shut down gracefully and
// Run returns the shutdown result.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return a.Shutdown(context.Background())
}

// Shutdown saves a final snapshot, closes the hub, the snapshot store and
// the cache, and stops the HTTP server. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.cache.Close()
	return err
}
