package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/hub"
	"github.com/optimist-go/optimist/pkg/middleware"
	"github.com/optimist-go/optimist/pkg/persist"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultAddr            = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSnapshotEvery   = time.Minute
)

// Config configures a Server. Zero fields get defaults in New.
type Config struct {
	// Addr is the listen address (default ":8080").
	Addr string

	// Cache is the shared key store. Created when nil.
	Cache *cache.Cache

	// Hub serves /sync. Created from Cache when nil.
	Hub *hub.Hub

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Snapshots enables persistence: the latest snapshot is restored in
	// New, saved every SnapshotEvery, and saved once more in Shutdown.
	// The store is closed by Shutdown.
	Snapshots persist.Store

	// SnapshotEvery is the periodic save interval (default one minute).
	SnapshotEvery time.Duration

	// MaxBodyBytes caps REST request bodies (default 1 MiB).
	MaxBodyBytes int64

	// ShutdownTimeout bounds Shutdown (default 10s).
	ShutdownTimeout time.Duration

	// EnableMetrics mounts GET /metrics and the request metrics middleware.
	EnableMetrics bool

	// EnableTracing adds the tracing middleware.
	EnableTracing bool
}

// Server ties the cache, the hub and the snapshot loop to an HTTP router.
type Server struct {
	cfg    Config
	cache  *cache.Cache
	hub    *hub.Hub
	logger *slog.Logger
	router chi.Router

	mu      sync.Mutex
	httpSrv *http.Server

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a Server, restores the latest snapshot when a store is
// configured and starts the periodic snapshot loop.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.New(cfg.Cache, hub.WithLogger(cfg.Logger))
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}

	s := &Server{
		cfg:    cfg,
		cache:  cfg.Cache,
		hub:    cfg.Hub,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
	s.router = s.buildRouter()

	if cfg.Snapshots != nil {
		s.restoreSnapshot()
		go s.snapshotLoop(cfg.SnapshotEvery)
	}

	return s
}

// Handler returns the router, for mounting the server inside a larger
// application instead of calling ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Cache returns the shared cache.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Hub returns the sync hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	if s.cfg.EnableMetrics {
		r.Use(middleware.Metrics())
	}
	if s.cfg.EnableTracing {
		r.Use(middleware.Tracing())
	}
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/sync", s.hub.ServeHTTP)

	if s.cfg.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/v1/keys", func(r chi.Router) {
		r.Get("/", s.handleListKeys)
		r.Get("/{key}", s.handleGetKey)
		r.Put("/{key}", s.handlePutKey)
		r.Delete("/{key}", s.handleDeleteKey)
	})

	return r
}

// ListenAndServe serves until Shutdown or a listener error. It returns
// immediately when Shutdown already ran.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Shutdown closes done before it looks at httpSrv; registering under
	// the same lock means either Shutdown sees srv or we see done closed.
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("server starting", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the snapshot loop, saves a final snapshot, closes the hub
// and the snapshot store, and shuts the HTTP server down gracefully.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.closeOnce.Do(func() {
		close(s.done)
		if s.cfg.Snapshots != nil {
			s.saveSnapshot(ctx)
			if err := s.cfg.Snapshots.Close(); err != nil {
				s.logger.Warn("snapshot store close failed", "error", err)
			}
		}
		s.hub.Close()
	})

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// restoreSnapshot loads the newest snapshot into the cache. Missing
// snapshots are normal on first boot; other failures are logged and the
// server starts empty.
func (s *Server) restoreSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	snap, err := s.cfg.Snapshots.Load(ctx)
	if err != nil {
		if !errors.Is(err, persist.ErrNoSnapshot) {
			s.logger.Warn("snapshot restore failed", "error", err)
		}
		return
	}

	persist.Restore(s.cache, snap)
	s.logger.Info("snapshot restored", "entries", len(snap.Entries), "saved_at", snap.SavedAt)
}

func (s *Server) snapshotLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.saveSnapshot(context.Background())
		}
	}
}

func (s *Server) saveSnapshot(ctx context.Context) {
	snap, err := persist.Capture(s.cache)
	if err != nil {
		s.logger.Warn("snapshot capture failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.cfg.Snapshots.Save(ctx, snap); err != nil {
		s.logger.Warn("snapshot save failed", "error", err)
		return
	}
	s.logger.Debug("snapshot saved", "entries", len(snap.Entries))
}
