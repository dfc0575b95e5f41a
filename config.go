package optimist

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/hub"
	"github.com/optimist-go/optimist/pkg/persist"
	"github.com/optimist-go/optimist/pkg/server"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the main application configuration.
// This is the user-friendly entry point for configuring an optimist app.
type Config struct {
	// Addr is the HTTP listen address for Run.
	// Default: ":8080".
	Addr string

	// Cache configures the shared key cache.
	Cache CacheConfig

	// Sync configures the WebSocket synchronization hub.
	Sync SyncConfig

	// Snapshots configures cache persistence.
	Snapshots SnapshotConfig

	// Metrics mounts GET /metrics and records per-request Prometheus
	// metrics. Default: false.
	Metrics bool

	// Tracing wraps every request in an OpenTelemetry span.
	// Default: false.
	Tracing bool

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// CacheConfig configures the shared key cache.
type CacheConfig struct {
	// TTL expires entries that have not been written for this long.
	// Zero means entries never expire.
	// Default: 0.
	TTL time.Duration

	// JanitorInterval is how often expired entries are collected.
	// Only relevant when TTL is set.
	// Default: 1 minute.
	JanitorInterval time.Duration
}

// SyncConfig configures the WebSocket hub serving /sync.
type SyncConfig struct {
	// MaxSessions is the maximum number of concurrent WebSocket sessions.
	// Further upgrades are rejected with 503.
	// Default: 1024.
	MaxSessions int

	// SendBuffer is the per-session outbound frame buffer. A session that
	// cannot drain its buffer is disconnected rather than allowed to block
	// the fanout.
	// Default: 64.
	SendBuffer int

	// PingInterval is the keepalive ping cadence.
	// Default: 30 seconds.
	PingInterval time.Duration

	// CheckOrigin overrides the WebSocket upgrade origin check.
	// If nil, same-host origins and requests without an Origin header
	// are accepted.
	CheckOrigin func(*http.Request) bool
}

// SnapshotConfig configures cache persistence.
type SnapshotConfig struct {
	// Store is the snapshot backend. If nil, the cache is purely
	// in-memory (lost on restart). Use persist.NewMemoryStore,
	// persist.NewSQLStore, persist.NewRedisStore or persist.NewS3Store.
	//
	// The latest snapshot is restored in New; the store is closed
	// during Shutdown.
	Store persist.Store

	// Every is the periodic save interval.
	// Default: 1 minute.
	Every time.Duration
}

// Store is the interface snapshot backends implement.
type Store = persist.Store

// =============================================================================
// Default Configurations
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:  ":8080",
		Cache: DefaultCacheConfig(),
		Sync:  DefaultSyncConfig(),
		Snapshots: SnapshotConfig{
			Every: time.Minute,
		},
	}
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:             0,
		JanitorInterval: time.Minute,
	}
}

// DefaultSyncConfig returns a SyncConfig with sensible defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxSessions:  hub.DefaultMaxSessions,
		SendBuffer:   hub.DefaultSendBuffer,
		PingInterval: hub.DefaultPingInterval,
	}
}

// =============================================================================
// Config Translation
// =============================================================================

// buildCache constructs the shared cache from the user-facing config.
func buildCache(cfg Config, logger *slog.Logger) *cache.Cache {
	opts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Cache.TTL > 0 {
		opts = append(opts, cache.WithTTL(cfg.Cache.TTL))
	}
	if cfg.Cache.JanitorInterval > 0 {
		opts = append(opts, cache.WithJanitorInterval(cfg.Cache.JanitorInterval))
	}
	return cache.New(opts...)
}

// buildHub constructs the sync hub from the user-facing config.
func buildHub(cfg Config, c *cache.Cache, logger *slog.Logger) *hub.Hub {
	opts := []hub.Option{hub.WithLogger(logger)}
	if cfg.Sync.MaxSessions > 0 {
		opts = append(opts, hub.WithMaxSessions(cfg.Sync.MaxSessions))
	}
	if cfg.Sync.SendBuffer > 0 {
		opts = append(opts, hub.WithSendBuffer(cfg.Sync.SendBuffer))
	}
	if cfg.Sync.PingInterval > 0 {
		opts = append(opts, hub.WithPingInterval(cfg.Sync.PingInterval))
	}
	if cfg.Sync.CheckOrigin != nil {
		opts = append(opts, hub.WithCheckOrigin(cfg.Sync.CheckOrigin))
	}
	return hub.New(c, opts...)
}

// buildServerConfig converts the user-facing Config to server.Config.
func buildServerConfig(cfg Config, c *cache.Cache, h *hub.Hub, logger *slog.Logger) server.Config {
	return server.Config{
		Addr:          cfg.Addr,
		Cache:         c,
		Hub:           h,
		Logger:        logger,
		Snapshots:     cfg.Snapshots.Store,
		SnapshotEvery: cfg.Snapshots.Every,
		EnableMetrics: cfg.Metrics,
		EnableTracing: cfg.Tracing,
	}
}
