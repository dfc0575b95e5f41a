package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/optimist-go/optimist/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "optimist.json"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// DefaultMaxSessions is the default limit on concurrent sync sessions.
	DefaultMaxSessions = 1024

	// DefaultSendBuffer is the default per-session outbound frame queue.
	DefaultSendBuffer = 64

	// DefaultPingSeconds is the default keepalive ping interval.
	DefaultPingSeconds = 30

	// DefaultJanitorSeconds is the default expiry collection interval.
	DefaultJanitorSeconds = 60

	// DefaultSnapshotSeconds is the default snapshot save interval.
	DefaultSnapshotSeconds = 60
)

// Snapshot backends accepted in persist.backend.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendS3       = "s3"
)

// Config represents the complete optimist.json configuration.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `json:"server,omitempty"`

	// Sync contains WebSocket sync configuration.
	Sync SyncConfig `json:"sync,omitempty"`

	// Cache contains cache expiry configuration.
	Cache CacheConfig `json:"cache,omitempty"`

	// Persist contains snapshot persistence configuration.
	Persist PersistConfig `json:"persist,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (host:port or :port).
	Addr string `json:"addr,omitempty"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `json:"metricsEnabled,omitempty"`

	// TracingEnabled wraps requests in OpenTelemetry spans.
	TracingEnabled bool `json:"tracingEnabled,omitempty"`
}

// SyncConfig contains WebSocket sync settings.
type SyncConfig struct {
	// MaxSessions caps concurrent sync sessions.
	MaxSessions int `json:"maxSessions,omitempty"`

	// SendBuffer is the per-session outbound frame queue length.
	SendBuffer int `json:"sendBuffer,omitempty"`

	// PingIntervalSeconds is the keepalive ping interval.
	PingIntervalSeconds int `json:"pingIntervalSeconds,omitempty"`
}

// CacheConfig contains cache expiry settings.
type CacheConfig struct {
	// TTLSeconds makes entries expire that long after their last write.
	// Zero means entries never expire.
	TTLSeconds int `json:"ttlSeconds,omitempty"`

	// JanitorSeconds is how often expired entries are collected.
	JanitorSeconds int `json:"janitorSeconds,omitempty"`
}

// PersistConfig contains snapshot persistence settings.
type PersistConfig struct {
	// Backend selects the snapshot store: none, memory, sqlite,
	// postgres, mysql, or s3.
	Backend string `json:"backend,omitempty"`

	// DSN is the database connection string for SQL backends.
	DSN string `json:"dsn,omitempty"`

	// Bucket is the bucket name for the s3 backend.
	Bucket string `json:"bucket,omitempty"`

	// Key overrides the object key for the s3 backend.
	Key string `json:"key,omitempty"`

	// IntervalSeconds is how often a snapshot is saved.
	IntervalSeconds int `json:"intervalSeconds,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `json:"level,omitempty"`

	// Format selects the log handler: text or json.
	Format string `json:"format,omitempty"`
}

// Default creates a new Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Sync: SyncConfig{
			MaxSessions:         DefaultMaxSessions,
			SendBuffer:          DefaultSendBuffer,
			PingIntervalSeconds: DefaultPingSeconds,
		},
		Cache: CacheConfig{
			JanitorSeconds: DefaultJanitorSeconds,
		},
		Persist: PersistConfig{
			Backend:         BackendNone,
			IntervalSeconds: DefaultSnapshotSeconds,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for optimist.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E020").
				WithDetail("No optimist.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'optimist init' to create one")
		}
		return nil, errors.New("E021").Wrap(err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E021").
			WithDetail("Failed to parse optimist.json: " + err.Error()).
			WithSuggestion("Check that optimist.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E021").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E021").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}

	if c.Sync.MaxSessions == 0 {
		c.Sync.MaxSessions = DefaultMaxSessions
	}
	if c.Sync.SendBuffer == 0 {
		c.Sync.SendBuffer = DefaultSendBuffer
	}
	if c.Sync.PingIntervalSeconds == 0 {
		c.Sync.PingIntervalSeconds = DefaultPingSeconds
	}

	if c.Cache.JanitorSeconds == 0 {
		c.Cache.JanitorSeconds = DefaultJanitorSeconds
	}

	if c.Persist.Backend == "" {
		c.Persist.Backend = BackendNone
	}
	if c.Persist.IntervalSeconds == 0 {
		c.Persist.IntervalSeconds = DefaultSnapshotSeconds
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr != "" && !strings.Contains(c.Server.Addr, ":") {
		return errors.New("E022").
			WithDetail(fmt.Sprintf("server.addr must be host:port or :port, got %q", c.Server.Addr))
	}

	if c.Sync.MaxSessions < 0 || c.Sync.SendBuffer < 0 || c.Sync.PingIntervalSeconds < 0 {
		return errors.New("E022").
			WithDetail("sync settings must not be negative")
	}

	if c.Cache.TTLSeconds < 0 || c.Cache.JanitorSeconds < 0 {
		return errors.New("E022").
			WithDetail("cache settings must not be negative")
	}

	if c.Persist.IntervalSeconds < 0 {
		return errors.New("E022").
			WithDetail("persist.intervalSeconds must not be negative")
	}

	switch c.Persist.Backend {
	case "", BackendNone, BackendMemory:
	case BackendSQLite, BackendPostgres, BackendMySQL:
		if c.Persist.DSN == "" {
			return errors.New("E023").
				WithDetail("persist.dsn is required for the " + c.Persist.Backend + " backend")
		}
	case BackendS3:
		if c.Persist.Bucket == "" {
			return errors.New("E023").
				WithDetail("persist.bucket is required for the s3 backend")
		}
	default:
		return errors.New("E040").
			WithDetail(fmt.Sprintf("Backend %q is not supported", c.Persist.Backend)).
			WithSuggestion("Use one of: none, memory, sqlite, postgres, mysql, s3")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("E022").
			WithDetail(fmt.Sprintf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.New("E022").
			WithDetail(fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	return nil
}

// TTL returns the cache entry lifetime. Zero means entries never expire.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// JanitorInterval returns the expiry collection interval.
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.Cache.JanitorSeconds) * time.Second
}

// PingInterval returns the sync keepalive interval.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Sync.PingIntervalSeconds) * time.Second
}

// SnapshotInterval returns the snapshot save interval.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Persist.IntervalSeconds) * time.Second
}

// HasPersistence reports whether a snapshot backend is configured.
func (c *Config) HasPersistence() bool {
	return c.Persist.Backend != "" && c.Persist.Backend != BackendNone
}

// LogLevel parses log.level into a slog level. Unknown values fall back to
// info; Validate rejects them first.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// URL returns the browsable base URL for the configured listen address.
func (c *Config) URL() string {
	if strings.HasPrefix(c.Server.Addr, ":") {
		return "http://localhost" + c.Server.Addr
	}
	return "http://" + c.Server.Addr
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// Find walks up directories to find the project root.
// Returns the directory containing optimist.json, or an error if not found.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E020").
				WithDetail("No optimist.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'optimist init' to create one")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := Find(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
