package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/optimist-go/optimist"
	"github.com/optimist-go/optimist/internal/config"
	"github.com/optimist-go/optimist/internal/errors"
	"github.com/optimist-go/optimist/pkg/persist"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long: `Run the optimist sync server.

The server loads optimist.json from the current directory (or any parent),
falls back to defaults when none exists, and serves until SIGINT or
SIGTERM. On shutdown a final snapshot is saved when persistence is
configured.

Examples:
  optimist serve
  optimist serve --addr :9000
  optimist serve --config ./deploy/optimist.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configPath)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to optimist.json")

	return cmd
}

func runServe(addr, configPath string) error {
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	app := optimist.New(optimist.Config{
		Addr: cfg.Server.Addr,
		Cache: optimist.CacheConfig{
			TTL:             cfg.TTL(),
			JanitorInterval: cfg.JanitorInterval(),
		},
		Sync: optimist.SyncConfig{
			MaxSessions:  cfg.Sync.MaxSessions,
			SendBuffer:   cfg.Sync.SendBuffer,
			PingInterval: cfg.PingInterval(),
		},
		Snapshots: optimist.SnapshotConfig{
			Store: store,
			Every: cfg.SnapshotInterval(),
		},
		Metrics: cfg.Server.MetricsEnabled,
		Tracing: cfg.Server.TracingEnabled,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner()
	fmt.Println()
	if cfg.Path() != "" {
		info("Config:      %s", cfg.Path())
	} else {
		info("Config:      defaults (no optimist.json found)")
	}
	if store != nil {
		info("Persistence: %s", cfg.Persist.Backend)
	} else {
		info("Persistence: disabled")
	}
	info("Sync:        %s/sync", cfg.URL())
	if cfg.Server.MetricsEnabled {
		info("Metrics:     %s/metrics", cfg.URL())
	}
	fmt.Println()
	success("Listening on %s", cfg.Server.Addr)
	info("Press Ctrl+C to stop")
	fmt.Println()

	if err := app.Run(ctx); err != nil {
		if ctx.Err() != nil {
			// The listener came up; this is a shutdown-path failure.
			return err
		}
		return errors.New("E060").
			WithDetail(err.Error()).
			WithSuggestion("Check that " + cfg.Server.Addr + " is free and that this user may bind it").
			Wrap(err)
	}

	success("Shut down cleanly")
	return nil
}

// loadServeConfig resolves the effective configuration: an explicit --config
// path, else the nearest optimist.json walking up from the working
// directory, else defaults.
func loadServeConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		if stderrors.Is(err, errors.New("E020")) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// buildLogger constructs the process logger from the Log section.
func buildLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildStore constructs the snapshot backend named by the config. The SQL
// backends need a database driver, and the CLI deliberately links none;
// they are available to programs embedding the server as a library.
func buildStore(cfg *config.Config) (persist.Store, error) {
	switch cfg.Persist.Backend {
	case "", config.BackendNone:
		return nil, nil

	case config.BackendMemory:
		return persist.NewMemoryStore(), nil

	case config.BackendS3:
		client, err := buildS3Client()
		if err != nil {
			return nil, err
		}
		var opts []persist.S3StoreOption
		if cfg.Persist.Key != "" {
			opts = append(opts, persist.WithObjectKey(cfg.Persist.Key))
		}
		return persist.NewS3Store(client, cfg.Persist.Bucket, opts...), nil

	case config.BackendSQLite, config.BackendPostgres, config.BackendMySQL:
		return nil, errors.New("E042").
			WithDetail(fmt.Sprintf("The %q backend needs a database driver, and the CLI links none", cfg.Persist.Backend)).
			WithSuggestion("Embed the server as a library: open a *sql.DB with your driver and pass persist.NewSQLStore(db) to optimist.New")

	default:
		// Validate rejected unknown backends already.
		return nil, errors.New("E040").WithDetail("Backend " + cfg.Persist.Backend)
	}
}

// buildS3Client assembles an S3 client from the standard AWS environment:
// AWS_REGION (or AWS_DEFAULT_REGION), AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN, and AWS_ENDPOINT_URL_S3 for
// S3-compatible stores.
func buildS3Client() (*s3.Client, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL_S3")
	if region == "" && endpoint != "" {
		// S3-compatible endpoints sign against a nominal region.
		region = "us-east-1"
	}
	if region == "" {
		return nil, errors.New("E023").
			WithDetail("The s3 backend needs a region").
			WithSuggestion("Export AWS_REGION (and credentials), or AWS_ENDPOINT_URL_S3 for an S3-compatible store")
	}

	opts := s3.Options{Region: region}

	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
		session := os.Getenv("AWS_SESSION_TOKEN")
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     key,
				SecretAccessKey: secret,
				SessionToken:    session,
				Source:          "environment",
			}, nil
		})
	}

	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}

	return s3.New(opts), nil
}
