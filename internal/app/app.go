// Package app provides the main application struct for centralized dependency
// management and lifecycle control of the costlens daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"costlens/config"
	"costlens/internal/admin"
	"costlens/internal/cache"
	"costlens/internal/ledger"
	"costlens/internal/report"
	"costlens/internal/server"
	"costlens/internal/spend"
)

// App represents the daemon with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config  *config.Config
	ledger  *ledger.Result
	reader  ledger.Reader
	cache   cache.Cache
	builder *report.Builder
	server  *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}

	// Initialize the savings ledger (storage connection plus recorder)
	ledgerResult, err := ledger.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	app.ledger = ledgerResult

	// The reader shares the recorder's storage connection
	if ledgerResult.Storage != nil {
		reader, err := ledger.NewReader(ledgerResult.Storage)
		if err != nil {
			closeErr := app.ledger.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("failed to initialize ledger reader: %w (also: ledger close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to initialize ledger reader: %w", err)
		}
		app.reader = reader
	}

	// Spend provider behind the snapshot cache
	provider, snapCache, err := BuildSpendProvider(cfg, false)
	if err != nil {
		closeErr := app.ledger.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize spend provider: %w (also: ledger close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize spend provider: %w", err)
	}
	app.cache = snapCache

	app.builder = report.NewBuilder(provider, app.reader)

	app.logStartupInfo()

	handler := admin.NewHandler(app.builder, app.reader, ledgerResult.Recorder)
	app.server = server.New(handler, &server.Config{
		Port:            cfg.Server.Port,
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Server.MetricsEnabled,
		MetricsEndpoint: cfg.Server.MetricsEndpoint,
		BodyLimit:       cfg.Server.BodyLimit,
	})

	return app, nil
}

// BuildSpendProvider constructs the spend provider from configuration. Unless
// noCache is set, the CLI is wrapped in a snapshot cache so repeated report
// runs within the TTL reuse the last raw fetch. The returned cache, when
// non-nil, must be closed by the caller; App.Shutdown takes care of that for
// the daemon.
func BuildSpendProvider(cfg *config.Config, noCache bool) (spend.Provider, cache.Cache, error) {
	cli := spend.NewCLIProvider(spend.Config{
		Command:   cfg.Spend.Command,
		ExtraArgs: cfg.Spend.Args,
		Timeout:   time.Duration(cfg.Spend.TimeoutSeconds) * time.Second,
		Disabled:  cfg.Spend.Disabled,
	})
	if noCache {
		return cli, nil, nil
	}

	snapCache, err := buildSnapshotCache(cfg)
	if err != nil {
		return nil, nil, err
	}

	ttl := spend.DefaultSnapshotTTL
	if cfg.Spend.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.Spend.CacheTTLSeconds) * time.Second
	}
	return spend.NewSnapshotProvider(cli, snapCache, ttl), snapCache, nil
}

// buildSnapshotCache creates the snapshot cache backend from configuration.
func buildSnapshotCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "", "local":
		dir := cfg.Cache.Dir
		if dir == "" {
			dir = ".cache/costlens"
		}
		return cache.NewLocalCache(dir), nil

	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			URL:       cfg.Cache.Redis.URL,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Cache.Redis.TTLSeconds) * time.Second,
		})

	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Cache.Type)
	}
}

// Builder returns the report builder, for callers that render reports
// directly instead of going through the HTTP API.
func (a *App) Builder() *report.Builder {
	return a.builder
}

// Reader returns the savings reader, or nil when the ledger is disabled.
func (a *App) Reader() ledger.Reader {
	return a.reader
}

// Start starts the HTTP server on the configured port.
// This is a blocking call that returns when the server stops.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", a.server.Addr())
	if err := a.server.Start(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first so no request arrives at a closed ledger, then the
// ledger (flushing buffered events), then the snapshot cache.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined
// error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			slog.Error("ledger close error", "error", err)
			errs = append(errs, fmt.Errorf("ledger close: %w", err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: no master key set - API running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set server.master_key or COSTLENS_MASTER_KEY to secure this API")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Server.MetricsEnabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Server.MetricsEndpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)

	if cfg.Ledger.Enabled {
		slog.Info("savings ledger enabled",
			"buffer_size", cfg.Ledger.BufferSize,
			"flush_interval_seconds", cfg.Ledger.FlushInterval,
			"retention_days", cfg.Ledger.RetentionDays,
		)
	} else {
		slog.Info("savings ledger disabled")
	}

	if cfg.Spend.Disabled {
		slog.Info("spend source disabled", "mode", "savings-only reports")
	} else {
		slog.Info("spend source configured", "command", cfg.Spend.Command)
	}
}
