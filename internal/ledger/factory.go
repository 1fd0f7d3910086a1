package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"costlens/config"
	"costlens/internal/storage"
)

// Result holds the initialized event recorder and its dependencies.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Recorder RecorderInterface
	Storage  storage.Storage
}

// Close releases all resources held by the ledger.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Recorder != nil {
		if err := r.Recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates an event recorder from configuration.
// Returns a Result containing the recorder and storage for lifecycle
// management. The caller must call Result.Close() during shutdown.
//
// If the ledger is disabled in the config, returns a NoopRecorder with nil storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	// Return noop if event recording is disabled
	if !cfg.Ledger.Enabled {
		return &Result{
			Recorder: &NoopRecorder{},
			Storage:  nil,
		}, nil
	}

	// Create storage configuration
	storageCfg := buildStorageConfig(cfg)

	// Create storage connection
	store, err := storage.New(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	// Create the event store based on storage type
	eventStore, err := createEventStore(store, cfg.Ledger.RetentionDays)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{
		Recorder: NewRecorder(eventStore, buildRecorderConfig(cfg.Ledger)),
		Storage:  store,
	}, nil
}

// NewWithSharedStorage creates an event recorder using a shared storage
// connection. This is useful when the reader side already holds the database
// connection. The caller is responsible for closing the storage separately.
func NewWithSharedStorage(cfg *config.Config, store storage.Storage) (*Result, error) {
	// Return noop if event recording is disabled
	if !cfg.Ledger.Enabled {
		return &Result{
			Recorder: &NoopRecorder{},
			Storage:  nil,
		}, nil
	}

	if store == nil {
		return nil, fmt.Errorf("storage is required when the ledger is enabled")
	}

	// Create the event store based on storage type
	eventStore, err := createEventStore(store, cfg.Ledger.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{
		Recorder: NewRecorder(eventStore, buildRecorderConfig(cfg.Ledger)),
		Storage:  nil, // Don't set storage since it's shared
	}, nil
}

// NewReaderFromConfig opens the storage backend and returns a reader over it,
// for one-shot callers that never record events. The returned storage handle
// must be closed by the caller. When the ledger is disabled both returns are
// nil and reports carry an empty savings side.
func NewReaderFromConfig(ctx context.Context, cfg *config.Config) (Reader, storage.Storage, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage: %w", err)
	}

	reader, err := NewReader(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return reader, store, nil
}

// NewReader creates the savings reader for the given storage backend.
func NewReader(store storage.Storage) (Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteReader(store.SQLiteDB())

	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		pgxPool, ok := pool.(*pgxpool.Pool)
		if !ok {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
		}
		return NewPostgreSQLReader(pgxPool)

	case storage.TypeMongoDB:
		db := store.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		mongoDB, ok := db.(*mongo.Database)
		if !ok {
			return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
		}
		return NewMongoDBReader(mongoDB)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// buildStorageConfig creates a storage.Config from the application config.
func buildStorageConfig(cfg *config.Config) storage.Config {
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	// Apply defaults
	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = ".cache/costlens.db"
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = "costlens"
	}

	return storageCfg
}

// createEventStore creates the appropriate EventStore for the given storage backend.
func createEventStore(store storage.Storage, retentionDays int) (EventStore, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)

	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		pgxPool, ok := pool.(*pgxpool.Pool)
		if !ok {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
		}
		return NewPostgreSQLStore(pgxPool, retentionDays)

	case storage.TypeMongoDB:
		db := store.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		mongoDB, ok := db.(*mongo.Database)
		if !ok {
			return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
		}
		return NewMongoDBStore(mongoDB, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// buildRecorderConfig creates a ledger.Config from config.LedgerConfig.
func buildRecorderConfig(ledgerCfg config.LedgerConfig) Config {
	cfg := Config{
		Enabled:       ledgerCfg.Enabled,
		BufferSize:    ledgerCfg.BufferSize,
		FlushInterval: time.Duration(ledgerCfg.FlushInterval) * time.Second,
		RetentionDays: ledgerCfg.RetentionDays,
	}

	// Apply defaults
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	return cfg
}
