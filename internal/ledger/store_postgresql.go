package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements EventStore for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates a new PostgreSQL event store.
// It creates the savings_events table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	// Create table for savings events
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS savings_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			command TEXT NOT NULL,
			subcommand TEXT NOT NULL DEFAULT '',
			raw_bytes BIGINT NOT NULL DEFAULT 0,
			filtered_bytes BIGINT NOT NULL DEFAULT 0,
			tokens_saved BIGINT NOT NULL DEFAULT 0,
			duration_ns BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create savings_events table: %w", err)
	}

	// Create indexes for common queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_savings_events_timestamp ON savings_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_savings_events_command ON savings_events(command)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	// Start background cleanup if retention is configured
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple savings events to PostgreSQL using batch insert.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	// For larger batches, use a transaction to ensure atomicity
	// For smaller batches, use individual inserts without transaction overhead
	if len(events) < 10 {
		return s.writeBatchSmall(ctx, events)
	}

	return s.writeBatchLarge(ctx, events)
}

// writeBatchSmall uses INSERT for small batches
func (s *PostgreSQLStore) writeBatchSmall(ctx context.Context, events []*Event) error {
	var errs []error

	for _, e := range events {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO savings_events (id, timestamp, command, subcommand,
				raw_bytes, filtered_bytes, tokens_saved, duration_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.Timestamp, e.Command, e.Subcommand,
			e.RawBytes, e.FilteredBytes, e.TokensSaved, e.DurationNs)

		if err != nil {
			slog.Warn("failed to insert savings event", "error", err, "id", e.ID)
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d of %d events: %w", len(errs), len(events), errors.Join(errs...))
	}
	return nil
}

// writeBatchLarge uses batch insert for larger batches
func (s *PostgreSQLStore) writeBatchLarge(ctx context.Context, events []*Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var errs []error

	for _, e := range events {
		_, err = tx.Exec(ctx, `
			INSERT INTO savings_events (id, timestamp, command, subcommand,
				raw_bytes, filtered_bytes, tokens_saved, duration_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.Timestamp, e.Command, e.Subcommand,
			e.RawBytes, e.FilteredBytes, e.TokensSaved, e.DurationNs)

		if err != nil {
			slog.Warn("failed to insert savings event in batch", "error", err, "id", e.ID)
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d of %d events: %w", len(errs), len(events), errors.Join(errs...))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Flush is a no-op for PostgreSQL as writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the pool here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *PostgreSQLStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes events older than the retention period.
func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	result, err := s.pool.Exec(ctx, "DELETE FROM savings_events WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old savings events", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old savings events", "deleted", result.RowsAffected())
	}
}
