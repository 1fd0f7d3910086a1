package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query (SQLITE_MAX_VARIABLE_NUMBER).
// With 8 columns per event, we can safely insert up to 124 events per batch (124 * 8 = 992).
const (
	maxSQLiteParams   = 999
	columnsPerEvent   = 8
	maxEventsPerBatch = maxSQLiteParams / columnsPerEvent // 124 events
	timestampFormat   = time.RFC3339Nano
)

// SQLiteStore implements EventStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates a new SQLite event store.
// It creates the savings_events table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Create table for savings events
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS savings_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			command TEXT NOT NULL,
			subcommand TEXT NOT NULL DEFAULT '',
			raw_bytes INTEGER NOT NULL DEFAULT 0,
			filtered_bytes INTEGER NOT NULL DEFAULT 0,
			tokens_saved INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create savings_events table: %w", err)
	}

	// Add timing column (idempotent: SQLite lacks IF NOT EXISTS for ALTER TABLE ADD COLUMN)
	migrations := []string{
		"ALTER TABLE savings_events ADD COLUMN duration_ns INTEGER NOT NULL DEFAULT 0",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			// "duplicate column name" means the column already exists — safe to ignore
			if !strings.Contains(err.Error(), "duplicate column") {
				return nil, fmt.Errorf("failed to run migration %q: %w", migration, err)
			}
		}
	}

	// Create indexes for common queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_savings_events_timestamp ON savings_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_savings_events_command ON savings_events(command)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	// Start background cleanup if retention is configured
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple savings events to SQLite using batch insert.
// Events are chunked to stay within SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	// Process events in chunks to stay within SQLite's parameter limit
	for i := 0; i < len(events); i += maxEventsPerBatch {
		end := i + maxEventsPerBatch
		if end > len(events) {
			end = len(events)
		}
		chunk := events[i:end]

		// Build batch insert query for this chunk
		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerEvent)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?)"

			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(timestampFormat),
				e.Command,
				e.Subcommand,
				e.RawBytes,
				e.FilteredBytes,
				e.TokensSaved,
				e.DurationNs,
			)
		}

		query := `INSERT OR IGNORE INTO savings_events (id, timestamp, command, subcommand,
			raw_bytes, filtered_bytes, tokens_saved, duration_ns) VALUES ` +
			strings.Join(placeholders, ",")

		_, err := s.db.ExecContext(ctx, query, values...)
		if err != nil {
			return fmt.Errorf("failed to insert event batch %d: %w", i/maxEventsPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the DB here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes events older than the retention period.
func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(timestampFormat)

	result, err := s.db.Exec("DELETE FROM savings_events WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old savings events", "error", err)
		return
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old savings events", "deleted", rowsAffected)
	}
}
