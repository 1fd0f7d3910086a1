// Package ledger records token-savings events and reads them back as
// per-period savings totals. One event is written per filtered command
// execution; readers bucket events into the ledger's native calendar,
// which the period normalizer later reconciles with spend keys.
package ledger

import (
	"context"
	"time"
)

// EventStore defines the interface for savings event storage backends.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// WriteBatch writes multiple savings events to storage.
	// This is called by the Recorder when flushing buffered events.
	WriteBatch(ctx context.Context, events []*Event) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// Event represents a single token-savings record: one wrapped command
// execution whose output was filtered before reaching the model.
type Event struct {
	// ID is a unique identifier for this event (UUID)
	ID string `json:"id" bson:"_id"`

	// Timestamp is when the command completed
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Command is the wrapped tool (e.g., "cargo", "git", "go")
	Command string `json:"command" bson:"command"`

	// Subcommand narrows the invocation (e.g., "build", "test")
	Subcommand string `json:"subcommand,omitempty" bson:"subcommand,omitempty"`

	// RawBytes is the size of the unfiltered tool output
	RawBytes int64 `json:"raw_bytes" bson:"raw_bytes"`

	// FilteredBytes is the size of the output actually emitted
	FilteredBytes int64 `json:"filtered_bytes" bson:"filtered_bytes"`

	// TokensSaved is the estimated token reduction for this execution
	TokensSaved int64 `json:"tokens_saved" bson:"tokens_saved"`

	// DurationNs is the wrapped command's wall time in nanoseconds
	DurationNs int64 `json:"duration_ns" bson:"duration_ns"`
}

// EstimateTokensSaved approximates the token reduction from output
// filtering, at roughly four bytes per token. Used when the caller has
// no better figure of its own.
func EstimateTokensSaved(rawBytes, filteredBytes int64) int64 {
	saved := rawBytes - filteredBytes
	if saved <= 0 {
		return 0
	}
	return saved / 4
}

// Config holds savings ledger configuration
type Config struct {
	// Enabled controls whether event recording is active
	Enabled bool

	// BufferSize is the number of events to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered events
	FlushInterval time.Duration

	// RetentionDays is how long to keep events (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 365,
	}
}
