// Package cache provides snapshot storage for raw spend-source output.
// Supports both local file and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"time"
)

// Snapshot is one cached fetch from the spend source. Payload carries the
// compressed raw bytes exactly as the source emitted them; nothing derived
// from a merge is ever cached.
type Snapshot struct {
	// Key identifies the query that produced this snapshot. A cache hit with
	// a mismatched key is treated as a miss.
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// Cache defines the interface for snapshot storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the snapshot stored under key.
	// Returns nil, nil if no snapshot exists yet.
	Get(ctx context.Context, key string) (*Snapshot, error)

	// Set stores the snapshot under its key.
	Set(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the cache.
	Close() error
}
