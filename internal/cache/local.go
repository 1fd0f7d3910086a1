package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalCache implements Cache using one JSON file per snapshot key under a
// cache directory. This is suitable for single-instance deployments.
type LocalCache struct {
	mu  sync.RWMutex
	dir string
}

// NewLocalCache creates a new local file-based cache rooted at dir.
func NewLocalCache(dir string) *LocalCache {
	return &LocalCache{dir: dir}
}

func (c *LocalCache) pathFor(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get retrieves the snapshot stored under key from the local file.
func (c *LocalCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dir == "" || key == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No snapshot yet, not an error
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	return &snap, nil
}

// Set stores the snapshot to the local file.
func (c *LocalCache) Set(ctx context.Context, snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" || snap == nil || snap.Key == "" {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write atomically using temp file + rename
	path := c.pathFor(snap.Key)
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return nil
}

// Close is a no-op for local cache.
func (c *LocalCache) Close() error {
	return nil
}
