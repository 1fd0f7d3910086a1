package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalCache(t *testing.T) {
	t.Run("GetSetRoundTrip", func(t *testing.T) {
		cache := NewLocalCache(t.TempDir())
		ctx := context.Background()

		// Initially empty
		result, err := cache.Get(ctx, "abc123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatalf("expected nil result for empty cache, got %v", result)
		}

		snap := &Snapshot{
			Key:       "abc123",
			FetchedAt: time.Now().UTC().Truncate(time.Second),
			Payload:   []byte("raw source output"),
		}

		if err := cache.Set(ctx, snap); err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}

		result, err = cache.Get(ctx, "abc123")
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if result == nil {
			t.Fatal("expected result, got nil")
		}
		if result.Key != "abc123" {
			t.Errorf("expected key abc123, got %q", result.Key)
		}
		if string(result.Payload) != "raw source output" {
			t.Errorf("payload mismatch: got %q", result.Payload)
		}
		if !result.FetchedAt.Equal(snap.FetchedAt) {
			t.Errorf("FetchedAt mismatch: got %v, want %v", result.FetchedAt, snap.FetchedAt)
		}
	})

	t.Run("KeysAreIsolated", func(t *testing.T) {
		cache := NewLocalCache(t.TempDir())
		ctx := context.Background()

		if err := cache.Set(ctx, &Snapshot{Key: "daily", Payload: []byte("d")}); err != nil {
			t.Fatalf("set daily: %v", err)
		}
		if err := cache.Set(ctx, &Snapshot{Key: "weekly", Payload: []byte("w")}); err != nil {
			t.Fatalf("set weekly: %v", err)
		}

		daily, err := cache.Get(ctx, "daily")
		if err != nil || daily == nil {
			t.Fatalf("get daily: %v, %v", daily, err)
		}
		if string(daily.Payload) != "d" {
			t.Errorf("daily payload = %q, want %q", daily.Payload, "d")
		}

		weekly, err := cache.Get(ctx, "weekly")
		if err != nil || weekly == nil {
			t.Fatalf("get weekly: %v, %v", weekly, err)
		}
		if string(weekly.Payload) != "w" {
			t.Errorf("weekly payload = %q, want %q", weekly.Payload, "w")
		}
	})

	t.Run("CreateDirectoryIfNeeded", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		cache := NewLocalCache(dir)
		ctx := context.Background()

		if err := cache.Set(ctx, &Snapshot{Key: "k", Payload: []byte("v")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, "k.json")); os.IsNotExist(err) {
			t.Fatal("snapshot file was not created")
		}
	})

	t.Run("EmptyDir", func(t *testing.T) {
		cache := NewLocalCache("")
		ctx := context.Background()

		result, err := cache.Get(ctx, "k")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatal("expected nil result for empty dir")
		}

		// Set should be a no-op
		if err := cache.Set(ctx, &Snapshot{Key: "k"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("CloseIsNoOp", func(t *testing.T) {
		cache := NewLocalCache(t.TempDir())
		if err := cache.Close(); err != nil {
			t.Fatalf("unexpected error on close: %v", err)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not valid json"), 0o644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}

		cache := NewLocalCache(dir)
		if _, err := cache.Get(context.Background(), "bad"); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}
