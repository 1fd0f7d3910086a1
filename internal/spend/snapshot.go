package spend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"costlens/internal/cache"
	"costlens/internal/core"
)

// Prometheus metric for snapshot cache reads by outcome
var spendSnapshotReads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "costlens_spend_snapshot_reads_total",
		Help: "Spend snapshot cache reads by outcome (hit, miss, stale, error)",
	},
	[]string{"outcome"},
)

// DefaultSnapshotTTL bounds how long a cached upstream response is served
// before the CLI is consulted again.
const DefaultSnapshotTTL = 15 * time.Minute

// rawFetcher is the slice of CLIProvider the snapshot layer composes over.
type rawFetcher interface {
	fetchRaw(ctx context.Context, params QueryParams) ([]byte, error)
	commandLine(params QueryParams) []string
}

// SnapshotProvider caches raw upstream bytes in a cache.Cache, keyed by a
// hash of the full command line. Only raw source output is ever cached;
// merged report data never is.
type SnapshotProvider struct {
	fetcher rawFetcher
	cache   cache.Cache
	ttl     time.Duration
	now     func() time.Time
}

var _ Provider = (*SnapshotProvider)(nil)

// NewSnapshotProvider wraps a CLI provider with snapshot caching.
// A zero ttl falls back to DefaultSnapshotTTL.
func NewSnapshotProvider(fetcher *CLIProvider, c cache.Cache, ttl time.Duration) *SnapshotProvider {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotProvider{
		fetcher: fetcher,
		cache:   c,
		ttl:     ttl,
		now:     time.Now,
	}
}

// snapshotKey derives a stable cache key from the full command line, so a
// change of command, granularity, range, or extra args misses the cache.
func snapshotKey(argv []string) string {
	return fmt.Sprintf("spend-%016x", xxhash.Sum64String(strings.Join(argv, " ")))
}

// FetchSpend serves from a fresh snapshot when one exists, otherwise runs
// the CLI and refreshes the snapshot. Cache failures degrade to a live
// fetch, never to an error.
func (p *SnapshotProvider) FetchSpend(ctx context.Context, params QueryParams) ([]core.SpendPeriod, error) {
	argv := p.fetcher.commandLine(params)
	key := snapshotKey(argv)

	if raw, ok := p.lookup(ctx, key); ok {
		return parseAndLog(raw, params.Granularity, argv[0])
	}

	raw, err := p.fetcher.fetchRaw(ctx, params)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, raw)

	return parseAndLog(raw, params.Granularity, argv[0])
}

func (p *SnapshotProvider) lookup(ctx context.Context, key string) ([]byte, bool) {
	if p.cache == nil {
		return nil, false
	}

	snap, err := p.cache.Get(ctx, key)
	if err != nil {
		spendSnapshotReads.WithLabelValues("error").Inc()
		slog.Warn("spend snapshot read failed", "key", key, "error", err)
		return nil, false
	}
	if snap == nil {
		spendSnapshotReads.WithLabelValues("miss").Inc()
		return nil, false
	}
	if p.now().Sub(snap.FetchedAt) > p.ttl {
		spendSnapshotReads.WithLabelValues("stale").Inc()
		return nil, false
	}

	raw, err := decompressSnapshot(snap.Payload)
	if err != nil {
		spendSnapshotReads.WithLabelValues("error").Inc()
		slog.Warn("spend snapshot decode failed", "key", key, "error", err)
		return nil, false
	}

	spendSnapshotReads.WithLabelValues("hit").Inc()
	return raw, true
}

func (p *SnapshotProvider) store(ctx context.Context, key string, raw []byte) {
	if p.cache == nil {
		return
	}

	snap := &cache.Snapshot{
		Key:       key,
		FetchedAt: p.now().UTC(),
		Payload:   compressSnapshot(raw),
	}
	if err := p.cache.Set(ctx, snap); err != nil {
		slog.Warn("spend snapshot write failed", "key", key, "error", err)
	}
}

// compressSnapshot brotli-compresses raw upstream bytes for storage.
func compressSnapshot(raw []byte) []byte {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return buf.Bytes()
}

// decompressSnapshot restores raw bytes with a size limit as compression
// bomb protection.
func decompressSnapshot(payload []byte) ([]byte, error) {
	const maxSnapshotSize = 16 * 1024 * 1024 // 16 MB

	r := brotli.NewReader(bytes.NewReader(payload))
	raw, err := io.ReadAll(io.LimitReader(r, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return raw, nil
}
