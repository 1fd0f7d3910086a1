package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metric for events dropped on a full buffer
var ledgerEventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "costlens_ledger_events_dropped_total",
		Help: "Total number of savings events dropped because the recorder buffer was full",
	},
)

// Recorder provides async buffered event recording with batch writes.
// It collects savings events in a channel and flushes them to storage
// either when the buffer is full or at regular intervals.
type Recorder struct {
	store         EventStore
	config        Config
	buffer        chan *Event
	done          chan struct{}
	wg            sync.WaitGroup
	writes        sync.WaitGroup // tracks in-flight Record calls
	flushInterval time.Duration
	closed        atomic.Bool
}

// NewRecorder creates a new async buffered Recorder.
// The recorder starts a background goroutine for flushing events.
func NewRecorder(store EventStore, cfg Config) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	r := &Recorder{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Event, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a savings event for async writing.
// This method is non-blocking. If the buffer is full or the recorder is
// closed, the event is dropped and a warning is logged.
func (r *Recorder) Record(event *Event) {
	if event == nil {
		return
	}

	// Check if recorder is shut down to avoid sending on closed channel
	if r.closed.Load() {
		return
	}

	// Track this call to prevent Close from closing buffer while we're sending
	r.writes.Add(1)
	defer r.writes.Done()

	// Double-check after registering - Close() may have set closed between first check and Add(1)
	if r.closed.Load() {
		return
	}

	select {
	case r.buffer <- event:
		// Event queued successfully
	default:
		// Buffer full - drop event and log warning
		ledgerEventsDropped.Inc()
		slog.Warn("savings event buffer full, dropping event",
			"command", event.Command,
			"tokens_saved", event.TokensSaved,
		)
	}
}

// Config returns the recorder configuration
func (r *Recorder) Config() Config {
	return r.config
}

// Close stops the recorder and flushes remaining events.
// This should be called during graceful shutdown.
// Close is idempotent - calling it multiple times is safe.
func (r *Recorder) Close() error {
	// Make Close idempotent - if already closed, return immediately
	if r.closed.Swap(true) {
		return nil
	}

	// Wait for any in-flight Record calls to complete
	r.writes.Wait()

	// Signal the flush loop to stop
	close(r.done)

	// Wait for the flush loop to finish
	r.wg.Wait()

	// Close the store
	return r.store.Close()
}

// flushLoop runs in the background and periodically flushes the buffer.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, BatchFlushThreshold)

	for {
		select {
		case event := <-r.buffer:
			batch = append(batch, event)
			// Flush when batch reaches threshold
			if len(batch) >= BatchFlushThreshold {
				r.flushBatch(batch)
				batch = make([]*Event, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			// Periodic flush
			if len(batch) > 0 {
				r.flushBatch(batch)
				batch = make([]*Event, 0, BatchFlushThreshold)
			}

		case <-r.done:
			// Shutdown: close buffer to stop accepting events
			// Note: r.closed is already set by Close() before sending on r.done
			close(r.buffer)
			// Drain remaining events from buffer
			for event := range r.buffer {
				batch = append(batch, event)
			}
			// Final flush
			if len(batch) > 0 {
				r.flushBatch(batch)
			}
			// Flush the store
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.store.Flush(ctx); err != nil {
				slog.Error("failed to flush event store", "error", err)
			}
			cancel()
			return
		}
	}
}

// flushBatch writes a batch of events to the store.
func (r *Recorder) flushBatch(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write savings event batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopRecorder is a recorder that does nothing (used when the ledger is disabled)
type NoopRecorder struct{}

// Record does nothing
func (r *NoopRecorder) Record(_ *Event) {}

// Config returns an empty config
func (r *NoopRecorder) Config() Config {
	return Config{Enabled: false}
}

// Close does nothing
func (r *NoopRecorder) Close() error {
	return nil
}

// RecorderInterface defines the interface for recorders (both real and noop)
type RecorderInterface interface {
	Record(event *Event)
	Config() Config
	Close() error
}
