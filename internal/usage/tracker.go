package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultQueueSize bounds the number of pending usage writes.
	DefaultQueueSize = 256

	// writeTimeout bounds a single persisted write. The worker uses its
	// own context so caller cancellation never drops an accepted job.
	writeTimeout = 5 * time.Second
)

// ErrTrackerStopped is returned for records submitted after Stop.
var ErrTrackerStopped = errors.New("usage tracker stopped")

type job struct {
	query    string
	chunks   []SurfacedChunk
	feedback Feedback
}

// Tracker accepts usage records on the query path and persists them on
// a background worker. Accepted records are never dropped: a full queue
// applies backpressure instead of discarding, and Stop drains the queue
// before returning.
type Tracker struct {
	store  *Store
	logger *slog.Logger

	queue  chan job
	doneCh chan struct{}

	mu      sync.Mutex
	stopped bool

	stopOnce sync.Once
}

// NewTracker starts a tracker writing to store. queueSize <= 0 uses
// DefaultQueueSize.
func NewTracker(store *Store, queueSize int, logger *slog.Logger) *Tracker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		store:  store,
		logger: logger,
		queue:  make(chan job, queueSize),
		doneCh: make(chan struct{}),
	}
	go t.worker()
	return t
}

// Record enqueues one usage record. It blocks only when the queue is
// full, honoring ctx cancellation while waiting.
func (t *Tracker) Record(ctx context.Context, query string, chunks []SurfacedChunk, feedback Feedback) error {
	if len(chunks) == 0 {
		return nil
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	// Holding the lock across the send keeps Stop from closing the
	// queue while a send is in flight.
	defer t.mu.Unlock()

	copied := make([]SurfacedChunk, len(chunks))
	copy(copied, chunks)

	select {
	case t.queue <- job{query: query, chunks: copied, feedback: feedback}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) worker() {
	defer close(t.doneCh)

	for j := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := t.store.RecordUsage(ctx, j.query, j.chunks, j.feedback)
		cancel()
		if err != nil {
			t.logger.Error("usage_record_failed",
				slog.String("query", j.query),
				slog.Int("chunks", len(j.chunks)),
				slog.String("error", err.Error()))
		}
	}
}

// Stop drains pending records and shuts the worker down. The store is
// not closed; the caller owns it.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		close(t.queue)
		t.mu.Unlock()
		<-t.doneCh
	})
}
