// Package activity buffers last-seen observations and writes them to the store in batches.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/logger"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 50
)

// Toucher persists a batch of observations.
type Toucher interface {
	Touch(ctx context.Context, touches []status.Touch) error
}

// Options configure a Tracker.
type Options struct {
	Interval  time.Duration
	BatchSize int
}

// Tracker coalesces observations per key, newest wins, until the next flush.
type Tracker struct {
	store    Toucher
	interval time.Duration
	batch    int

	mu      sync.Mutex
	pending map[status.Key]status.Touch

	// flushMu serializes flushes so a slow batch cannot be overtaken by an older one.
	flushMu sync.Mutex

	written atomic.Uint64
	failed  atomic.Uint64
}

// New returns a tracker writing to store.
func New(store Toucher, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Tracker{
		store:    store,
		interval: opts.Interval,
		batch:    opts.BatchSize,
		pending:  make(map[status.Key]status.Touch),
	}
}

// Observe buffers one activity. An older observation never replaces a newer one.
func (t *Tracker) Observe(touch status.Touch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.merge(touch)
}

func (t *Tracker) merge(touch status.Touch) {
	if cur, ok := t.pending[touch.Key]; ok && cur.At.After(touch.At) {
		return
	}
	t.pending[touch.Key] = touch
}

// Pending returns the number of buffered keys.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Seen returns the buffered, not yet flushed, activity time for key.
func (t *Tracker) Seen(key status.Key) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	touch, ok := t.pending[key]
	return touch.At, ok
}

// Written returns how many observations reached the store.
func (t *Tracker) Written() uint64 { return t.written.Load() }

// Flush writes everything buffered so far in chunks of the batch size.
// Chunks that fail are put back unless a newer observation arrived meanwhile.
// It returns the number of observations written.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	touches := make([]status.Touch, 0, len(t.pending))
	for _, v := range t.pending {
		touches = append(touches, v)
	}
	t.pending = make(map[status.Key]status.Touch, len(touches))
	t.mu.Unlock()

	sort.Slice(touches, func(i, j int) bool { return touches[i].Key.Less(touches[j].Key) })

	start := time.Now()
	var (
		written int
		errs    []error
	)
	for i := 0; i < len(touches); i += t.batch {
		chunk := touches[i:min(i+t.batch, len(touches))]
		if err := t.store.Touch(ctx, chunk); err != nil {
			errs = append(errs, err)
			t.failed.Add(uint64(len(chunk)))
			t.requeue(chunk)
			continue
		}
		written += len(chunk)
	}
	t.written.Add(uint64(written))

	err := errors.Join(errs...)
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.Int("written", written),
		slog.Int("total", len(touches)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Int("requeued", len(touches)-written), slog.String("err", err.Error()))
	}
	if err != nil || logger.ShouldSampleDebug() {
		logger.LogEvent(ctx, logger.Activity, level, "activity.flush", attrs...)
	}
	return written, err
}

func (t *Tracker) requeue(chunk []status.Touch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, touch := range chunk {
		t.merge(touch)
	}
}

// Run flushes on every interval until ctx is done. The final flush is left
// to the caller so it can use a context that outlives ctx.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	logger.LogEvent(ctx, logger.Activity, slog.LevelInfo, "activity.start",
		slog.Int64("interval_ms", t.interval.Milliseconds()),
		slog.Int("batch_size", t.batch),
	)
	for {
		select {
		case <-ctx.Done():
			logger.LogEvent(context.WithoutCancel(ctx), logger.Activity, slog.LevelInfo, "activity.stop",
				slog.Int("pending", t.Pending()),
			)
			return nil
		case <-ticker.C:
			_, _ = t.Flush(ctx)
		}
	}
}
