// Package sweeper runs the periodic inactivity sweep and retention pruning.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/logger"
)

// DefaultPruneEvery bounds how often retention pruning runs.
const DefaultPruneEvery = time.Hour

// Service is the part of the AFK service the sweeper drives.
type Service interface {
	Sweep(ctx context.Context, now time.Time) (afk.SweepResult, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// Notifier posts a notice for a user the sweep marked away.
type Notifier interface {
	NotifyInactive(ctx context.Context, st status.Status) error
}

// Options configure a Sweeper.
type Options struct {
	InitialDelay time.Duration
	Interval     time.Duration
	PruneEvery   time.Duration
	// Notifier is optional; nil keeps sweeps silent.
	Notifier Notifier
	Now      func() time.Time
}

// Sweeper owns the sweep loop.
type Sweeper struct {
	svc  Service
	opts Options

	lastPrune time.Time
}

// New returns a sweeper for svc.
func New(svc Service, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = afk.DefaultSweepInterval
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = DefaultPruneEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{svc: svc, opts: opts}
}

// Run waits for the initial delay and then sweeps every interval until ctx is done.
// Failed runs are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	logger.LogEvent(ctx, logger.Sweep, slog.LevelInfo, "sweeper.start",
		slog.Int64("initial_delay_ms", s.opts.InitialDelay.Milliseconds()),
		slog.Int64("interval_ms", s.opts.Interval.Milliseconds()),
		slog.Bool("announce", s.opts.Notifier != nil),
	)

	delay := time.NewTimer(s.opts.InitialDelay)
	select {
	case <-ctx.Done():
		delay.Stop()
		return nil
	case <-delay.C:
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			logger.LogEvent(context.WithoutCancel(ctx), logger.Sweep, slog.LevelInfo, "sweeper.stop")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep, announces the marked users and prunes when due.
func (s *Sweeper) RunOnce(ctx context.Context) afk.SweepResult {
	runID := uuid.NewString()
	ctx = logger.WithRID(ctx, runID)
	ctx = logger.WithLogger(ctx, logger.Sweep)
	now := s.opts.Now()

	res, err := s.svc.Sweep(ctx, now)
	attrs := []slog.Attr{
		slog.String("run_id", runID),
		slog.Int("marked", len(res.Marked)),
		slog.Int("scanned", res.Scanned),
		slog.Int("batches", res.Batches),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
	}
	if res.Reverted > 0 {
		attrs = append(attrs, slog.Int("reverted", res.Reverted))
	}
	switch {
	case err != nil:
		logger.LogEvent(ctx, logger.Sweep, slog.LevelError, "sweep.failed",
			append(attrs, slog.String("err", err.Error()))...)
	case len(res.Marked) > 0:
		logger.LogEvent(ctx, logger.Sweep, slog.LevelInfo, "sweep.done", attrs...)
	default:
		logger.LogEvent(ctx, logger.Sweep, slog.LevelDebug, "sweep.done", attrs...)
	}

	if s.opts.Notifier != nil {
		for _, st := range res.Marked {
			if err := s.opts.Notifier.NotifyInactive(ctx, st); err != nil {
				logger.LogEvent(ctx, logger.Sweep, slog.LevelWarn, "sweep.notify_failed",
					slog.String("key", st.Key.String()),
					slog.String("err", err.Error()),
				)
			}
		}
	}

	s.maybePrune(ctx, now)
	return res
}

func (s *Sweeper) maybePrune(ctx context.Context, now time.Time) {
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < s.opts.PruneEvery {
		return
	}
	s.lastPrune = now
	n, err := s.svc.Prune(ctx, now)
	if err != nil {
		logger.LogEvent(ctx, logger.Sweep, slog.LevelWarn, "prune.failed", slog.String("err", err.Error()))
		return
	}
	if n > 0 {
		logger.LogEvent(ctx, logger.Sweep, slog.LevelInfo, "prune.done", slog.Int64("deleted", n))
	}
}
