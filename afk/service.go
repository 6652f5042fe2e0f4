// Package afk implements AFK status tracking on top of the status store,
// the TTL cache and the activity tracker.
package afk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/afkbot/afk/activity"
	"github.com/m3rciful/afkbot/afk/cache"
	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/afk/storage"
	"github.com/m3rciful/afkbot/core/logger"
)

// Store is the persistence the service needs.
type Store interface {
	Get(ctx context.Context, key status.Key) (status.Status, error)
	SetAway(ctx context.Context, st status.Status) (status.Status, error)
	ClearAway(ctx context.Context, key status.Key) (status.Status, bool, error)
	Touch(ctx context.Context, touches []status.Touch) error
	FindByUsername(ctx context.Context, chatID int64, username string) (status.Status, error)
	ListInactive(ctx context.Context, cutoff time.Time, after status.Key, limit int) ([]status.Status, error)
	MarkInactive(ctx context.Context, keys []status.Key, cutoff time.Time, reason string) ([]status.Status, error)
	MarkAnnounced(ctx context.Context, key status.Key, at, notBefore time.Time) (status.Status, bool, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Counts(ctx context.Context) (tracked, away int64, err error)
}

// Return describes a finished away period.
type Return struct {
	Reason   string
	Since    time.Time
	Duration time.Duration
}

// SweepResult summarizes one inactivity sweep.
type SweepResult struct {
	Marked   []status.Status
	Scanned  int
	Batches  int
	Reverted int
	Duration time.Duration
}

// Stats is a point-in-time view of the service for /stats and the status server.
type Stats struct {
	Tracked      int64       `json:"tracked"`
	Away         int64       `json:"away"`
	Cache        cache.Stats `json:"cache"`
	PendingSeen  int         `json:"pending_seen"`
	Sweeps       uint64      `json:"sweeps"`
	SweptTotal   uint64      `json:"swept_total"`
	PrunedTotal  uint64      `json:"pruned_total"`
	LastSweepAt  time.Time   `json:"last_sweep_at,omitzero"`
	LastSweepDur int64       `json:"last_sweep_ms"`
}

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	store   Store
	cache   *cache.Cache
	tracker *activity.Tracker

	sweeps      atomic.Uint64
	swept       atomic.Uint64
	pruned      atomic.Uint64
	lastSweepAt atomic.Int64
	lastSweepMS atomic.Int64
}

// New builds the service with its cache and activity tracker.
func New(store Store, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("afk: nil store")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	c, err := cache.New(store, cfg.CacheCapacity, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:   cfg,
		store: store,
		cache: c,
		tracker: activity.New(store, activity.Options{
			Interval:  cfg.TouchFlushInterval,
			BatchSize: cfg.SweepBatchSize,
		}),
	}, nil
}

// Config returns the normalized configuration.
func (s *Service) Config() Config { return s.cfg }

// Tracker exposes the activity tracker so its flush loop can be run.
func (s *Service) Tracker() *activity.Tracker { return s.tracker }

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

// NormalizeReason trims reason, applies def when empty and caps the length.
func NormalizeReason(reason, def string) string {
	reason = strings.Join(strings.Fields(reason), " ")
	if reason == "" {
		return def
	}
	if utf8.RuneCountInString(reason) > MaxReasonRunes {
		reason = string([]rune(reason)[:MaxReasonRunes])
	}
	return reason
}

// GoAway marks the user away from now on.
func (s *Service) GoAway(ctx context.Context, id status.Identity, reason string, now time.Time) (status.Status, error) {
	st, err := s.store.SetAway(ctx, status.Status{
		Key:         id.Key,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Reason:      NormalizeReason(reason, s.cfg.DefaultReason),
		Since:       now,
		LastSeen:    now,
	})
	if err != nil {
		return status.Status{}, err
	}
	s.cache.Put(st)
	logger.LogEvent(ctx, logger.AFK, slog.LevelInfo, "afk.away",
		slog.String("key", id.Key.String()),
		slog.Int("reason_len", utf8.RuneCountInString(st.Reason)),
	)
	return st, nil
}

// ComeBack clears the away state. The bool is false when the user was not
// away or another caller cleared it first.
func (s *Service) ComeBack(ctx context.Context, key status.Key, now time.Time) (Return, bool, error) {
	before, flipped, err := s.store.ClearAway(ctx, key)
	if err != nil {
		return Return{}, false, err
	}
	if !flipped {
		s.cache.Invalidate(key)
		return Return{}, false, nil
	}

	cleared := before
	cleared.Away, cleared.Reason, cleared.Since, cleared.LastAnnouncedAt = false, "", time.Time{}, time.Time{}
	if now.After(cleared.LastSeen) {
		cleared.LastSeen = now
	}
	s.cache.Put(cleared)

	ret := Return{Reason: before.Reason, Since: before.Since, Duration: before.AwayFor(now)}
	logger.LogEvent(ctx, logger.AFK, slog.LevelInfo, "afk.back",
		slog.String("key", key.String()),
		slog.Int64("away_ms", ret.Duration.Milliseconds()),
	)
	return ret, true, nil
}

// Lookup returns the cached status; unknown users come back present.
func (s *Service) Lookup(ctx context.Context, key status.Key) (status.Status, error) {
	return s.cache.Get(ctx, key)
}

// Observe records that the user was active at now.
func (s *Service) Observe(id status.Identity, now time.Time) {
	s.tracker.Observe(status.Touch{Identity: id, At: now})
}

// Announce claims an "is AFK" notice for key. It succeeds when the user is
// away and was not announced within the cooldown.
func (s *Service) Announce(ctx context.Context, key status.Key, now time.Time) (status.Status, bool, error) {
	st, err := s.cache.Get(ctx, key)
	if err != nil {
		return status.Status{}, false, err
	}
	if !st.Away {
		return st, false, nil
	}
	if !st.LastAnnouncedAt.IsZero() && now.Sub(st.LastAnnouncedAt) < s.cfg.AnnounceCooldown {
		return st, false, nil
	}

	claimed, ok, err := s.store.MarkAnnounced(ctx, key, now, now.Add(-s.cfg.AnnounceCooldown))
	if err != nil {
		return status.Status{}, false, err
	}
	if !ok {
		// someone else announced or the user came back; the cached copy is stale
		s.cache.Invalidate(key)
		return st, false, nil
	}
	s.cache.Put(claimed)
	return claimed, true, nil
}

// ResolveMention finds the user known as @username in chatID.
func (s *Service) ResolveMention(ctx context.Context, chatID int64, username string) (status.Status, bool, error) {
	st, err := s.store.FindByUsername(ctx, chatID, username)
	if errors.Is(err, storage.ErrNotFound) {
		return status.Status{}, false, nil
	}
	if err != nil {
		return status.Status{}, false, err
	}
	s.cache.Put(st)
	return st, true, nil
}

// Sweep marks every user inactive for longer than the inactivity timeout as
// away. Pending activity is flushed first, and users whose buffered activity
// arrived during the sweep are restored.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	if _, err := s.tracker.Flush(ctx); err != nil {
		return res, fmt.Errorf("sweep: flush activity: %w", err)
	}

	cutoff := now.Add(-s.cfg.InactivityTimeout)
	after := storage.FirstKey
	for {
		if err := ctx.Err(); err != nil {
			return s.finishSweep(res, start), err
		}
		page, err := s.store.ListInactive(ctx, cutoff, after, s.cfg.SweepBatchSize)
		if err != nil {
			return s.finishSweep(res, start), fmt.Errorf("sweep: %w", err)
		}
		if len(page) == 0 {
			break
		}
		res.Batches++
		res.Scanned += len(page)

		keys := make([]status.Key, len(page))
		for i, st := range page {
			keys[i] = st.Key
		}
		marked, err := s.store.MarkInactive(ctx, keys, cutoff, s.cfg.InactiveReason)
		if err != nil {
			return s.finishSweep(res, start), fmt.Errorf("sweep batch %d: %w", res.Batches, err)
		}
		s.cache.Invalidate(keys...)

		for _, st := range marked {
			if seen, ok := s.tracker.Seen(st.Key); ok && !seen.Before(cutoff) {
				if _, _, err := s.store.ClearAway(ctx, st.Key); err == nil {
					s.cache.Invalidate(st.Key)
					res.Reverted++
					continue
				}
			}
			res.Marked = append(res.Marked, st)
		}

		after = page[len(page)-1].Key
		if len(page) < s.cfg.SweepBatchSize {
			break
		}
	}
	return s.finishSweep(res, start), nil
}

func (s *Service) finishSweep(res SweepResult, start time.Time) SweepResult {
	res.Duration = time.Since(start)
	s.sweeps.Add(1)
	s.swept.Add(uint64(len(res.Marked)))
	s.lastSweepAt.Store(time.Now().UnixMilli())
	s.lastSweepMS.Store(res.Duration.Milliseconds())
	return res
}

// Prune deletes idle records older than the retention window.
func (s *Service) Prune(ctx context.Context, now time.Time) (int64, error) {
	if !s.cfg.PruneEnabled() {
		return 0, nil
	}
	n, err := s.store.Prune(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	s.pruned.Add(uint64(n))
	return n, nil
}

// Stats collects store counts and in-process counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	tracked, away, err := s.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Tracked:      tracked,
		Away:         away,
		Cache:        s.cache.Stats(),
		PendingSeen:  s.tracker.Pending(),
		Sweeps:       s.sweeps.Load(),
		SweptTotal:   s.swept.Load(),
		PrunedTotal:  s.pruned.Load(),
		LastSweepDur: s.lastSweepMS.Load(),
	}
	if ms := s.lastSweepAt.Load(); ms > 0 {
		st.LastSweepAt = time.UnixMilli(ms).UTC()
	}
	return st, nil
}
