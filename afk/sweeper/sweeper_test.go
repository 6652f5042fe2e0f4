package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/status"
)

type fakeService struct {
	mu       sync.Mutex
	sweeps   int
	prunes   int
	marked   []status.Status
	sweepErr error
}

func (f *fakeService) Sweep(context.Context, time.Time) (afk.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	if f.sweepErr != nil {
		return afk.SweepResult{}, f.sweepErr
	}
	return afk.SweepResult{Marked: f.marked, Scanned: len(f.marked), Batches: 1}, nil
}

func (f *fakeService) Prune(context.Context, time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunes++
	return 0, nil
}

func (f *fakeService) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps, f.prunes
}

type recordingNotifier struct {
	got []status.Key
	err error
}

func (r *recordingNotifier) NotifyInactive(_ context.Context, st status.Status) error {
	r.got = append(r.got, st.Key)
	return r.err
}

func TestRunOnceNotifiesMarkedUsers(t *testing.T) {
	svc := &fakeService{marked: []status.Status{
		{Key: status.Key{ChatID: -1, UserID: 1}, Away: true},
		{Key: status.Key{ChatID: -1, UserID: 2}, Away: true},
	}}
	n := &recordingNotifier{err: errors.New("send failed")}
	s := New(svc, Options{Notifier: n})

	res := s.RunOnce(context.Background())
	if len(res.Marked) != 2 {
		t.Fatalf("marked = %d", len(res.Marked))
	}
	if len(n.got) != 2 {
		t.Fatalf("notified = %v; a failed notice must not stop the rest", n.got)
	}
}

func TestRunOncePrunesAtMostEveryPeriod(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{}
	s := New(svc, Options{PruneEvery: time.Hour, Now: func() time.Time { return now }})

	s.RunOnce(context.Background())
	now = now.Add(30 * time.Minute)
	s.RunOnce(context.Background())
	now = now.Add(31 * time.Minute)
	s.RunOnce(context.Background())

	if sweeps, prunes := svc.counts(); sweeps != 3 || prunes != 2 {
		t.Fatalf("sweeps=%d prunes=%d", sweeps, prunes)
	}
}

func TestRunOnceSurvivesSweepError(t *testing.T) {
	svc := &fakeService{sweepErr: errors.New("db down")}
	s := New(svc, Options{})
	if res := s.RunOnce(context.Background()); len(res.Marked) != 0 {
		t.Fatalf("res = %+v", res)
	}
	if _, prunes := svc.counts(); prunes != 1 {
		t.Fatalf("prune skipped after sweep error")
	}
}

func TestRunHonorsDelayAndCancel(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, Options{InitialDelay: time.Millisecond, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if sweeps, _ := svc.counts(); sweeps >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not tick")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestRunStopsDuringInitialDelay(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, Options{InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if sweeps, _ := svc.counts(); sweeps != 0 {
		t.Fatalf("swept during delay: %d", sweeps)
	}
}
