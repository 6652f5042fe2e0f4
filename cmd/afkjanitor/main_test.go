package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/status"
)

type fakeService struct {
	sweepErr error
	pruned   int64
	calls    []string
}

func (f *fakeService) Sweep(context.Context, time.Time) (afk.SweepResult, error) {
	f.calls = append(f.calls, "sweep")
	return afk.SweepResult{Marked: []status.Status{{}, {}}, Scanned: 5}, f.sweepErr
}

func (f *fakeService) Prune(context.Context, time.Time) (int64, error) {
	f.calls = append(f.calls, "prune")
	return f.pruned, nil
}

func (f *fakeService) Stats(context.Context) (afk.Stats, error) {
	f.calls = append(f.calls, "stats")
	return afk.Stats{Tracked: 9, Away: 3}, nil
}

func TestRunOnce(t *testing.T) {
	svc := &fakeService{pruned: 4}
	sum, err := runOnce(context.Background(), svc, time.Now())
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	want := Summary{Marked: 2, Scanned: 5, Pruned: 4, Tracked: 9, Away: 3}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
	if len(svc.calls) != 3 {
		t.Fatalf("calls = %v", svc.calls)
	}
}

func TestRunOnceStopsOnSweepError(t *testing.T) {
	svc := &fakeService{sweepErr: errors.New("locked")}
	if _, err := runOnce(context.Background(), svc, time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if len(svc.calls) != 1 {
		t.Fatalf("prune ran after failed sweep: %v", svc.calls)
	}
}
