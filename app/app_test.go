package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/bootstrap"
	coreconfig "github.com/m3rciful/afkbot/core/config"
	"github.com/m3rciful/afkbot/core/database"
	tg "github.com/m3rciful/afkbot/core/telegram"
	"github.com/m3rciful/afkbot/migrations"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newApp(t *testing.T, listen string) *App {
	t.Helper()
	cfg := &Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "x", AdminID: 1},
			Status:   coreconfig.StatusConfig{Listen: listen},
		},
		Database: database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "afk.db")},
		AFK:      afk.Config{SweepInitialDelay: time.Hour},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	res, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	a, err := New(cfg, res.DB)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"telegram:",
		"  token: abc",
		"database:",
		"  driver: sqlite",
		"  path: afk.db",
		"afk:",
		"  inactivity_timeout: 10m",
		"  default_reason: \"gone fishing\"",
	}, "\n")+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AFK.InactivityTimeout != 10*time.Minute {
		t.Fatalf("inactivity = %s", cfg.AFK.InactivityTimeout)
	}
	if cfg.AFK.DefaultReason != "gone fishing" {
		t.Fatalf("default reason = %q", cfg.AFK.DefaultReason)
	}
	if cfg.AFK.SweepInterval != afk.DefaultSweepInterval {
		t.Fatalf("sweep interval = %s", cfg.AFK.SweepInterval)
	}
	if cfg.DBWait != DefaultDBWait {
		t.Fatalf("db wait = %s", cfg.DBWait)
	}
	if cfg.CoreConfig().Telegram.Token != "abc" {
		t.Fatal("core config not shared")
	}
}

func TestLoadRejectsSweepSlowerThanTimeout(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\ndatabase:\n  driver: sqlite\n  path: afk.db\nafk:\n  inactivity_timeout: 1m\n  sweep_interval: 2m\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "sweep_interval") {
		t.Fatalf("err = %v", err)
	}
}

func TestTelegramRunOptions(t *testing.T) {
	a := newApp(t, "")
	defer a.Stop(context.Background(), tg.Runtime{})

	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Registry == nil || opts.Dispatcher == nil || opts.OnStart == nil || opts.OnStop == nil {
		t.Fatalf("incomplete options: %+v", opts)
	}
	if len(opts.Routes) == 0 || len(opts.Middlewares) == 0 {
		t.Fatal("routes or middlewares missing")
	}
	if _, _, ok := opts.Registry.LookupCommand("afk"); !ok {
		t.Fatal("afk command not registered")
	}
}

func TestStartStopFlushesActivity(t *testing.T) {
	a := newApp(t, "")
	ctx := context.Background()
	if err := a.Start(ctx, tg.Runtime{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	key := status.Key{ChatID: -5, UserID: 42}
	a.svc.Observe(status.Identity{Key: key, Username: "neo"}, time.Now())

	// The store stays reachable until Stop closes the database.
	store := a.store
	if err := a.Stop(ctx, tg.Runtime{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := a.svc.Tracker().Pending(); got != 0 {
		t.Fatalf("pending after stop = %d", got)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("database still open after stop")
	}
}

func TestStartFailsOnBadStatusAddress(t *testing.T) {
	a := newApp(t, "256.0.0.1:bad")
	defer a.Stop(context.Background(), tg.Runtime{})

	if err := a.Start(context.Background(), tg.Runtime{}); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestStatsBody(t *testing.T) {
	a := newApp(t, "")
	defer a.Stop(context.Background(), tg.Runtime{})

	ctx := context.Background()
	key := status.Key{ChatID: -5, UserID: 42}
	if _, err := a.svc.GoAway(ctx, status.Identity{Key: key}, "lunch", time.Now()); err != nil {
		t.Fatalf("go away: %v", err)
	}
	body, err := a.stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	sb, ok := body.(StatsBody)
	if !ok {
		t.Fatalf("body type %T", body)
	}
	if sb.Away != 1 || sb.Tracked != 1 {
		t.Fatalf("stats = %+v", sb.Stats)
	}
}

func TestStopLeavesDatabaseOpenWhileLoopsRun(t *testing.T) {
	a := newApp(t, "")
	store := a.store

	release := make(chan struct{})
	g := new(errgroup.Group)
	g.Go(func() error {
		<-release
		return nil
	})
	a.mu.Lock()
	a.cancel, a.group = func() {}, g
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Stop(ctx, tg.Runtime{})
	if !errors.Is(err, ErrLoopsRunning) {
		t.Fatalf("stop err = %v, want ErrLoopsRunning", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("database closed under running loops: %v", err)
	}

	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := a.Stop(context.Background(), tg.Runtime{}); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("database still open after stop")
	}
}
