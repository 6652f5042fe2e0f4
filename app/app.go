// Package app assembles the AFK bot from configuration: storage, service,
// handlers, background loops and the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/handlers"
	"github.com/m3rciful/afkbot/afk/storage"
	"github.com/m3rciful/afkbot/afk/sweeper"
	"github.com/m3rciful/afkbot/core/bootstrap"
	"github.com/m3rciful/afkbot/core/httpstatus"
	"github.com/m3rciful/afkbot/core/logger"
	tg "github.com/m3rciful/afkbot/core/telegram"
	"github.com/m3rciful/afkbot/core/telegram/router"
	"github.com/m3rciful/afkbot/core/telegram/sender"
	"github.com/m3rciful/afkbot/migrations"
)

// App owns every long-lived component of the bot.
type App struct {
	cfg *Config
	db  *sqlx.DB

	store      *storage.Store
	svc        *afk.Service
	handlers   *handlers.Handlers
	dispatcher *sender.Dispatcher
	registry   *tg.Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Bootstrap initializes logging and the database and builds the app on top.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	wait := cfg.DBWait
	if wait < 0 {
		wait = 0
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:      &cfg.Config,
		Database:    cfg.Database,
		Migrations:  migrations.FS,
		WaitTimeout: wait,
	})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New builds the app on an open, migrated database.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	store := storage.New(db)
	svc, err := afk.New(store, cfg.AFK)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	dispatcher := sender.NewDispatcher(sender.Options{})
	h := handlers.New(svc, handlers.Options{SenderStats: dispatcher.Stats})

	reg := tg.NewRegistry()
	if err := h.Register(reg); err != nil {
		dispatcher.Close()
		svc.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	return &App{
		cfg:        cfg,
		db:         db,
		store:      store,
		svc:        svc,
		handlers:   h,
		dispatcher: dispatcher,
		registry:   reg,
	}, nil
}

// Service returns the AFK service.
func (a *App) Service() *afk.Service { return a.svc }

// TelegramRunOptions wires routes, middlewares and lifecycle hooks for the runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{AdminID: a.cfg.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(a.registry))
	routes = append(routes, a.handlers.Routes()...)

	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, nil),
		Routes:      routes,
		OnStart:     a.Start,
		OnStop:      a.Stop,
	}, nil
}

// StatsBody is the /stats payload of the status server.
type StatsBody struct {
	afk.Stats
	Sender sender.Stats `json:"sender"`
}

func (a *App) stats(ctx context.Context) (any, error) {
	st, err := a.svc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return StatsBody{Stats: st, Sender: a.dispatcher.Stats()}, nil
}

// Start launches the activity flusher, the sweeper and the status server.
// The status listener is bound here so a bad address fails startup.
func (a *App) Start(ctx context.Context, rt tg.Runtime) error {
	var ln net.Listener
	if addr := a.cfg.Status.Listen; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("app: status server listen %s: %w", addr, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return a.svc.Tracker().Run(gctx) })

	var notifier sweeper.Notifier
	if a.cfg.AFK.AnnounceInactive && rt.Bot != nil {
		notifier = handlers.InactiveNotifier{Bot: rt.Bot, Dispatcher: rt.Dispatcher}
	}
	sw := sweeper.New(a.svc, sweeper.Options{
		InitialDelay: a.cfg.AFK.SweepInitialDelay,
		Interval:     a.cfg.AFK.SweepInterval,
		Notifier:     notifier,
	})
	g.Go(func() error { return sw.Run(gctx) })

	if ln != nil {
		srv := httpstatus.New(httpstatus.Options{
			Listen: a.cfg.Status.Listen,
			Ready:  a.store,
			Stats:  a.stats,
		})
		g.Go(func() error { return srv.Serve(gctx, ln) })
	}

	a.mu.Lock()
	a.cancel, a.group = cancel, g
	a.mu.Unlock()
	return nil
}

// ErrLoopsRunning is returned by Stop when the background loops outlive its
// context. The final flush and the database close are skipped in that case.
var ErrLoopsRunning = errors.New("app: background loops still running")

// Stop halts the background loops, flushes buffered activity and closes the database.
func (a *App) Stop(ctx context.Context, _ tg.Runtime) error {
	a.mu.Lock()
	cancel, g := a.cancel, a.group
	a.cancel, a.group = nil, nil
	a.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		if err := waitLoops(ctx, g); err != nil {
			if errors.Is(err, ErrLoopsRunning) {
				logger.LogEvent(ctx, logger.Activity, slog.LevelError, "app.stop.loops_running",
					slog.Int("pending", a.svc.Tracker().Pending()),
				)
				return err
			}
			errs = append(errs, err)
		}
	}

	if n, err := a.svc.Tracker().Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: final activity flush: %w", err))
	} else if n > 0 {
		logger.LogEvent(ctx, logger.Activity, slog.LevelInfo, "activity.final_flush", slog.Int("written", n))
	}

	a.svc.Close()
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close db: %w", err))
	}
	return errors.Join(errs...)
}

// waitLoops waits for g until ctx is done. It wraps ErrLoopsRunning when the
// loops have not returned by then.
func waitLoops(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLoopsRunning, ctx.Err())
	}
}
