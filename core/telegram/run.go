package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/afkbot/core/config"
	"github.com/m3rciful/afkbot/core/logger"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/afkbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const shutdownTimeout = 10 * time.Second

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// APIURL overrides the Bot API base URL; empty means api.telegram.org.
	APIURL string

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool
	DisableCommandMenu      bool

	// OnStart runs after routes are bound and before updates are consumed.
	// It must not block.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after the bot stopped, with a fresh context bounded by shutdownTimeout.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

func newBot(opts RunOptions, poller tele.Poller) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		URL:    opts.APIURL,
		Token:  opts.Config.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(),
		OnError: func(err error, c tele.Context) {
			logCtx := logger.Background()
			if c != nil {
				logCtx = tghelpers.BuildContext(c)
			}
			logger.LogEvent(logCtx, logger.TG, slog.LevelError, "tg.error",
				slog.String("err", logger.SanitizeLimit(tgsender.RedactToken(err.Error()), 256)),
			)
		},
	})
}

// announceMode logs the update source and, in long-poll mode, drops a stale
// webhook that would otherwise make getUpdates fail.
func announceMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, popts PollerOptions, built time.Duration, cleanup bool) {
	if wh, ok := poller.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.String("username", bot.Me.Username),
			slog.Duration("duration", logger.RoundMS(built)),
		)
		return
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "polling"),
		slog.String("username", bot.Me.Username),
		slog.Duration("timeout", popts.timeout()),
		slog.Duration("duration", logger.RoundMS(built)),
	)
	if !cleanup {
		return
	}
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "failed to delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("err", tgsender.RedactToken(err.Error())),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelDebug, "webhook deleted", slog.String("event", "delete_webhook"))
}

func bind(bot *tele.Bot, opts RunOptions) (middlewares, routes int) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
			middlewares++
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
			routes++
		}
	}
	return middlewares, routes
}

// serve runs the poller until ctx is done or the bot stops on its own.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	popts := PollerFromConfig(opts.Config)
	poller := BuildPoller(popts)

	started := time.Now()
	bot, err := newBot(opts, poller)
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	cleanup := !opts.DisableWebhookCleanup && opts.Config.Telegram.RunMode == coreconfig.RunModeLongpoll
	announceMode(ctx, bot, poller, popts, time.Since(started), cleanup)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	mws, routes := bind(bot, opts)
	logger.TWire.LogAttrs(ctx, slog.LevelDebug, "tg.bound",
		slog.Int("middlewares", mws),
		slog.Int("routes", routes),
	)
	if !opts.DisableCommandMenu {
		InitBotCommands(bot, reg)
	}

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runErr := serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		stopErr = opts.OnStop(stopCtx, rt)
		cancel()
	}
	// OnStop may still enqueue sends; Close drains them.
	release()

	if stopErr != nil {
		return stopErr
	}
	return runErr
}
