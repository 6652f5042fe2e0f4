// Command afkjanitor is a scheduled Lambda that runs one inactivity sweep
// and prunes idle records, for deployments without a long-running bot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/storage"
	"github.com/m3rciful/afkbot/app"
	"github.com/m3rciful/afkbot/core/bootstrap"
	corecmd "github.com/m3rciful/afkbot/core/cmd"
	"github.com/m3rciful/afkbot/core/logger"
	"github.com/m3rciful/afkbot/migrations"
)

// Summary is returned to the Lambda runtime after each invocation.
type Summary struct {
	Marked  int   `json:"marked"`
	Scanned int   `json:"scanned"`
	Pruned  int64 `json:"pruned"`
	Tracked int64 `json:"tracked"`
	Away    int64 `json:"away"`
}

type maintainer interface {
	Sweep(ctx context.Context, now time.Time) (afk.SweepResult, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (afk.Stats, error)
}

func runOnce(ctx context.Context, svc maintainer, now time.Time) (Summary, error) {
	var sum Summary
	res, err := svc.Sweep(ctx, now)
	if err != nil {
		return sum, fmt.Errorf("sweep: %w", err)
	}
	sum.Marked, sum.Scanned = len(res.Marked), res.Scanned

	if sum.Pruned, err = svc.Prune(ctx, now); err != nil {
		return sum, fmt.Errorf("prune: %w", err)
	}
	st, err := svc.Stats(ctx)
	if err != nil {
		return sum, fmt.Errorf("stats: %w", err)
	}
	sum.Tracked, sum.Away = st.Tracked, st.Away
	return sum, nil
}

func handler(ctx context.Context) (Summary, error) {
	path, err := corecmd.ConfigPath("AFK_CONFIG", "config.yaml")
	if err != nil {
		return Summary{}, err
	}
	cfg, err := app.Load(path)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = logger.Shutdown() }()

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:      &cfg.Config,
		Database:    cfg.Database,
		Migrations:  migrations.FS,
		WaitTimeout: 10 * time.Second,
	})
	if err != nil {
		return Summary{}, err
	}
	defer res.DB.Close()

	svc, err := afk.New(storage.New(res.DB), cfg.AFK)
	if err != nil {
		return Summary{}, err
	}
	defer svc.Close()

	sum, err := runOnce(ctx, svc, time.Now())
	if err != nil {
		logger.LogEvent(ctx, logger.Sweep, slog.LevelError, "janitor.failed", slog.Any("err", err))
		return sum, err
	}
	logger.LogEvent(ctx, logger.Sweep, slog.LevelInfo, "janitor.done",
		slog.Int("marked", sum.Marked),
		slog.Int64("pruned", sum.Pruned),
		slog.Int64("away", sum.Away),
	)
	return sum, nil
}

func main() { lambda.Start(handler) }
