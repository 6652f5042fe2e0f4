package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/afkbot/core/config"
	coredatabase "github.com/m3rciful/afkbot/core/database"
	"github.com/m3rciful/afkbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// Migrations holds the golang-migrate files; nil skips migrating.
	Migrations fs.FS
	// WaitTimeout, when positive, waits for a postgres server to accept
	// connections before connecting.
	WaitTimeout time.Duration

	LoggerInit func(*coreconfig.Config) error
	Wait       func(ctx context.Context, driver, dsn string, timeout time.Duration) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, fs.FS) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, applies migrations and connects to the database.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	dbCfg := opts.Database
	if err := dbCfg.Normalize(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if opts.WaitTimeout > 0 && dbCfg.Driver != coredatabase.DriverSQLite {
		wait := opts.Wait
		if wait == nil {
			wait = coredatabase.WaitForDB
		}
		start := time.Now()
		if err := wait(ctx, dbCfg.Driver, dbCfg.DataSource(), opts.WaitTimeout); err != nil {
			return nil, fmt.Errorf("bootstrap: database not reachable: %w", err)
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}

	if opts.Migrations != nil {
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(dbCfg, opts.Migrations); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	return &Result{DB: db}, nil
}
