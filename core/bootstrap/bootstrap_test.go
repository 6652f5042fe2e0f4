package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/afkbot/core/config"
	coredatabase "github.com/m3rciful/afkbot/core/database"
	"github.com/m3rciful/afkbot/migrations"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMigratesAndConnectsSQLite(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "afk.db")},
		Migrations: migrations.FS,
		LoggerInit: noLogger,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer res.DB.Close()

	var n int
	if err := res.DB.Get(&n, `SELECT COUNT(*) FROM afk_status`); err != nil {
		t.Fatalf("schema missing: %v", err)
	}
}

func TestRunOrderAndWait(t *testing.T) {
	var steps []string
	_, err := Run(context.Background(), Options{
		Config:      &coreconfig.Config{},
		Database:    coredatabase.Config{Driver: coredatabase.DriverPostgres, Host: "db"},
		Migrations:  fstest.MapFS{},
		WaitTimeout: time.Second,
		LoggerInit:  func(*coreconfig.Config) error { steps = append(steps, "logger"); return nil },
		Wait: func(_ context.Context, driver, dsn string, _ time.Duration) error {
			steps = append(steps, "wait:"+driver)
			if !strings.Contains(dsn, "@db:5432/") {
				t.Errorf("dsn = %s", dsn)
			}
			return nil
		},
		Migrate: func(coredatabase.Config, fs.FS) error { steps = append(steps, "migrate"); return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return nil, errors.New("refused")
		},
	})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("err = %v", err)
	}
	if got := strings.Join(steps, ","); got != "logger,wait:postgres,migrate,connect" {
		t.Fatalf("steps = %s", got)
	}
}

func TestRunRejectsBadDatabaseConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: "oracle"},
		LoggerInit: noLogger,
	})
	if err == nil || !strings.Contains(err.Error(), "invalid database.driver") {
		t.Fatalf("err = %v", err)
	}
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("nil config accepted")
	}
}
