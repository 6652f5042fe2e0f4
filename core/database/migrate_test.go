package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
)

var testMigrations = fstest.MapFS{
	"000001_items.up.sql":       {Data: []byte("CREATE TABLE items (id BIGINT PRIMARY KEY, name TEXT NOT NULL DEFAULT '');")},
	"000001_items.down.sql":     {Data: []byte("DROP TABLE items;")},
	"000002_items_idx.up.sql":   {Data: []byte("CREATE INDEX items_name_idx ON items (name);")},
	"000002_items_idx.down.sql": {Data: []byte("DROP INDEX items_name_idx;")},
}

func sqliteConfig(t *testing.T) Config {
	t.Helper()
	return Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "test.db")}
}

func TestRunMigrationsSQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	if err := RunMigrations(cfg, testMigrations); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// second run is a no-op
	if err := RunMigrations(cfg, testMigrations); err != nil {
		t.Fatalf("second run: %v", err)
	}

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO items (id, name) VALUES (1, 'a')`); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM items`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRunMigrationsNilFS(t *testing.T) {
	if err := RunMigrations(sqliteConfig(t), nil); err == nil {
		t.Fatal("expected error for nil filesystem")
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		driver  string
		conns   int
	}{
		{name: "default driver needs host", cfg: Config{}, wantErr: true},
		{name: "postgres defaults", cfg: Config{Host: "db"}, driver: DriverPostgres, conns: 10},
		{name: "pgx with dsn", cfg: Config{Driver: "PGX", DSN: "postgres://x"}, driver: DriverPgx, conns: 10},
		{name: "sqlite single connection", cfg: Config{Driver: "sqlite", Path: "a.db", MaxConnections: 8}, driver: DriverSQLite, conns: 1},
		{name: "sqlite requires path", cfg: Config{Driver: "sqlite"}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "oracle", Host: "db"}, wantErr: true},
		{name: "negative pool", cfg: Config{Host: "db", MaxConnections: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Driver != tt.driver || cfg.MaxConnections != tt.conns {
				t.Fatalf("got driver=%s conns=%d", cfg.Driver, cfg.MaxConnections)
			}
		})
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	got := selectApplied(files, 1, 3)
	if len(got) != 2 || got[0] != "000002_b.up.sql" || got[1] != "000003_c.up.sql" {
		t.Fatalf("selectApplied = %v", got)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("expected nil when nothing applied, got %v", got)
	}
}
