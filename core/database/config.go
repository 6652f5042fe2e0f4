package database

import (
	"fmt"
	"strings"
)

const (
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
	// DriverPgx selects the jackc/pgx stdlib adapter.
	DriverPgx = "pgx"
	// DriverSQLite selects the pure-Go modernc sqlite driver.
	DriverSQLite = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	DSN            string `yaml:"dsn" envconfig:"DB_DSN"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Normalize validates the driver and fills defaults.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	switch c.Driver {
	case DriverPostgres, DriverPgx:
		if c.DSN == "" && strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("database.host or database.dsn is required for driver %q", c.Driver)
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case DriverSQLite:
		if c.DSN == "" && strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("database.path or database.dsn is required for driver %q", c.Driver)
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, pgx, sqlite", c.Driver)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("database.max_connections must be >= 0")
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 10
	}
	if c.Driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent flushes
		c.MaxConnections = 1
	}
	return nil
}

// DataSource returns the driver-specific connection string.
func (c Config) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// Dialect reports the migration dialect for the configured driver.
func (c Config) Dialect() string {
	if c.Driver == DriverSQLite {
		return DriverSQLite
	}
	return DriverPostgres
}
