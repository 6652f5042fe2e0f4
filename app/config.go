package app

import (
	"fmt"
	"time"

	"github.com/m3rciful/afkbot/afk"
	coreconfig "github.com/m3rciful/afkbot/core/config"
	"github.com/m3rciful/afkbot/core/database"
)

// DefaultDBWait bounds how long startup waits for a postgres server.
const DefaultDBWait = 30 * time.Second

// Config is the full bot configuration: the core sections plus the database and AFK tuning.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
	AFK      afk.Config      `yaml:"afk"`
	// DBWait is how long startup waits for postgres; negative disables waiting.
	DBWait time.Duration `yaml:"db_wait" envconfig:"DB_WAIT"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads path, applies the environment and validates every section.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates all sections and fills their defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.AFK.Normalize(); err != nil {
		return err
	}
	if c.DBWait == 0 {
		c.DBWait = DefaultDBWait
	}
	if c.AFK.SweepInterval > c.AFK.InactivityTimeout {
		return fmt.Errorf("afk.sweep_interval (%s) must not exceed afk.inactivity_timeout (%s)",
			c.AFK.SweepInterval, c.AFK.InactivityTimeout)
	}
	return nil
}
