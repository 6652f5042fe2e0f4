package afk

import (
	"fmt"
	"strings"
	"time"
)

// Config tunes AFK tracking. Zero values select the defaults below.
type Config struct {
	InactivityTimeout  time.Duration `yaml:"inactivity_timeout" envconfig:"AFK_INACTIVITY_TIMEOUT"`
	SweepInterval      time.Duration `yaml:"sweep_interval" envconfig:"AFK_SWEEP_INTERVAL"`
	SweepInitialDelay  time.Duration `yaml:"sweep_initial_delay" envconfig:"AFK_SWEEP_INITIAL_DELAY"`
	SweepBatchSize     int           `yaml:"sweep_batch_size" envconfig:"AFK_SWEEP_BATCH_SIZE"`
	CacheTTL           time.Duration `yaml:"cache_ttl" envconfig:"AFK_CACHE_TTL"`
	CacheCapacity      int           `yaml:"cache_capacity" envconfig:"AFK_CACHE_CAPACITY"`
	AnnounceCooldown   time.Duration `yaml:"announce_cooldown" envconfig:"AFK_ANNOUNCE_COOLDOWN"`
	AnnounceInactive   bool          `yaml:"announce_inactive" envconfig:"AFK_ANNOUNCE_INACTIVE"`
	TouchFlushInterval time.Duration `yaml:"touch_flush_interval" envconfig:"AFK_TOUCH_FLUSH_INTERVAL"`
	// Retention of idle records; negative disables pruning.
	Retention      time.Duration `yaml:"retention" envconfig:"AFK_RETENTION"`
	DefaultReason  string        `yaml:"default_reason" envconfig:"AFK_DEFAULT_REASON"`
	InactiveReason string        `yaml:"inactive_reason" envconfig:"AFK_INACTIVE_REASON"`
}

const (
	DefaultInactivityTimeout  = 5 * time.Minute
	DefaultSweepInterval      = time.Minute
	DefaultSweepInitialDelay  = 10 * time.Second
	DefaultSweepBatchSize     = 50
	DefaultCacheTTL           = 5 * time.Minute
	DefaultCacheCapacity      = 10000
	DefaultAnnounceCooldown   = 30 * time.Minute
	DefaultTouchFlushInterval = 5 * time.Second
	DefaultRetention          = 30 * 24 * time.Hour
	DefaultReason             = "AFK"
	DefaultInactiveReason     = "No activity"

	// MaxReasonRunes caps user supplied reasons.
	MaxReasonRunes = 200
)

// Normalize fills defaults and rejects negative sizes and intervals.
func (c *Config) Normalize() error {
	durations := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"afk.inactivity_timeout", &c.InactivityTimeout, DefaultInactivityTimeout},
		{"afk.sweep_interval", &c.SweepInterval, DefaultSweepInterval},
		{"afk.sweep_initial_delay", &c.SweepInitialDelay, DefaultSweepInitialDelay},
		{"afk.cache_ttl", &c.CacheTTL, DefaultCacheTTL},
		{"afk.announce_cooldown", &c.AnnounceCooldown, DefaultAnnounceCooldown},
		{"afk.touch_flush_interval", &c.TouchFlushInterval, DefaultTouchFlushInterval},
	}
	for _, d := range durations {
		if *d.v < 0 {
			return fmt.Errorf("%s must be >= 0", d.name)
		}
		if *d.v == 0 {
			*d.v = d.def
		}
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}

	if c.SweepBatchSize < 0 {
		return fmt.Errorf("afk.sweep_batch_size must be >= 0")
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = DefaultSweepBatchSize
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("afk.cache_capacity must be >= 0")
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}

	c.DefaultReason = strings.TrimSpace(c.DefaultReason)
	if c.DefaultReason == "" {
		c.DefaultReason = DefaultReason
	}
	c.InactiveReason = strings.TrimSpace(c.InactiveReason)
	if c.InactiveReason == "" {
		c.InactiveReason = DefaultInactiveReason
	}
	return nil
}

// PruneEnabled reports whether idle records are ever deleted.
func (c Config) PruneEnabled() bool {
	return c.Retention > 0
}
