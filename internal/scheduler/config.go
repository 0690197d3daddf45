package scheduler

import (
	"time"

	"github.com/smallbiznis/storefront/internal/config"
)

// Config controls how often supplier syncs run and how long each may take.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 6 * time.Hour,
		JobTimeout:  20 * time.Minute,
		LockTTL:     30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lock must outlive a job that runs to its timeout.
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + 10*time.Minute
	}
	return c
}
