package scheduler

import (
	"time"

	"github.com/smallbiznis/cashback/internal/config"
)

// Config controls the run loop cadence and per-job guards.
type Config struct {
	RunInterval time.Duration
	EnabledJobs []string
	LeaseTTL    time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		LeaseTTL:    30 * time.Minute,
		JobTimeout:  25 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
		LeaseTTL:    cfg.Scheduler.LeaseTTL,
		JobTimeout:  cfg.Scheduler.JobTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// a lease must outlive the job it guards
	if c.LeaseTTL < c.JobTimeout {
		c.LeaseTTL = c.JobTimeout + time.Minute
	}
	return c
}
