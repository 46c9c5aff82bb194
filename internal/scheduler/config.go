package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/config"
)

// Config controls the posting loop cadence and leases.
type Config struct {
	RunInterval  time.Duration
	JobTimeout   time.Duration
	LookbackDays int
	LockTTL      time.Duration
	ActorID      snowflake.ID
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  15 * time.Minute,
		JobTimeout:   10 * time.Minute,
		LookbackDays: 1,
		LockTTL:      5 * time.Minute,
		ActorID:      1,
	}
}

// ProvideConfig maps the process configuration onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Scheduler.RunInterval,
		LookbackDays: cfg.Scheduler.LookbackDays,
		LockTTL:      cfg.Scheduler.LockTTL,
		ActorID:      snowflake.ID(cfg.SystemActorID),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.ActorID == 0 {
		c.ActorID = defaults.ActorID
	}
	return c
}
