// Package scheduler runs periodic housekeeping sweeps.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration
	// Retention is how long completed workflows and decision records are kept.
	Retention time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:  time.Minute,
		Retention: 30 * 24 * time.Hour,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Interval <= 0 {
		out.Interval = d.Interval
	}
	if out.Retention <= 0 {
		out.Retention = d.Retention
	}
	return &out
}
