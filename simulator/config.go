package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/whr-sorting/simbridge/internal/mapsim"
)

// Config holds parameters for the simulator.
type Config struct {
	MappingAddr    string
	ControlAddr    string
	CompletionAddr string
	NoControl      bool

	AutoProcess bool
	Interval    time.Duration
	DropRate    float64

	NotifyAttempts int
	NotifyTimeout  time.Duration
	NotifyPause    time.Duration

	LogLevel string
	Verbose  bool
}

// Validate checks ranges and required addresses.
func (c *Config) Validate() error {
	if c.MappingAddr == "" {
		return errors.New("mapping address is required")
	}
	if !c.NoControl && c.ControlAddr == "" {
		return errors.New("control address is required")
	}
	if c.CompletionAddr == "" {
		return errors.New("completion address is required")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate %v must be between 0 and 1", c.DropRate)
	}
	if c.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if c.NotifyAttempts < 0 {
		return errors.New("notify attempts must not be negative")
	}
	return nil
}

// Strategy returns the processing strategy, or nil when products are only
// processed on explicit PRODUCT_PROCESSED commands.
func (c *Config) Strategy() mapsim.ProcessStrategy {
	if !c.AutoProcess {
		return nil
	}
	if c.DropRate > 0 {
		return &mapsim.RandomDrop{Interval: c.Interval, DropRate: c.DropRate}
	}
	return mapsim.AutoProcess{Interval: c.Interval}
}
