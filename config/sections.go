package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/completion"
	"github.com/whr-sorting/simbridge/core/progress"
	"github.com/whr-sorting/simbridge/core/protocol"
)

// CompletionConfig configures the completion listener.
type CompletionConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// Strategy selects how tokens are correlated: "substring" or "exact-suffix".
	Strategy    string        `json:"strategy"`
	IdleTimeout time.Duration `json:"idle_timeout"`
	FlushWindow time.Duration `json:"flush_window"`
}

// SetDefaults applies sane defaults.
func (c *CompletionConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = protocol.DefaultCompletionPort
	}
	if c.Strategy == "" {
		c.Strategy = "substring"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = completion.DefaultIdleTimeout
	}
	if c.FlushWindow == 0 {
		c.FlushWindow = completion.DefaultFlushWindow
	}
}

// Validate checks the listen port and strategy.
func (c CompletionConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if _, err := completion.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	return nil
}

// Addr renders the listen address. An empty host listens on all interfaces.
func (c CompletionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StoreConfig selects the order store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the sqlite database file.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "simbridge.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}

// ActivityConfig sizes the operator activity log.
type ActivityConfig struct {
	Capacity int `json:"capacity"`
}

// SetDefaults applies sane defaults.
func (c *ActivityConfig) SetDefaults() {
	if c.Capacity == 0 {
		c.Capacity = activity.DefaultCapacity
	}
}

// Validate checks the capacity.
func (c ActivityConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	return nil
}

// ProgressConfig controls how long per-order progress is retained.
type ProgressConfig struct {
	TTL time.Duration `json:"ttl"`
}

// SetDefaults applies sane defaults.
func (c *ProgressConfig) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = progress.DefaultTTL
	}
}

// Validate checks the TTL.
func (c ProgressConfig) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}

// LoggingConfig sets the structured logger level.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}
