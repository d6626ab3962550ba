package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/whr-sorting/simbridge/core/metrics"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/supervisor"
	"github.com/whr-sorting/simbridge/infra/monitoring"
	"github.com/whr-sorting/simbridge/infra/mqtt"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with "__", e.g. SIMBRIDGE_MAPPING__PORT.
const EnvPrefix = "SIMBRIDGE_"

// defaultOpsTimeout covers a simulation start, which waits out the settle
// delay before replying.
const defaultOpsTimeout = 15 * time.Second

type Config struct {
	Simulation supervisor.Config `json:"simulation"`
	Mapping    protocol.Endpoint `json:"mapping"`
	Control    protocol.Endpoint `json:"control"`
	// Ops is the loopback endpoint where serve accepts operator commands.
	Ops        protocol.Endpoint `json:"ops"`
	Completion CompletionConfig  `json:"completion"`
	Store      StoreConfig       `json:"store"`
	Activity   ActivityConfig    `json:"activity"`
	Progress   ProgressConfig    `json:"progress"`
	Metrics    metrics.Config    `json:"metrics"`
	MQTT       mqtt.Config       `json:"mqtt"`
	Sentry     monitoring.Config `json:"sentry"`
	Logging    LoggingConfig     `json:"logging"`
	// StateFile is where serve publishes the simulation state for CLI commands.
	StateFile  string            `json:"state_file"`
}

// Load reads the optional file at path, applies environment overrides and
// validates the result. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Mapping.SetDefaults(protocol.DefaultMappingPort)
	c.Control.SetDefaults(protocol.DefaultControlPort)
	if c.Ops.Timeout == 0 {
		c.Ops.Timeout = defaultOpsTimeout
	}
	c.Ops.SetDefaults(protocol.DefaultOpsPort)
	c.Completion.SetDefaults()
	c.Store.SetDefaults()
	c.Activity.SetDefaults()
	c.Progress.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	if c.StateFile == "" {
		c.StateFile = "simbridge.state"
	}
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"simulation", c.Simulation.Validate},
		{"mapping", c.Mapping.Validate},
		{"control", c.Control.Validate},
		{"ops", c.Ops.Validate},
		{"completion", c.Completion.Validate},
		{"store", c.Store.Validate},
		{"activity", c.Activity.Validate},
		{"progress", c.Progress.Validate},
		{"mqtt", c.MQTT.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	return nil
}
