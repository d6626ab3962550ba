package supervisor

import (
	"fmt"
	"time"
)

// Environment variables that override the simulation settings. They follow the
// configuration loader's SIMBRIDGE_ prefix and "__" nesting convention.
const (
	EnvExecutable = "SIMBRIDGE_SIMULATION__EXECUTABLE"
	EnvSceneFile  = "SIMBRIDGE_SIMULATION__SCENE_FILE"
)

// Config describes how to launch the simulator.
type Config struct {
	// Executable is a bare command name resolved on PATH, or a path.
	Executable string `json:"executable"`
	// SceneFile is the world file passed as first argument.
	SceneFile  string   `json:"scene_file"`
	StreamPort int      `json:"stream_port"`
	ExtraArgs  []string `json:"extra_args"`
	WorkDir    string   `json:"work_dir"`
	// SettleDelay is how long Start waits after launch before returning.
	// The simulation may still not accept protocol connections afterwards.
	SettleDelay time.Duration `json:"settle_delay"`
	// StopGrace is how long Stop waits after the interrupt before killing.
	StopGrace time.Duration `json:"stop_grace"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Executable == "" {
		c.Executable = "webots"
	}
	if c.StreamPort == 0 {
		c.StreamPort = 1234
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 3 * time.Second
	}
	if c.StopGrace == 0 {
		c.StopGrace = 10 * time.Second
	}
}

// Validate checks value ranges. Missing files are reported at Start.
func (c Config) Validate() error {
	if c.StreamPort <= 0 || c.StreamPort > 65535 {
		return fmt.Errorf("simulation stream_port %d out of range", c.StreamPort)
	}
	if c.SettleDelay < 0 || c.StopGrace < 0 {
		return fmt.Errorf("simulation delays must not be negative")
	}
	return nil
}

// Args builds the simulator command line.
func (c Config) Args() []string {
	args := []string{
		c.SceneFile,
		fmt.Sprintf("--port=%d", c.StreamPort),
		"--stream",
		"--batch",
		"--stdout",
		"--stderr",
	}
	return append(args, c.ExtraArgs...)
}
