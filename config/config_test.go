package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whr-sorting/simbridge/core/supervisor"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `simulation:
  executable: "/opt/webots/webots"
  scene_file: "worlds/warehouse.wbt"
  settle_delay: "1s"
mapping:
  host: "sim.local"
  timeout: "2s"
completion:
  port: 11023
  strategy: "exact-suffix"
store:
  backend: "memory"
metrics:
  sinks:
    - type: "nop"
  prometheus_addr: ":9100"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "whr"
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"simulation.executable", cfg.Simulation.Executable, "/opt/webots/webots"},
		{"simulation.scene_file", cfg.Simulation.SceneFile, "worlds/warehouse.wbt"},
		{"simulation.settle_delay", cfg.Simulation.SettleDelay, time.Second},
		{"simulation.stream_port", cfg.Simulation.StreamPort, 1234},
		{"mapping.addr", cfg.Mapping.Addr(), "sim.local:10022"},
		{"mapping.timeout", cfg.Mapping.Timeout, 2 * time.Second},
		{"control.addr", cfg.Control.Addr(), "127.0.0.1:10021"},
		{"control.timeout", cfg.Control.Timeout, 5 * time.Second},
		{"completion.addr", cfg.Completion.Addr(), ":11023"},
		{"completion.strategy", cfg.Completion.Strategy, "exact-suffix"},
		{"store.backend", cfg.Store.Backend, "memory"},
		{"activity.capacity", cfg.Activity.Capacity, 200},
		{"progress.ttl", cfg.Progress.TTL, 24 * time.Hour},
		{"metrics.sinks", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"mqtt.lwt_topic", cfg.MQTT.LWTTopic, "whr/bridge/status"},
		{"logging.level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "webots", cfg.Simulation.Executable)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "simbridge.db", cfg.Store.Path)
	assert.Equal(t, ":10023", cfg.Completion.Addr())
	assert.Equal(t, "127.0.0.1:10024", cfg.Ops.Addr())
	assert.Equal(t, 15*time.Second, cfg.Ops.Timeout)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(supervisor.EnvExecutable, "/usr/local/bin/webots")
	t.Setenv(supervisor.EnvSceneFile, "/srv/worlds/sorting.wbt")
	t.Setenv("SIMBRIDGE_MAPPING__PORT", "20022")
	t.Setenv("SIMBRIDGE_STORE__BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/webots", cfg.Simulation.Executable)
	assert.Equal(t, "/srv/worlds/sorting.wbt", cfg.Simulation.SceneFile)
	assert.Equal(t, 20022, cfg.Mapping.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	cases := map[string]string{
		"strategy": "completion:\n  strategy: fuzzy\n",
		"backend":  "store:\n  backend: postgres\n",
		"level":    "logging:\n  level: loud\n",
		"port":     "mapping:\n  port: 70000\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load("config.toml")
	assert.Error(t, err)
}
