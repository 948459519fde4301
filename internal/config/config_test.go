package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rpp/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, plugin.ModeDaemon, cfg.Mode)
	assert.Equal(t, DefaultPoolSize, cfg.Daemon.PoolSize)
	assert.Equal(t, DefaultRuntimeInterval, cfg.Daemon.RuntimeInterval)
	assert.Equal(t, DefaultTickInterval, cfg.Daemon.TickInterval)
	assert.Equal(t, DefaultPresencesDir, cfg.Presences.Dir)
	assert.Equal(t, plugin.DefaultEntryPoint, cfg.Presences.EntryPoint)
	assert.True(t, cfg.Runtime.Enabled)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
mode: interactive
daemon:
  log_level: debug
  pool_size: 4
  runtime_interval: 500ms
  tick_interval: 1m
presences:
  dir: ./mine
runtime:
  enabled: false
sinks:
  rest:
    enabled: true
    settings:
      port: 9090
      host: 0.0.0.0
  telegram:
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, plugin.ModeInteractive, cfg.Mode)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.Equal(t, 4, cfg.Daemon.PoolSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.RuntimeInterval)
	assert.Equal(t, time.Minute, cfg.Daemon.TickInterval)
	assert.Equal(t, DefaultPublishTimeout, cfg.Daemon.PublishTimeout, "unset values keep their default")
	assert.Equal(t, "./mine", cfg.Presences.Dir)
	assert.False(t, cfg.Runtime.Enabled)

	port, ok := cfg.GetSinkSettingInt("rest", "port")
	assert.True(t, ok)
	assert.Equal(t, 9090, port)

	host, ok := cfg.GetSinkSettingString("rest", "host")
	assert.True(t, ok)
	assert.Equal(t, "0.0.0.0", host)

	assert.True(t, cfg.IsSinkEnabled("rest"))
	assert.False(t, cfg.IsSinkEnabled("telegram"))
	assert.True(t, cfg.IsSinkEnabled("tui"), "unlisted sinks are enabled")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"mode", "mode: batch\n", "invalid mode"},
		{"log level", "daemon:\n  log_level: loud\n", "log level"},
		{"pool size", "daemon:\n  pool_size: -1\n", "pool size"},
		{"tick", "daemon:\n  tick_interval: -1s\n", "tick interval"},
		{"syntax", "daemon: [\n", "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSinkSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sinks["telegram"] = SinkConfig{
		Enabled:  true,
		Settings: map[string]interface{}{"chat_id": 42, "token": "abc"},
	}

	id, ok := cfg.GetSinkSettingInt64("telegram", "chat_id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = cfg.GetSinkSettingInt("telegram", "token")
	assert.False(t, ok, "wrong type")

	_, ok = cfg.GetSinkSetting("missing", "x")
	assert.False(t, ok)
}

func TestLoadOrDefault_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  pool_size: 7\n"), 0o644))

	loaded, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Daemon.PoolSize)
}

func TestLoadOrDefault_Missing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
