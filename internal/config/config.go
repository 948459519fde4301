package config

import (
	"fmt"
	"os"
	"time"

	"rpp/internal/logging"
	"rpp/plugin"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Daemon configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// Presences controls discovery
	Presences PresencesConfig `yaml:"presences"`

	// Runtime configures the shared web runtime
	Runtime RuntimeConfig `yaml:"runtime"`

	// Sink configurations
	Sinks map[string]SinkConfig `yaml:"sinks"`

	// Mode specifies the execution mode
	Mode plugin.Mode `yaml:"mode"`
}

// DaemonConfig contains daemon-specific configuration
type DaemonConfig struct {
	// LogLevel specifies the logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// DevMode is propagated to every presence and enables console logging
	DevMode bool `yaml:"dev_mode"`

	// PoolSize is the worker pool capacity
	PoolSize int `yaml:"pool_size"`

	// RuntimeInterval is the period of the runtime poller
	RuntimeInterval time.Duration `yaml:"runtime_interval"`

	// TickInterval is the period of the global tick
	TickInterval time.Duration `yaml:"tick_interval"`

	// BrokerBufferSize is the default buffer size for message broker subscriptions
	BrokerBufferSize int `yaml:"broker_buffer_size"`

	// PublishTimeout bounds delivery to a slow subscriber
	PublishTimeout time.Duration `yaml:"publish_timeout"`

	// ShutdownTimeout bounds sink shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PresencesConfig controls presence discovery
type PresencesConfig struct {
	// Dir is the root directory searched for manifests
	Dir string `yaml:"dir"`

	// EntryPoint is the manifest file name
	EntryPoint string `yaml:"entry_point"`

	// DefaultInterval applies to presences declaring no interval
	DefaultInterval time.Duration `yaml:"default_interval"`
}

// RuntimeConfig configures the web runtime
type RuntimeConfig struct {
	// Enabled starts the runtime; presences still run when it is off
	Enabled bool `yaml:"enabled"`

	// Addr is the websocket listen address
	Addr string `yaml:"addr"`
}

// SinkConfig contains configuration for a specific sink
type SinkConfig struct {
	// Enabled indicates if the sink should be started
	Enabled bool `yaml:"enabled"`

	// Settings contains sink-specific settings
	Settings map[string]interface{} `yaml:"settings"`
}

// Defaults
const (
	DefaultLogLevel         = "info"
	DefaultPoolSize         = 32
	DefaultRuntimeInterval  = 1 * time.Second
	DefaultTickInterval     = 15 * time.Second
	DefaultBrokerBufferSize = 100
	DefaultPublishTimeout   = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultPresencesDir     = "presences"
	DefaultRuntimeAddr      = "127.0.0.1:6969"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes configuration data, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from a file or returns default config
func LoadOrDefault(path string) (*Config, error) {
	if path == "" || !fileExists(path) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:         DefaultLogLevel,
			PoolSize:         DefaultPoolSize,
			RuntimeInterval:  DefaultRuntimeInterval,
			TickInterval:     DefaultTickInterval,
			BrokerBufferSize: DefaultBrokerBufferSize,
			PublishTimeout:   DefaultPublishTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
		},
		Presences: PresencesConfig{
			Dir:             DefaultPresencesDir,
			EntryPoint:      plugin.DefaultEntryPoint,
			DefaultInterval: plugin.DefaultUpdateInterval,
		},
		Runtime: RuntimeConfig{
			Enabled: true,
			Addr:    DefaultRuntimeAddr,
		},
		Sinks: make(map[string]SinkConfig),
		Mode:  plugin.ModeDaemon,
	}
}

// applyDefaults fills values a config file explicitly zeroed
func (c *Config) applyDefaults() {
	d := &c.Daemon
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
	if d.PoolSize == 0 {
		d.PoolSize = DefaultPoolSize
	}
	if d.RuntimeInterval == 0 {
		d.RuntimeInterval = DefaultRuntimeInterval
	}
	if d.TickInterval == 0 {
		d.TickInterval = DefaultTickInterval
	}
	if d.BrokerBufferSize == 0 {
		d.BrokerBufferSize = DefaultBrokerBufferSize
	}
	if d.PublishTimeout == 0 {
		d.PublishTimeout = DefaultPublishTimeout
	}
	if d.ShutdownTimeout == 0 {
		d.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Presences.Dir == "" {
		c.Presences.Dir = DefaultPresencesDir
	}
	if c.Presences.EntryPoint == "" {
		c.Presences.EntryPoint = plugin.DefaultEntryPoint
	}
	if c.Presences.DefaultInterval == 0 {
		c.Presences.DefaultInterval = plugin.DefaultUpdateInterval
	}

	if c.Runtime.Addr == "" {
		c.Runtime.Addr = DefaultRuntimeAddr
	}

	// Mode defaults
	if c.Mode == "" {
		c.Mode = plugin.ModeDaemon
	}

	// Ensure sinks map exists
	if c.Sinks == nil {
		c.Sinks = make(map[string]SinkConfig)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != plugin.ModeDaemon && c.Mode != plugin.ModeInteractive {
		return fmt.Errorf("invalid mode: %s (must be 'daemon' or 'interactive')", c.Mode)
	}

	if _, err := logging.ParseLevel(c.Daemon.LogLevel); err != nil {
		return err
	}

	if c.Daemon.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1")
	}
	if c.Daemon.RuntimeInterval <= 0 {
		return fmt.Errorf("runtime interval must be positive")
	}
	if c.Daemon.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Presences.DefaultInterval <= 0 {
		return fmt.Errorf("default presence interval must be positive")
	}

	// Validate buffer size
	if c.Daemon.BrokerBufferSize < 1 {
		return fmt.Errorf("broker buffer size must be at least 1")
	}

	if c.Daemon.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive")
	}

	return nil
}

// GetSinkConfig returns configuration for a specific sink
func (c *Config) GetSinkConfig(name string) (SinkConfig, bool) {
	cfg, exists := c.Sinks[name]
	return cfg, exists
}

// IsSinkEnabled checks if a sink is enabled in the configuration
func (c *Config) IsSinkEnabled(name string) bool {
	cfg, exists := c.Sinks[name]
	if !exists {
		// If not specified in config, assume enabled
		return true
	}
	return cfg.Enabled
}

// GetSinkSetting retrieves a specific setting for a sink
func (c *Config) GetSinkSetting(sinkName, settingName string) (interface{}, bool) {
	cfg, exists := c.Sinks[sinkName]
	if !exists || cfg.Settings == nil {
		return nil, false
	}

	val, exists := cfg.Settings[settingName]
	return val, exists
}

// GetSinkSettingString retrieves a string setting for a sink
func (c *Config) GetSinkSettingString(sinkName, settingName string) (string, bool) {
	val, exists := c.GetSinkSetting(sinkName, settingName)
	if !exists {
		return "", false
	}

	str, ok := val.(string)
	return str, ok
}

// GetSinkSettingInt retrieves an int setting for a sink
func (c *Config) GetSinkSettingInt(sinkName, settingName string) (int, bool) {
	val, exists := c.GetSinkSetting(sinkName, settingName)
	if !exists {
		return 0, false
	}

	// YAML unmarshals integers as int
	if i, ok := val.(int); ok {
		return i, true
	}

	return 0, false
}

// GetSinkSettingInt64 retrieves an int64 setting for a sink
func (c *Config) GetSinkSettingInt64(sinkName, settingName string) (int64, bool) {
	val, exists := c.GetSinkSetting(sinkName, settingName)
	if !exists {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
