// Package sink defines display surfaces that consume presence activity
// from the broker.
package sink

import (
	"context"

	"rpp/daemon"
	"rpp/internal/config"
	"rpp/internal/metrics"
	"rpp/plugin"

	"go.uber.org/zap"
)

// Sink is a display surface started alongside the daemon
type Sink interface {
	// Name returns the unique sink identifier
	Name() string

	// CheckRequirements validates if the sink can run in the current environment
	CheckRequirements(ctx context.Context) error

	// Start initializes and starts the sink
	Start(ctx context.Context, env Env) error

	// Stop gracefully shuts down the sink
	Stop(ctx context.Context) error
}

// Env is what a sink receives on Start
type Env struct {
	Broker  plugin.MessageBroker
	Daemon  *daemon.Daemon
	Config  *config.Config
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// BufferSize returns the configured subscription buffer size
func (e Env) BufferSize() int {
	if e.Config == nil || e.Config.Daemon.BrokerBufferSize < 1 {
		return config.DefaultBrokerBufferSize
	}
	return e.Config.Daemon.BrokerBufferSize
}

// Mode returns the configured execution mode
func (e Env) Mode() plugin.Mode {
	if e.Config == nil {
		return plugin.ModeDaemon
	}
	return e.Config.Mode
}

type configKey struct{}

// WithConfig attaches cfg to ctx for requirement checks
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom returns the configuration attached by WithConfig
func ConfigFrom(ctx context.Context) (*config.Config, bool) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	return cfg, ok && cfg != nil
}
