package daemon

import (
	"time"

	"rpp/internal/metrics"

	"go.uber.org/zap"
)

// Options configures a Daemon.
type Options struct {
	// PoolSize is the worker pool capacity. Tasks beyond it queue.
	PoolSize int

	// RuntimeInterval is the runtime poller period
	RuntimeInterval time.Duration

	// TickInterval is the global tick period
	TickInterval time.Duration

	logger  *zap.Logger
	metrics *metrics.Collector
	broker  *Broker
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		PoolSize:        32,
		RuntimeInterval: time.Second,
		TickInterval:    15 * time.Second,
		logger:          zap.NewNop(),
	}
}

// Option configures a Daemon.
type Option func(*Options)

// WithPoolSize sets the worker pool capacity.
func WithPoolSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// WithRuntimeInterval sets the runtime poller period.
func WithRuntimeInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.RuntimeInterval = interval
		}
	}
}

// WithTickInterval sets the global tick period.
func WithTickInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.TickInterval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Options) {
		o.metrics = m
	}
}

// WithBroker shares an existing broker instead of creating one.
func WithBroker(b *Broker) Option {
	return func(o *Options) {
		o.broker = b
	}
}
