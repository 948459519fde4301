package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rpp/internal/config"
	"rpp/plugin"

	"go.uber.org/zap"
)

// Manager starts and stops the enabled sinks
type Manager struct {
	mu      sync.Mutex
	cfg     *config.Config
	sinks   []Sink
	started []Sink
	logger  *zap.Logger
}

// NewManager creates a sink manager for cfg
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "sinks")),
	}
}

// Add adds a sink unless it is disabled in the configuration
func (m *Manager) Add(s Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := s.Name()
	if !m.cfg.IsSinkEnabled(name) {
		m.logger.Info("sink disabled in config, skipping", zap.String("sink", name))
		return nil
	}

	for _, existing := range m.sinks {
		if existing.Name() == name {
			return fmt.Errorf("sink %s already added", name)
		}
	}

	m.sinks = append(m.sinks, s)
	return nil
}

// Start checks requirements and starts every added sink. Sinks whose
// requirements fail or that fail to start are skipped. It returns the
// number of running sinks.
func (m *Manager) Start(ctx context.Context, env Env) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = WithConfig(plugin.WithMode(ctx, m.cfg.Mode), m.cfg)
	if env.Config == nil {
		env.Config = m.cfg
	}

	for _, s := range m.sinks {
		name := s.Name()
		log := m.logger.With(zap.String("sink", name))

		if err := s.CheckRequirements(ctx); err != nil {
			log.Info("sink requirements not met, skipping", zap.Error(err))
			continue
		}

		if err := s.Start(ctx, env); err != nil {
			log.Error("failed to start sink", zap.Error(err))
			continue
		}

		m.started = append(m.started, s)
		log.Info("sink started")
	}

	return len(m.started)
}

// Stop stops the running sinks in reverse start order, bounded by the
// configured shutdown timeout.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	timeout := m.cfg.Daemon.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		s := m.started[i]
		if err := s.Stop(ctx); err != nil {
			m.logger.Error("error stopping sink", zap.String("sink", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	m.started = nil

	return errors.Join(errs...)
}

// Running returns the names of started sinks
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.started))
	for _, s := range m.started {
		names = append(names, s.Name())
	}
	return names
}

// ShutdownTimeout returns the configured sink shutdown bound
func (m *Manager) ShutdownTimeout() time.Duration {
	return m.cfg.Daemon.ShutdownTimeout
}
