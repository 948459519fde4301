package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rpp/internal/metrics"
	"rpp/internal/pool"
	"rpp/plugin"

	"go.uber.org/zap"
)

// State represents the daemon's current state
type State string

const (
	// StateIdle indicates the daemon has not been started
	StateIdle State = "idle"
	// StateRunning indicates presences are being scheduled
	StateRunning State = "running"
	// StateStopped indicates the daemon has shut down
	StateStopped State = "stopped"
)

var (
	// ErrNoPresences is returned by Start when nothing was loaded
	ErrNoPresences = errors.New("no presences loaded")

	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("daemon already started")

	// ErrHookPanic wraps a panic recovered from a presence hook
	ErrHookPanic = errors.New("hook panicked")
)

// PluginError reports a failed presence hook
type PluginError struct {
	Presence string
	Hook     string
	Err      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("presence %s: %s: %v", e.Presence, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Daemon schedules loaded presences. Each presence runs on its own
// interval in a worker pool, next to a coordinator driving the global tick
// and, when needed, a poller updating the shared runtime. Every task
// observes the same stop signal.
type Daemon struct {
	mu        sync.RWMutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	startedAt time.Time

	opts            Options
	presences       []*handle
	requiresRuntime bool
	runtime         plugin.Runtime
	broker          *Broker
	pool            *pool.Pool
	polling         atomic.Bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a daemon for the presences in result. rt may be nil when no
// runtime is configured.
func New(result plugin.LoadResult, rt plugin.Runtime, opts ...Option) *Daemon {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Daemon{
		state:           StateIdle,
		done:            make(chan struct{}),
		stopCh:          make(chan struct{}),
		opts:            o,
		requiresRuntime: result.RequiresRuntime,
		runtime:         rt,
		logger:          o.logger.With(zap.String("component", "daemon")),
		metrics:         o.metrics,
		broker:          o.broker,
	}
	if d.broker == nil {
		d.broker = NewBroker(o.logger, o.metrics)
	}

	d.presences = make([]*handle, 0, len(result.Presences))
	for _, p := range result.Presences {
		d.presences = append(d.presences, &handle{presence: p})
	}

	return d
}

// Start runs every presence and blocks until ctx is cancelled or Stop is
// called. On return every presence has been closed exactly once and every
// task has exited.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(d.presences) == 0 {
		d.mu.Unlock()
		d.logger.Error("no presences loaded")
		return ErrNoPresences
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.state = StateRunning
	d.startedAt = time.Now()
	d.pool = pool.New(pool.Config{
		MaxWorkers: d.opts.PoolSize,
		PanicHandler: func(r any) {
			d.logger.Error("task panicked", zap.Any("panic", r))
		},
	})
	d.mu.Unlock()

	defer close(d.done)
	defer cancel()

	d.metrics.SetPresencesLoaded(len(d.presences))

	for _, h := range d.presences {
		h := h
		d.load(runCtx, h)
		d.submit(runCtx, "presence "+h.presence.Name(), func(ctx context.Context) error {
			d.runPresence(ctx, h)
			return nil
		})
	}
	d.submit(runCtx, "coordinator", d.runCoordinator)

	if d.requiresRuntime {
		if d.runtime != nil && d.runtime.Connected() {
			d.polling.Store(true)
			d.submit(runCtx, "runtime poller", d.runRuntime)
		} else {
			d.logger.Warn("runtime poller not started: runtime is not connected")
		}
	}

	d.logger.Info("presences started",
		zap.Int("presences", len(d.presences)),
		zap.Bool("runtime_poller", d.polling.Load()),
		zap.Int("pool_size", d.opts.PoolSize),
	)
	d.notify(runCtx, fmt.Sprintf("%d presence(s) started", len(d.presences)))

	select {
	case <-runCtx.Done():
	case <-d.stopCh:
		cancel()
	}
	d.logger.Info("stopping presences")

	d.pool.Close()
	d.closeAll(context.WithoutCancel(runCtx))
	d.polling.Store(false)

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()

	d.logger.Info("presences stopped")
	return nil
}

// Stop raises the stop signal and waits until Start has returned or ctx
// expires. Raised before Start, the signal is kept and the next Start
// shuts down as soon as its presences are loaded.
func (d *Daemon) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Start returns after a run
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// submit queues a task and tracks it in metrics
func (d *Daemon) submit(ctx context.Context, name string, task pool.Task) {
	err := d.pool.Submit(ctx, func(ctx context.Context) error {
		d.metrics.TaskStarted()
		defer d.metrics.TaskFinished()
		return task(ctx)
	})
	if err != nil {
		d.logger.Error("failed to submit task", zap.String("task", name), zap.Error(err))
	}
}

// load invokes OnLoad. A failing presence is still scheduled and closed.
func (d *Daemon) load(ctx context.Context, h *handle) {
	err := h.invoke("load", func() error {
		return h.presence.OnLoad(ctx, d.broker)
	})
	h.markLoaded()
	if err != nil {
		h.recordFailure(err)
		d.logger.Error("presence failed to load", zap.String("presence", h.presence.Name()), zap.Error(err))
	}
}

// runPresence is the per-presence task
func (d *Daemon) runPresence(ctx context.Context, h *handle) {
	p := h.presence
	log := d.logger.With(zap.String("presence", p.Name()))

	if p.UsesRuntime() {
		checker := plugin.NewRequirementChecker(p.Name()).WithLogger(log)
		checker.AddOptional(
			"runtime_connected",
			"presence uses web features",
			plugin.RequireRuntime(d.runtime),
		)
		// Presences run without the runtime; failures are only warnings
		_, _ = checker.Check(ctx)
	}

	interval := p.UpdateInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := h.invoke("update", func() error {
			return p.OnUpdate(ctx, d.runtime)
		})
		if errors.Is(err, errClosed) {
			return
		}
		d.metrics.RecordPresenceUpdate(p.Name(), time.Since(started).Seconds(), err)

		if err != nil {
			h.recordFailure(err)
			log.Error("presence update failed", zap.Error(err))
		} else {
			h.recordUpdate()
		}

		timer.Reset(interval)
	}
}

// runRuntime is the shared runtime poller
func (d *Daemon) runRuntime(ctx context.Context) error {
	d.logger.Info("starting runtime poller", zap.Duration("interval", d.opts.RuntimeInterval))

	timer := time.NewTimer(d.opts.RuntimeInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return nil
		}

		err := safeCall(func() error {
			return d.runtime.Update(ctx)
		})
		d.metrics.RecordRuntimeUpdate(err)
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("failed to update runtime", zap.Error(err))
		}

		timer.Reset(d.opts.RuntimeInterval)
	}
}

// runCoordinator drives the global tick and closes every presence once
// the stop signal is raised.
func (d *Daemon) runCoordinator(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.closeAll(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
		}

		if ctx.Err() != nil {
			continue
		}

		d.metrics.RecordTick()
		for _, h := range d.presences {
			if ctx.Err() != nil {
				break
			}
			r, ok := h.presence.(plugin.Refresher)
			if !ok {
				continue
			}
			err := h.invoke("refresh", func() error { return r.Refresh(ctx) })
			if err != nil && !errors.Is(err, errClosed) {
				h.recordFailure(err)
				d.logger.Error("presence refresh failed", zap.String("presence", h.presence.Name()), zap.Error(err))
			}
		}
	}
}

// closeAll closes every presence in registry order; presences already
// closed are skipped.
func (d *Daemon) closeAll(ctx context.Context) {
	for _, h := range d.presences {
		if err := h.close(ctx); err != nil {
			d.logger.Error("presence failed to close", zap.String("presence", h.presence.Name()), zap.Error(err))
		}
	}
}

func (d *Daemon) notify(ctx context.Context, text string) {
	err := d.broker.Publish(ctx, plugin.Message{
		Topic:   plugin.TopicNotification,
		Payload: text,
		Source:  "daemon",
	})
	if err != nil {
		d.logger.Debug("notification not delivered", zap.Error(err))
	}
}

// Broker returns the message broker presences publish on
func (d *Daemon) Broker() *Broker {
	return d.broker
}

// Presences returns the scheduled presences in registry order
func (d *Daemon) Presences() []plugin.Presence {
	out := make([]plugin.Presence, len(d.presences))
	for i, h := range d.presences {
		out[i] = h.presence
	}
	return out
}

// GetState returns the current daemon state
func (d *Daemon) GetState() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Status is a point-in-time view of the daemon
type Status struct {
	State            State            `json:"state"`
	StartedAt        time.Time        `json:"started_at,omitempty"`
	RuntimeConnected bool             `json:"runtime_connected"`
	RuntimePolling   bool             `json:"runtime_polling"`
	Pool             pool.Stats       `json:"pool"`
	Presences        []PresenceStatus `json:"presences"`
}

// PresenceStatus describes one scheduled presence
type PresenceStatus struct {
	Name        string        `json:"name"`
	Path        string        `json:"path"`
	Interval    time.Duration `json:"interval"`
	UsesRuntime bool          `json:"uses_runtime"`
	Loaded      bool          `json:"loaded"`
	Closed      bool          `json:"closed"`
	Updates     int64         `json:"updates"`
	Failures    int64         `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
	LastUpdate  time.Time     `json:"last_update,omitempty"`
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	status := Status{
		State:     d.state,
		StartedAt: d.startedAt,
	}
	p := d.pool
	d.mu.RUnlock()

	if p != nil {
		status.Pool = p.Stats()
	}
	status.RuntimeConnected = d.runtime != nil && d.runtime.Connected()
	status.RuntimePolling = d.polling.Load()

	status.Presences = make([]PresenceStatus, 0, len(d.presences))
	for _, h := range d.presences {
		status.Presences = append(status.Presences, h.status())
	}
	return status
}

// GetStatus returns a status string for the daemon
func (d *Daemon) GetStatus(ctx context.Context) string {
	s := d.Status()

	var sb strings.Builder
	sb.WriteString("Daemon Status:\n")
	fmt.Fprintf(&sb, "  State: %s\n", s.State)
	fmt.Fprintf(&sb, "  Runtime: connected=%t polling=%t\n", s.RuntimeConnected, s.RuntimePolling)
	fmt.Fprintf(&sb, "  Presences: %d\n", len(s.Presences))
	for _, p := range s.Presences {
		fmt.Fprintf(&sb, "    - %s every %s (updates=%d failures=%d)\n", p.Name, p.Interval, p.Updates, p.Failures)
		if p.LastError != "" {
			fmt.Fprintf(&sb, "      last error: %s\n", p.LastError)
		}
	}
	return sb.String()
}

// safeCall runs fn, converting a panic into an error
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, r)
		}
	}()
	return fn()
}
