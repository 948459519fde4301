package plugin

import (
	"context"
	"sync"
	"time"
)

// Base carries the metadata shared by every presence. Embed it and
// override the hooks that matter:
//
//	type Clock struct {
//		plugin.Base
//	}
//
//	func New() plugin.Presence {
//		return &Clock{Base: plugin.NewBase("clock", 15*time.Second)}
//	}
type Base struct {
	name     string
	enabled  bool
	runtime  bool
	interval time.Duration

	mu      sync.RWMutex
	path    string
	devMode bool
	out     Publisher
}

// NewBase returns an enabled Base that does not use the runtime
func NewBase(name string, interval time.Duration) Base {
	return Base{
		name:     name,
		enabled:  true,
		interval: interval,
	}
}

// Name returns the presence name
func (b *Base) Name() string {
	return b.name
}

// Enabled reports whether the presence is scheduled
func (b *Base) Enabled() bool {
	return b.enabled
}

// SetEnabled toggles scheduling; only meaningful before loading completes
func (b *Base) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// UsesRuntime reports whether the presence depends on the runtime
func (b *Base) UsesRuntime() bool {
	return b.runtime
}

// SetUsesRuntime declares the runtime dependency
func (b *Base) SetUsesRuntime(uses bool) {
	b.runtime = uses
}

// UpdateInterval returns the update period
func (b *Base) UpdateInterval() time.Duration {
	return b.interval
}

// SetDefaultInterval applies interval when none was declared
func (b *Base) SetDefaultInterval(interval time.Duration) {
	if b.interval <= 0 {
		b.interval = interval
	}
}

// Path returns the directory the presence was loaded from
func (b *Base) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// SetPath records the directory the presence was loaded from
func (b *Base) SetPath(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = path
}

// DevMode reports whether developer mode is on
func (b *Base) DevMode() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.devMode
}

// SetDevMode sets developer mode
func (b *Base) SetDevMode(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devMode = enabled
}

// OnLoad stores the publisher. Presences overriding OnLoad should call it.
func (b *Base) OnLoad(ctx context.Context, out Publisher) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = out
	return nil
}

// OnUpdate does nothing
func (b *Base) OnUpdate(ctx context.Context, rt Runtime) error {
	return nil
}

// OnClose does nothing
func (b *Base) OnClose(ctx context.Context) error {
	return nil
}

// Publish sends an activity on behalf of the presence. It is a no-op
// before OnLoad.
func (b *Base) Publish(ctx context.Context, activity Activity) error {
	b.mu.RLock()
	out := b.out
	path := b.path
	b.mu.RUnlock()

	if out == nil {
		return nil
	}

	return out.Publish(ctx, Message{
		Topic:   TopicActivity,
		Payload: activity,
		Source:  b.name,
		Metadata: map[string]interface{}{
			"path": path,
		},
	})
}
