package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rpp/plugin"
)

// errClosed is returned by invoke once the presence has been closed
var errClosed = errors.New("presence closed")

// handle wraps a presence with the bookkeeping the scheduler needs. mu
// serializes hooks so a presence never sees two at once; closed is only
// set under mu, so no hook runs after OnClose.
type handle struct {
	presence plugin.Presence

	mu        sync.Mutex
	loaded    atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	updates  atomic.Int64
	failures atomic.Int64

	statMu     sync.RWMutex
	lastError  string
	lastUpdate time.Time
}

// invoke runs hook under the handle lock. Once the presence is closed it
// returns errClosed without running fn. Panics are returned as errors.
func (h *handle) invoke(hook string, fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return errClosed
	}

	if err := safeCall(fn); err != nil {
		return &PluginError{Presence: h.presence.Name(), Hook: hook, Err: err}
	}
	return nil
}

func (h *handle) markLoaded() {
	h.loaded.Store(true)
}

// close calls OnClose at most once over the lifetime of the handle, and
// only after OnLoad.
func (h *handle) close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.closed.Store(true)
		if !h.loaded.Load() {
			return
		}
		if cerr := safeCall(func() error { return h.presence.OnClose(ctx) }); cerr != nil {
			err = &PluginError{Presence: h.presence.Name(), Hook: "close", Err: cerr}
		}
	})
	return err
}

func (h *handle) recordUpdate() {
	h.updates.Add(1)
	h.statMu.Lock()
	h.lastUpdate = time.Now()
	h.statMu.Unlock()
}

func (h *handle) recordFailure(err error) {
	h.failures.Add(1)
	h.statMu.Lock()
	h.lastError = err.Error()
	h.lastUpdate = time.Now()
	h.statMu.Unlock()
}

func (h *handle) status() PresenceStatus {
	p := h.presence

	h.statMu.RLock()
	lastError, lastUpdate := h.lastError, h.lastUpdate
	h.statMu.RUnlock()

	return PresenceStatus{
		Name:        p.Name(),
		Path:        p.Path(),
		Interval:    p.UpdateInterval(),
		UsesRuntime: p.UsesRuntime(),
		Loaded:      h.loaded.Load(),
		Closed:      h.closed.Load(),
		Updates:     h.updates.Load(),
		Failures:    h.failures.Load(),
		LastError:   lastError,
		LastUpdate:  lastUpdate,
	}
}
