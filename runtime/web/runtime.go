// Package web implements the shared runtime as a local websocket endpoint.
// A browser extension connects to /ws and pushes the tabs it sees; the
// daemon's runtime poller calls Update to request a refresh and publish the
// latest snapshot to presences.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by Update before Start or after Close
	ErrNotStarted = errors.New("runtime not started")
)

const writeTimeout = 5 * time.Second

// Tab is a browser tab reported by a client
type Tab struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
	Audio  bool   `json:"audible,omitempty"`
}

// Snapshot is the runtime state visible to presences
type Snapshot struct {
	Tabs      []Tab     `json:"tabs"`
	Client    string    `json:"client,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Envelope is the wire format in both directions
type Envelope struct {
	Type string `json:"type"` // "tabs", "refresh", "hello"
	Tabs []Tab  `json:"tabs,omitempty"`
	ID   string `json:"id,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) write(msg Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Runtime serves browser clients over websocket
type Runtime struct {
	addr     string
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server    *http.Server
	listener  net.Listener
	connected atomic.Bool

	mu      sync.RWMutex
	clients map[string]*client
	pending *Snapshot
	current Snapshot
}

// New creates a runtime listening on addr once started
func New(addr string, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		addr:    addr,
		logger:  logger.With(zap.String("component", "runtime")),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Only local extensions reach a loopback listener
				return true
			},
		},
	}
}

// Start binds the listener and serves clients in the background. The
// runtime reports connected from then until Close.
func (r *Runtime) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.handleWebSocket)

	r.listener = ln
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("server error", zap.Error(err))
		}
		r.connected.Store(false)
	}()

	r.connected.Store(true)
	r.logger.Info("runtime listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (r *Runtime) Addr() string {
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}

// Connected reports whether the runtime is serving
func (r *Runtime) Connected() bool {
	return r.connected.Load()
}

// Clients returns the number of connected browser clients
func (r *Runtime) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Update asks every client for fresh tabs and promotes the latest
// snapshot received since the previous call.
func (r *Runtime) Update(ctx context.Context) error {
	if !r.Connected() {
		return ErrNotStarted
	}

	r.mu.Lock()
	if r.pending != nil {
		r.current = *r.pending
		r.pending = nil
	}
	targets := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.write(Envelope{Type: "refresh"}); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", c.id, err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns the snapshot promoted by the last Update
func (r *Runtime) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.current
	s.Tabs = append([]Tab(nil), r.current.Tabs...)
	return s
}

// ActiveTab returns the active tab of the current snapshot
func (r *Runtime) ActiveTab() (Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.current.Tabs {
		if t.Active {
			return t, true
		}
	}
	return Tab{}, false
}

// Close disconnects every client and shuts the server down
func (r *Runtime) Close(ctx context.Context) error {
	r.connected.Store(false)

	r.mu.Lock()
	for id, c := range r.clients {
		c.conn.Close()
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if r.server == nil {
		return nil
	}
	if err := r.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down runtime: %w", err)
	}
	r.logger.Info("runtime stopped")
	return nil
}

// handleWebSocket upgrades a browser client and reads its snapshots
func (r *Runtime) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}

	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	r.logger.Info("client connected", zap.String("client", c.id), zap.String("remote", req.RemoteAddr))

	if err := c.write(Envelope{Type: "hello", ID: c.id}); err != nil {
		r.logger.Warn("failed to greet client", zap.String("client", c.id), zap.Error(err))
	}

	go r.readLoop(c)
}

func (r *Runtime) readLoop(c *client) {
	defer func() {
		r.mu.Lock()
		delete(r.clients, c.id)
		r.mu.Unlock()
		c.conn.Close()
		r.logger.Info("client disconnected", zap.String("client", c.id))
	}()

	for {
		var msg Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Warn("read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "tabs":
			r.stage(c.id, msg.Tabs)
		default:
			r.logger.Debug("ignoring message", zap.String("client", c.id), zap.String("type", msg.Type))
		}
	}
}

// stage records a snapshot to be promoted by the next Update
func (r *Runtime) stage(clientID string, tabs []Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &Snapshot{
		Tabs:      tabs,
		Client:    clientID,
		UpdatedAt: time.Now(),
	}
}
