// Package rest serves daemon status, the latest activities and control
// commands over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"rpp/cmd"
	"rpp/daemon"
	"rpp/plugin"
	"rpp/sink"

	"go.uber.org/zap"
)

const (
	sinkName    = "rest"
	defaultHost = "127.0.0.1"
	defaultPort = 8081
)

func init() {
	sink.Register(New())
}

// Sink is the REST API sink
type Sink struct {
	mu        sync.Mutex
	env       sink.Env
	ctx       context.Context
	router    *cmd.Router
	store     *sink.ActivityStore
	server    *http.Server
	listener  net.Listener
	authToken string
	logger    *zap.Logger
	consumed  chan struct{}
}

// CommandRequest is the body of POST /api/command
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse is the reply to a command
type CommandResponse struct {
	Success bool        `json:"success"`
	Output  string      `json:"output,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse is the reply of GET /api/status
type StatusResponse struct {
	Daemon     *daemon.Status `json:"daemon,omitempty"`
	Activities []sink.Entry   `json:"activities"`
}

// New creates a REST sink
func New() *Sink {
	return &Sink{
		store:  sink.NewActivityStore(),
		logger: zap.NewNop(),
	}
}

// Name returns the sink name
func (s *Sink) Name() string {
	return sinkName
}

// CheckRequirements requires daemon mode
func (s *Sink) CheckRequirements(ctx context.Context) error {
	checker := plugin.NewRequirementChecker(sinkName)
	checker.AddRequired(
		"daemon_mode",
		"REST API requires daemon mode",
		plugin.RequireMode(plugin.ModeDaemon),
	)
	_, err := checker.Check(ctx)
	return err
}

// Start binds the listener and serves in the background
func (s *Sink) Start(ctx context.Context, env sink.Env) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = env
	s.ctx = cmd.WithDaemon(plugin.WithMode(context.WithoutCancel(ctx), env.Mode()), env.Daemon)
	s.router = cmd.NewRouter()
	if env.Logger != nil {
		s.logger = env.Logger.With(zap.String("sink", sinkName))
	}

	host := defaultHost
	port := defaultPort
	if env.Config != nil {
		if v, ok := env.Config.GetSinkSettingString(sinkName, "host"); ok {
			host = v
		}
		if v, ok := env.Config.GetSinkSettingInt(sinkName, "port"); ok {
			port = v
		}
		if v, ok := env.Config.GetSinkSettingString(sinkName, "auth_token"); ok {
			s.authToken = v
		}
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler()}

	if env.Broker != nil {
		ch := env.Broker.Subscribe(sinkName, env.BufferSize(), plugin.TopicActivity)
		s.consumed = make(chan struct{})
		go func() {
			defer close(s.consumed)
			s.store.Consume(ch, nil)
		}()
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	s.logger.Info("serving", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts down the server and drops the subscription
func (s *Sink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
		s.server = nil
	}
	if s.env.Broker != nil {
		s.env.Broker.Unsubscribe(sinkName)
	}
	if s.consumed != nil {
		<-s.consumed
		s.consumed = nil
	}
	return err
}

// Addr returns the bound address, or "" before Start
func (s *Sink) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the HTTP routes
func (s *Sink) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/api/command", s.authMiddleware(s.handleCommand))
	if s.env.Metrics != nil {
		mux.Handle("/metrics", s.env.Metrics.Handler())
	}
	return mux
}

func (s *Sink) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			s.sendError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Sink) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Sink) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := StatusResponse{Activities: s.store.All()}
	if s.env.Daemon != nil {
		st := s.env.Daemon.Status()
		resp.Daemon = &st
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Sink) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.logger.Debug("command request", zap.String("command", req.Command))

	result, err := s.router.Route(s.ctx, req.Command)
	if err != nil {
		s.sendJSON(w, http.StatusOK, CommandResponse{Error: err.Error()})
		return
	}

	resp := CommandResponse{Success: true}
	if result != nil {
		resp.Output = result.Output
		resp.Data = result.Data
		if result.Broadcast && s.env.Broker != nil {
			_ = s.env.Broker.Publish(s.ctx, plugin.Message{
				Topic:   plugin.TopicNotification,
				Payload: result.Output,
				Source:  sinkName,
			})
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Sink) sendJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding response", zap.Error(err))
	}
}

func (s *Sink) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, map[string]string{"error": message})
}
