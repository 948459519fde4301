package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rpp/daemon"
	"rpp/internal/config"
	"rpp/internal/metrics"
	"rpp/plugin"
	"rpp/sink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type idlePresence struct {
	plugin.Base
}

func startSink(t *testing.T, settings map[string]interface{}) (*Sink, *daemon.Broker) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Sinks[sinkName] = config.SinkConfig{Enabled: true, Settings: settings}

	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector()
	broker := daemon.NewBroker(logger, collector)
	d := daemon.New(plugin.LoadResult{
		Presences: []plugin.Presence{&idlePresence{Base: plugin.NewBase("clock", time.Minute)}},
	}, nil, daemon.WithBroker(broker))

	s := New()
	require.NoError(t, s.Start(context.Background(), sink.Env{
		Broker:  broker,
		Daemon:  d,
		Config:  cfg,
		Metrics: collector,
		Logger:  logger,
	}))
	t.Cleanup(func() {
		require.NoError(t, s.Stop(context.Background()))
		broker.Close()
	})
	return s, broker
}

func TestREST_RequiresDaemonMode(t *testing.T) {
	s := New()
	assert.NoError(t, s.CheckRequirements(plugin.WithMode(context.Background(), plugin.ModeDaemon)))
	assert.Error(t, s.CheckRequirements(plugin.WithMode(context.Background(), plugin.ModeInteractive)))
}

func TestREST_Endpoints(t *testing.T) {
	s, broker := startSink(t, map[string]interface{}{"host": "127.0.0.1", "port": 0})
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, broker.Publish(context.Background(), plugin.Message{
		Topic:   plugin.TopicActivity,
		Source:  "clock",
		Payload: plugin.Activity{Details: "Working", State: "for 3m"},
	}))

	var status StatusResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		status = StatusResponse{}
		if json.NewDecoder(resp.Body).Decode(&status) != nil {
			return false
		}
		return len(status.Activities) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "clock", status.Activities[0].Presence)
	assert.Equal(t, "Working", status.Activities[0].Activity.Details)
	require.NotNil(t, status.Daemon)
	assert.Equal(t, daemon.StateIdle, status.Daemon.State)
	require.Len(t, status.Daemon.Presences, 1)
	assert.Equal(t, "clock", status.Daemon.Presences[0].Name)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestREST_Command(t *testing.T) {
	s, _ := startSink(t, map[string]interface{}{"host": "127.0.0.1", "port": 0})

	post := func(body string) CommandResponse {
		t.Helper()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(body))
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CommandResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	resp := post(`{"command": "/status"}`)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Output, "Daemon Status")

	resp = post(`{"command": "/presences"}`)
	assert.True(t, resp.Success)
	assert.Equal(t, []interface{}{"clock"}, resp.Data)

	resp = post(`{"command": "/missing"}`)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown command")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestREST_AuthToken(t *testing.T) {
	s, _ := startSink(t, map[string]interface{}{"host": "127.0.0.1", "port": 0, "auth_token": "secret"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")
}
