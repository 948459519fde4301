package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector()

	c.SetPresencesLoaded(3)
	c.AddDiscoveryErrors(2)
	c.RecordPresenceUpdate("clock", 0.01, nil)
	c.RecordPresenceUpdate("clock", 0.02, errors.New("x"))
	c.RecordRuntimeUpdate(nil)
	c.RecordTick()
	c.RecordMessage("activity")
	c.TaskStarted()
	c.TaskStarted()
	c.TaskFinished()

	assert.Equal(t, 3.0, testutil.ToFloat64(c.presencesLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.discoveryErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.presenceUpdates.WithLabelValues("clock", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.presenceUpdates.WithLabelValues("clock", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runtimeUpdates.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("activity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runningTasks))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.RecordTick()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rpp_global_ticks_total 1"))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.SetPresencesLoaded(1)
		c.AddDiscoveryErrors(1)
		c.RecordPresenceUpdate("x", 1, nil)
		c.RecordRuntimeUpdate(errors.New("x"))
		c.RecordTick()
		c.RecordMessage("t")
		c.TaskStarted()
		c.TaskFinished()
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
