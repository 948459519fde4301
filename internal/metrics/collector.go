// Package metrics exposes daemon metrics through a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rpp"

// Result label values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector holds the daemon's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	presencesLoaded  prometheus.Gauge
	discoveryErrors  prometheus.Counter
	presenceUpdates  *prometheus.CounterVec
	presenceDuration *prometheus.HistogramVec
	runtimeUpdates   *prometheus.CounterVec
	ticks            prometheus.Counter
	messages         *prometheus.CounterVec
	runningTasks     prometheus.Gauge
}

// NewCollector creates a collector on its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		presencesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presences_loaded",
			Help:      "Number of presences scheduled by the daemon",
		}),
		discoveryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_errors_total",
			Help:      "Presence manifests skipped during discovery",
		}),
		presenceUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_updates_total",
			Help:      "Presence update hook invocations",
		}, []string{"presence", "result"}),
		presenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "presence_update_duration_seconds",
			Help:      "Duration of presence update hooks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"presence"}),
		runtimeUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_updates_total",
			Help:      "Runtime poller update attempts",
		}, []string{"result"}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "global_ticks_total",
			Help:      "Global tick sweeps performed by the coordinator",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_messages_total",
			Help:      "Messages published on the broker",
		}, []string{"topic"}),
		runningTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tasks",
			Help:      "Scheduler tasks currently running",
		}),
	}
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetPresencesLoaded records the number of scheduled presences
func (c *Collector) SetPresencesLoaded(n int) {
	if c == nil {
		return
	}
	c.presencesLoaded.Set(float64(n))
}

// AddDiscoveryErrors records skipped manifests
func (c *Collector) AddDiscoveryErrors(n int) {
	if c == nil {
		return
	}
	c.discoveryErrors.Add(float64(n))
}

// RecordPresenceUpdate records one update hook invocation
func (c *Collector) RecordPresenceUpdate(presence string, seconds float64, err error) {
	if c == nil {
		return
	}
	c.presenceUpdates.WithLabelValues(presence, result(err)).Inc()
	c.presenceDuration.WithLabelValues(presence).Observe(seconds)
}

// RecordRuntimeUpdate records one runtime poll
func (c *Collector) RecordRuntimeUpdate(err error) {
	if c == nil {
		return
	}
	c.runtimeUpdates.WithLabelValues(result(err)).Inc()
}

// RecordTick records one global tick sweep
func (c *Collector) RecordTick() {
	if c == nil {
		return
	}
	c.ticks.Inc()
}

// RecordMessage records one published broker message
func (c *Collector) RecordMessage(topic string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(topic).Inc()
}

// TaskStarted increments the running task gauge
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.runningTasks.Inc()
}

// TaskFinished decrements the running task gauge
func (c *Collector) TaskFinished() {
	if c == nil {
		return
	}
	c.runningTasks.Dec()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
