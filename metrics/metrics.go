// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plural_gateway"

// Invocation modes.
const (
	ModeStream = "stream"
	ModeSync   = "sync"
)

// Invocation outcomes.
const (
	OutcomeResult      = "result"
	OutcomeError       = "error"
	OutcomeSpawnFailed = "spawn_failed"
	OutcomeCancelled   = "cancelled"
)

// Metrics exposes collectors for agent invocations and HTTP traffic.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	invocations    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	events         *prometheus.CounterVec
	agentProcesses prometheus.Gauge
	httpRequests   *prometheus.CounterVec
}

// MustNewMetrics constructs Metrics registered with reg, or with the default
// registerer when reg is nil. Collectors already registered under the same
// name are reused, so constructing twice against one registry is fine.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Agent invocations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall time from spawn to end of stream.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events delivered to callers by type.",
		}, []string{"type"}),
		agentProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_processes",
			Help:      "Agent processes currently alive.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.invocations = register(reg, m.invocations)
	m.duration = register(reg, m.duration)
	m.events = register(reg, m.events)
	m.agentProcesses = register(reg, m.agentProcesses)
	m.httpRequests = register(reg, m.httpRequests)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveInvocation records one finished invocation.
func (m *Metrics) ObserveInvocation(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(mode, outcome).Inc()
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// IncEvent counts one delivered event.
func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// ProcessStarted marks an agent process as alive.
func (m *Metrics) ProcessStarted() {
	if m == nil {
		return
	}
	m.agentProcesses.Inc()
}

// ProcessExited marks an agent process as reaped.
func (m *Metrics) ProcessExited() {
	if m == nil {
		return
	}
	m.agentProcesses.Dec()
}

// IncHTTPRequest counts one served HTTP request.
func (m *Metrics) IncHTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
