// Package metrics exposes Prometheus metrics for agent stages, schedule
// toggles and live studio sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postforge/internal/agent"
)

// Metrics holds all Prometheus metrics for the PostForge server.
type Metrics struct {
	registry *prometheus.Registry

	// Agent stage metrics
	StagesInFlight *prometheus.GaugeVec
	StageRuns      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	// Schedule metrics
	ScheduleToggles *prometheus.CounterVec

	// Studio metrics
	Sessions prometheus.Gauge
}

// New creates the metrics on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StagesInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "postforge_stage_in_flight",
			Help: "Agent stages currently waiting on a remote agent",
		}, []string{"stage"}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postforge_stage_runs_total",
			Help: "Completed agent stage calls by outcome",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postforge_stage_duration_seconds",
			Help:    "Duration of agent stage calls",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"stage"}),
		ScheduleToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postforge_schedule_toggles_total",
			Help: "Schedule pause/resume requests by outcome",
		}, []string{"action", "outcome"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postforge_studio_sessions",
			Help: "Live studio sessions held in memory",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.StagesInFlight,
		m.StageRuns,
		m.StageDuration,
		m.ScheduleToggles,
		m.Sessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StageStarted records a stage entering flight.
func (m *Metrics) StageStarted(stage agent.Stage) {
	m.StagesInFlight.WithLabelValues(string(stage)).Inc()
}

// StageFinished records the outcome and duration of a stage call.
func (m *Metrics) StageFinished(stage agent.Stage, success bool, elapsed time.Duration) {
	m.StagesInFlight.WithLabelValues(string(stage)).Dec()
	m.StageRuns.WithLabelValues(string(stage), outcome(success)).Inc()
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// ScheduleToggled records a pause or resume request.
func (m *Metrics) ScheduleToggled(action string, success bool) {
	m.ScheduleToggles.WithLabelValues(action, outcome(success)).Inc()
}

// SessionCount sets the live session gauge.
func (m *Metrics) SessionCount(n int) {
	m.Sessions.Set(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
