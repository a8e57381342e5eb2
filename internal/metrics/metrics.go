package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aura_active_sessions",
		Help: "Live playback sessions by target (frequencies, music)",
	}, []string{"target"})
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aura_graph_nodes",
		Help: "Nodes alive in the realtime processing context",
	})
	StreamListeners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aura_stream_listeners",
		Help: "Remote audition listeners by transport",
	}, []string{"transport"})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_sessions_started_total",
		Help: "Live sessions started by target and tone",
	}, []string{"target", "tone"})
	ParameterCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_parameter_corrections_total",
		Help: "Parameters clamped or replaced before reaching the graph",
	}, []string{"field"})
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_exports_total",
		Help: "Export attempts by outcome",
	}, []string{"outcome"})
	DecodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_decode_failures_total",
		Help: "Music files that failed to decode, by format",
	}, []string{"format"})
)

// Histograms
var (
	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aura_render_duration_seconds",
		Help:    "Wall time of offline renders by tone",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"tone"})
)
