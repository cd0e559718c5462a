package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research run metrics
	ResearchRunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"model_type", "search_type"},
	)

	ResearchRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	ResearchLoops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_loops_per_run",
			Help:    "Reflection passes per research run",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	QueriesDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_queries_dispatched_total",
			Help: "Total number of web research tasks dispatched",
		},
	)

	SourcesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_sources_registered_total",
			Help: "Total number of distinct sources registered with citation resolvers",
		},
	)

	// Fallbacks counts recovered stage failures.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_fallbacks_total",
			Help: "Total number of stage failures replaced by a fallback",
		},
		[]string{"stage", "kind"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_node_duration_seconds",
			Help:    "Research graph node execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"node"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsReset = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_sessions_reset_total",
			Help: "Total number of sessions reset by the user",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_stream_subscribers",
			Help: "Currently connected SSE and WebSocket subscribers",
		},
	)
)
