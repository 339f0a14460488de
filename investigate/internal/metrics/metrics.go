package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

var (
	// Correlation metrics
	LinkRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_link_requests_total",
			Help: "Total number of link requests by outcome",
		},
		[]string{"outcome"},
	)

	EntitiesLinkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_entities_linked_total",
			Help: "Total number of entities added to investigations",
		},
	)

	AnalyzerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telhawk_investigate_analyzer_duration_seconds",
			Help:    "Duration of connection analyzers in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"analyzer"},
	)

	AnalyzerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_analyzer_failures_total",
			Help: "Total number of failed connection analyzer runs",
		},
		[]string{"analyzer"},
	)

	ConnectionsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_connections_detected_total",
			Help: "Total number of connections produced by analyzers",
		},
		[]string{"analyzer"},
	)

	// Timeline metrics
	TimelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telhawk_investigate_timeline_duration_seconds",
			Help:    "Duration of timeline generation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TimelineSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_timeline_source_failures_total",
			Help: "Total number of failed timeline source queries",
		},
		[]string{"source"},
	)

	// Lifecycle metrics
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_status_transitions_total",
			Help: "Total number of investigation status transitions",
		},
		[]string{"from", "to"},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_event_publish_errors_total",
			Help: "Total number of investigation events that failed to publish",
		},
	)

	GraphProjectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_investigate_graph_projection_errors_total",
			Help: "Total number of failed graph projections",
		},
	)
)

// Observer feeds engine callbacks into the collectors above.
type Observer struct{}

func (Observer) AnalyzerCompleted(kind models.ConnectionType, d time.Duration, connections int, err error) {
	AnalyzerDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	if err != nil {
		AnalyzerFailures.WithLabelValues(string(kind)).Inc()
		return
	}
	ConnectionsDetected.WithLabelValues(string(kind)).Add(float64(connections))
}

func (Observer) SourceFailed(source string) {
	TimelineSourceFailures.WithLabelValues(source).Inc()
}
