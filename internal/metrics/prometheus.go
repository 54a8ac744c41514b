package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the echo test service
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsReleased prometheus.Counter

	// Provisioning metrics
	PipelinesProvisioned prometheus.Counter
	ProvisionFailures    *prometheus.CounterVec
	ProvisionDuration    prometheus.Histogram

	// Signaling metrics
	Messages           *prometheus.CounterVec
	MessageFailures    *prometheus.CounterVec
	CandidatesBuffered prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "echotest_sessions_active",
			Help: "Current number of registered test sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "echotest_sessions_created_total",
			Help: "Total number of test sessions registered",
		}),
		SessionsReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "echotest_sessions_released_total",
			Help: "Total number of test sessions released",
		}),

		PipelinesProvisioned: f.NewCounter(prometheus.CounterOpts{
			Name: "echotest_pipelines_provisioned_total",
			Help: "Total number of committed test pipelines",
		}),
		ProvisionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "echotest_provision_failures_total",
			Help: "Total number of failed pipeline provisioning attempts by stage",
		}, []string{"stage"}),
		ProvisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "echotest_provision_duration_seconds",
			Help:    "Time to open, create, tag and commit a pipeline",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "echotest_messages_total",
			Help: "Total number of signaling messages by command",
		}, []string{"command"}),
		MessageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "echotest_message_failures_total",
			Help: "Total number of dropped signaling messages by command",
		}, []string{"command"}),
		CandidatesBuffered: f.NewCounter(prometheus.CounterOpts{
			Name: "echotest_candidates_buffered_total",
			Help: "Total number of ICE candidates buffered until a pipeline was ready",
		}),
	}
}

// NewNopMetrics returns metrics registered nowhere. Useful in tests.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
