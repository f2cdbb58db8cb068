package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TransitionsTotal       *prometheus.CounterVec
	TransitionErrorsTotal  *prometheus.CounterVec
	TransitionDuration     prometheus.Histogram
	SchedulerTicksTotal    prometheus.Counter
	SchedulerDocsProcessed *prometheus.CounterVec
	SchedulerDocFailures   prometheus.Counter
	NotificationsQueued    prometheus.Counter
	OutboxPublished        prometheus.Counter
	OutboxPublishFailures  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "charter_transitions_total",
			Help: "Committed lifecycle transitions, labelled by action and resulting status",
		}, []string{"action", "status"}),
		TransitionErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "charter_transition_errors_total",
			Help: "Rejected lifecycle transitions, labelled by error code",
		}, []string{"code"}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "charter_transition_duration_seconds",
			Help:    "End-to-end duration of orchestrated transitions including the transaction",
			Buckets: prometheus.DefBuckets,
		}),
		SchedulerTicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_scheduler_ticks_total",
			Help: "Scheduler tick runs",
		}),
		SchedulerDocsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "charter_scheduler_documents_processed_total",
			Help: "Documents transitioned by the scheduler, labelled by scan",
		}, []string{"scan"}),
		SchedulerDocFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_scheduler_document_failures_total",
			Help: "Per-document scheduler failures (tick continues past them)",
		}),
		NotificationsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_notifications_queued_total",
			Help: "Notification intents written to the outbox",
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_outbox_published_total",
			Help: "Outbox records successfully published to Kafka",
		}),
		OutboxPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed and will be retried",
		}),
	}
}
