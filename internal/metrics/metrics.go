package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "monitor_executions_total",
	Help: "Finished executions labelled by final status",
}, []string{"status"})

var stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "monitor_step_duration_seconds",
	Help:    "Time spent in each pipeline step.",
	Buckets: []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60, 300},
}, []string{"step", "status"})

var embeddingBatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "monitor_embedding_batches_total",
	Help: "Embedding provider calls labelled by provider and outcome",
}, []string{"provider", "outcome"})

var versionsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "monitor_versions_created_total",
	Help: "Versions written by the pipeline",
})

var schedulerTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "monitor_scheduler_triggers_total",
	Help: "Scheduled job firings labelled by outcome",
}, []string{"outcome"})

var scheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "monitor_scheduled_jobs",
	Help: "Document jobs currently installed in the scheduler",
})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "monitor_queue_depth",
	Help: "Pipeline tasks waiting in the local queue",
})

// HTTPRequestDuration is observed by the gin middleware.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "monitor_http_request_duration_seconds",
	Help:    "HTTP request latency labelled by route, method and status.",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "method", "status"})

func ExecutionFinished(status string) {
	executionsTotal.WithLabelValues(status).Inc()
}

func ObserveStep(step, status string, elapsed time.Duration) {
	stepDuration.WithLabelValues(step, status).Observe(elapsed.Seconds())
}

func EmbeddingBatch(provider string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	embeddingBatches.WithLabelValues(provider, outcome).Inc()
}

func VersionCreated() {
	versionsCreated.Inc()
}

func SchedulerTrigger(outcome string) {
	schedulerTriggers.WithLabelValues(outcome).Inc()
}

func SetScheduledJobs(n int) {
	scheduledJobs.Set(float64(n))
}

func IncrementQueueDepth() {
	queueDepth.Inc()
}

func DecrementQueueDepth() {
	queueDepth.Dec()
}
