package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_ingest_total",
		Help: "Document ingestion attempts by outcome.",
	}, []string{"outcome"})

	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_stage_total",
		Help: "Enrichment stage completions by stage and terminal status.",
	}, []string{"stage", "status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "documents_stage_duration_seconds",
		Help:    "Enrichment stage duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	versionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "documents_versions_created_total",
		Help: "Total document versions created.",
	})

	workerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_worker_jobs_total",
		Help: "Queue messages handled by the worker, by outcome.",
	}, []string{"outcome"})
)

// IncIngest records an ingestion attempt with the given outcome.
func IncIngest(outcome string) {
	ingestTotal.WithLabelValues(outcome).Inc()
}

// IncStage records an enrichment stage reaching a terminal status.
func IncStage(stage, status string) {
	stageTotal.WithLabelValues(stage, status).Inc()
}

// ObserveStageDuration records an enrichment stage duration.
func ObserveStageDuration(stage string, seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncVersionCreated records a new document version.
func IncVersionCreated() {
	versionsCreatedTotal.Inc()
}

// IncJobsReceived records a queue message accepted for processing.
func IncJobsReceived() {
	workerJobsTotal.WithLabelValues("received").Inc()
}

// IncJobsCompleted records a queue message processed and deleted.
func IncJobsCompleted() {
	workerJobsTotal.WithLabelValues("completed").Inc()
}

// IncJobsFailed records a queue message whose processing failed.
func IncJobsFailed() {
	workerJobsTotal.WithLabelValues("failed").Inc()
}

// IncJobsDeletedUnrecoverable records a malformed message dropped
// without processing.
func IncJobsDeletedUnrecoverable() {
	workerJobsTotal.WithLabelValues("deleted_unrecoverable").Inc()
}

// Handler exposes metrics in Prometheus exposition format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
