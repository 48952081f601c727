package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		conversionJobsTotal,
		conversionStageSeconds,
		synthesisChunksTotal,
		submissionsRejectedTotal,
		staleJobsFailedTotal,
	)
}

var (
	conversionJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_jobs_total",
			Help: "Conversion jobs that reached a terminal state.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	conversionStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversion_stage_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "success"},
	)

	synthesisChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_chunks_total",
			Help: "Text chunks sent to the speech engine.",
		},
		[]string{"result"},
	)

	submissionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_submissions_rejected_total",
			Help: "Job submissions refused before a job was created.",
		},
		[]string{"reason"}, // 'validation', 'rate_limited', 'forbidden'
	)

	staleJobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversion_stale_jobs_failed_total",
			Help: "Processing jobs failed at startup because their worker died.",
		},
	)
)

func IncConversionJob(status string) {
	conversionJobsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveStage(stage string, took time.Duration, success bool) {
	ok := "false"
	if success {
		ok = "true"
	}
	conversionStageSeconds.WithLabelValues(norm(stage), ok).Observe(took.Seconds())
}

func IncSynthesisChunk(result string) {
	synthesisChunksTotal.WithLabelValues(norm(result)).Inc()
}

func IncSubmissionRejected(reason string) {
	submissionsRejectedTotal.WithLabelValues(norm(reason)).Inc()
}

func AddStaleJobsFailed(n int) {
	staleJobsFailedTotal.Add(float64(n))
}
