package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storageAttemptsTotal) }

var storageAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "artifact_storage_attempts_total",
		Help: "Object storage attempts by operation and outcome.",
	},
	[]string{"op", "outcome"}, // op: 'upload', 'confirm', 'resolve_url'
)

func IncStorageAttempt(op, outcome string) {
	storageAttemptsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
}
