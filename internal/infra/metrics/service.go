package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo, dbPoolConns, workerQueueDepth) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snipr_audio_build_info",
			Help: "Constant 1, labelled with the running version and commit.",
		},
		[]string{"version", "commit"},
	)

	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Tasks waiting in the worker pool queue.",
		},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(inUse))
}

func SetWorkerQueueDepth(n int) {
	workerQueueDepth.Set(float64(n))
}
