package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, usageWriteFailures) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the analytics connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use', 'max'
	)

	usageWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latexy_usage_write_failures_total",
			Help: "Usage events that could not be stored.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse, max int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	dbPoolStats.WithLabelValues("max").Set(float64(max))
}

func IncUsageWriteFailure() { usageWriteFailures.Inc() }
