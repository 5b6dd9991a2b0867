package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BridgeCreditedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "polybridge",
			Name:      "bridge_credited_total",
			Help:      "Total number of deposits credited to platform currency.",
		},
	)

	BridgeFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polybridge",
			Name:      "bridge_failed_total",
			Help:      "Total number of deposits that ended in failed status.",
		},
		[]string{"reason"}, // rate/credit
	)

	BridgeRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "polybridge",
			Name:      "bridge_requeued_total",
			Help:      "Total number of stuck deposits requeued by the reconciliation sweep.",
		},
	)

	BridgeDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "polybridge",
			Name:      "bridge_dropped_total",
			Help:      "Total number of enqueue attempts dropped because the queue was full.",
		},
	)

	BridgeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "polybridge",
			Name:      "bridge_queue_depth",
			Help:      "Current depth of the bridge work queue.",
		},
	)

	BridgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "polybridge",
			Name:      "bridge_duration_seconds",
			Help:      "Time spent executing a single bridge credit.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		BridgeCreditedTotal,
		BridgeFailedTotal,
		BridgeRequeuedTotal,
		BridgeDroppedTotal,
		BridgeQueueDepth,
		BridgeDuration,
		DbPoolOpen, DbPoolIdle, DbPoolInuse, DbPoolWaitCount, DbPoolWaitDuration,
		RedisPoolOpen, RedisPoolIdle, RedisPoolWaitCount,
	)
}
