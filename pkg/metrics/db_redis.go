package metrics

import "github.com/prometheus/client_golang/prometheus"

// 连接池水位指标，main 里起 ticker 采集
var (
	DbPoolOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polybridge", Name: "db_pool_open", Help: "Open DB connections.",
	})
	DbPoolIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polybridge", Name: "db_pool_idle", Help: "Idle DB connections.",
	})
	DbPoolInuse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polybridge", Name: "db_pool_inuse", Help: "In-use DB connections.",
	})
	DbPoolWaitCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "polybridge", Name: "db_pool_wait_count", Help: "Connections waited for.",
	})
	DbPoolWaitDuration = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "polybridge", Name: "db_pool_wait_seconds", Help: "Total seconds waiting for a connection.",
	})

	RedisPoolOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polybridge", Name: "redis_pool_open", Help: "Total redis connections.",
	})
	RedisPoolIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polybridge", Name: "redis_pool_idle", Help: "Idle redis connections.",
	})
	RedisPoolWaitCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "polybridge", Name: "redis_pool_wait_count", Help: "Redis connections waited for.",
	})
)
