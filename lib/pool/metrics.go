package pool

import "github.com/go-i2p/regionpool/lib/metrics"

// Per-region pool metrics
var (
	// PoolConnections is the size of each pool's connection set.
	PoolConnections = metrics.NewGaugeVec(
		"regionpool_pool_connections",
		"Connections held by the pool",
		"region",
	)
	// PoolConnectionsActive is the number of leased connections.
	PoolConnectionsActive = metrics.NewGaugeVec(
		"regionpool_pool_connections_active",
		"Leased connections in the pool",
		"region",
	)
	// PoolConnectionsAvailable is the number of idle connections.
	PoolConnectionsAvailable = metrics.NewGaugeVec(
		"regionpool_pool_connections_available",
		"Available connections in the pool",
		"region",
	)
	// PoolPendingRequests is the length of the wait queue.
	PoolPendingRequests = metrics.NewGaugeVec(
		"regionpool_pool_pending_requests",
		"Requests waiting for a connection",
		"region",
	)
	// PoolUtilization is active over total connections.
	PoolUtilization = metrics.NewGaugeVec(
		"regionpool_pool_utilization_ratio",
		"Leased over total connections",
		"region",
	)
	// PoolTimeoutsTotal counts requests that expired in the queue.
	PoolTimeoutsTotal = metrics.NewCounterVec(
		"regionpool_pool_timeouts_total",
		"Requests that timed out waiting for a connection",
		"region",
	)
	// PoolEvictionsTotal counts idle connections reclaimed by the health check.
	PoolEvictionsTotal = metrics.NewCounterVec(
		"regionpool_pool_evictions_total",
		"Idle connections evicted by the health check",
		"region",
	)
	// PoolAcquireLatency tracks time spent waiting for a connection.
	PoolAcquireLatency = metrics.NewHistogram(
		"regionpool_pool_acquire_duration_seconds",
		"Time spent acquiring a connection from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics refreshes the per-region gauges from stats.
func UpdateMetrics(stats Stats) {
	PoolConnections.Set(stats.Region, float64(stats.TotalConnections))
	PoolConnectionsActive.Set(stats.Region, float64(stats.ActiveConnections))
	PoolConnectionsAvailable.Set(stats.Region, float64(stats.AvailableConnections))
	PoolPendingRequests.Set(stats.Region, float64(stats.PendingRequests))
	PoolUtilization.Set(stats.Region, stats.Utilization)
}
