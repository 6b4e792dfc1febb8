// Package pool provides the per-region connection pool used by the
// regionpool manager.
//
// A Pool owns a bounded set of connections for one region. Callers lease
// a connection with Acquire and hand it back with Release. When nothing is
// available the request waits in a two-band queue: requests whose tier has
// a positive priority (Advanced, Elite) are served before Standard ones,
// and each band is served in arrival order. Every waiting request carries
// its own timeout and settles exactly once.
//
// # Basic Usage
//
//	cfg := pool.DefaultConfig()
//	cfg.MinConnections = 2
//	cfg.MaxConnections = 8
//
//	p, err := pool.New("eu-west", cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//
//	conn, err := p.Acquire(ctx, "requester-42", pool.Elite)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(conn)
//
// # Backing Resources
//
// Connections are abstract handles. Set Config.Factory to attach a real
// resource (a socket, a database client) to each one; it is closed when the
// connection is evicted or the pool is destroyed.
//
// # Health Check
//
// Every HealthCheckInterval the pool evicts connections idle longer than
// IdleTimeout while it holds more than MinConnections, flags leases older
// than twice ConnectionTimeout as unhealthy without reclaiming them, and
// tops the pool back up to MinConnections.
//
// # Metrics
//
// Per-region metrics are registered with the metrics package:
//   - regionpool_pool_connections: Connections held by the pool
//   - regionpool_pool_connections_active: Leased connections
//   - regionpool_pool_connections_available: Idle connections
//   - regionpool_pool_pending_requests: Queue length
//   - regionpool_pool_utilization_ratio: Active over total
//   - regionpool_pool_timeouts_total: Requests that expired
//   - regionpool_pool_evictions_total: Idle evictions
//   - regionpool_pool_acquire_duration_seconds: Acquire wait time
package pool
