package manager

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/go-i2p/regionpool/lib/health"
	"github.com/go-i2p/regionpool/lib/metrics"
	"github.com/go-i2p/regionpool/lib/pool"
)

// Summary aggregates every region.
type Summary struct {
	Regions              int     `json:"regions"`
	TotalConnections     int     `json:"total_connections"`
	ActiveConnections    int     `json:"active_connections"`
	AvailableConnections int     `json:"available_connections"`
	PendingRequests      int     `json:"pending_requests"`
	MaxAgents            int     `json:"max_agents"`
	Utilization          float64 `json:"utilization"`
	TotalRequests        uint64  `json:"total_requests"`
	SuccessfulRequests   uint64  `json:"successful_requests"`
	FailedRequests       uint64  `json:"failed_requests"`
	SuccessRate          float64 `json:"success_rate"`
	AvgResponseTimeMs    float64 `json:"avg_response_time_ms"`
	PeakConnections      int64   `json:"peak_connections"`
	OutstandingLeases    int     `json:"outstanding_leases"`
}

// SystemStats is the per-region pool stats plus the global summary.
type SystemStats struct {
	Regions   map[string]pool.Stats `json:"regions"`
	Summary   Summary               `json:"summary"`
	Timestamp time.Time             `json:"timestamp"`
}

// RegionHealth is the health view of one region.
type RegionHealth struct {
	Region        string  `json:"region"`
	Healthy       bool    `json:"healthy"`
	HasData       bool    `json:"has_data"`
	SuccessRate   float64 `json:"success_rate"`
	ErrorRate     float64 `json:"error_rate"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	Samples       int     `json:"samples"`
	Utilization   float64 `json:"utilization"`
	Circuit       string  `json:"circuit,omitempty"`
	// LastReportHealthy is the verdict of the last monitor evaluation,
	// when one has run.
	LastReportHealthy *bool `json:"last_report_healthy,omitempty"`
}

// SystemHealth is the gateway-wide health summary. Healthy is true while
// the manager is running and at least one region is selectable.
type SystemHealth struct {
	Healthy     bool                    `json:"healthy"`
	Running     bool                    `json:"running"`
	Regions     map[string]RegionHealth `json:"regions"`
	Utilization float64                 `json:"utilization"`
	Timestamp   time.Time               `json:"timestamp"`
}

// SystemStats returns a snapshot of every pool and the collector. It
// does not change pool state.
func (m *Manager) SystemStats() SystemStats {
	m.mu.RLock()
	pools := lo.Values(m.pools)
	m.mu.RUnlock()

	stats := SystemStats{
		Regions:   make(map[string]pool.Stats, len(pools)),
		Timestamp: time.Now(),
	}
	for _, p := range pools {
		stats.Regions[p.Region()] = p.Stats()
	}

	all := lo.Values(stats.Regions)
	global := m.collector.Metrics("")
	s := Summary{
		Regions:              len(m.regions),
		TotalConnections:     lo.SumBy(all, func(s pool.Stats) int { return s.TotalConnections }),
		ActiveConnections:    lo.SumBy(all, func(s pool.Stats) int { return s.ActiveConnections }),
		AvailableConnections: lo.SumBy(all, func(s pool.Stats) int { return s.AvailableConnections }),
		PendingRequests:      lo.SumBy(all, func(s pool.Stats) int { return s.PendingRequests }),
		MaxAgents:            m.maxAgents,
		TotalRequests:        global.TotalRequests,
		SuccessfulRequests:   global.SuccessfulRequests,
		FailedRequests:       global.FailedRequests,
		SuccessRate:          m.collector.SuccessRate(""),
		AvgResponseTimeMs:    global.AvgResponseTimeMs,
		PeakConnections:      global.PeakConnections,
		OutstandingLeases:    m.Leases(),
	}
	if s.MaxAgents > 0 {
		s.Utilization = float64(s.ActiveConnections) / float64(s.MaxAgents)
	}
	stats.Summary = s
	return stats
}

// CollectMetrics refreshes the exported gauges, records each region's
// connection count with the health monitor, emits the stats and hands
// them to the sinks. It has no effect on pool behaviour.
func (m *Manager) CollectMetrics(ctx context.Context) SystemStats {
	stats := m.SystemStats()

	for region, ps := range stats.Regions {
		pool.UpdateMetrics(ps)
		m.recordHealth(region, health.ConnectionCount, float64(ps.TotalConnections))
		healthy := 0.0
		if m.RegionHealthy(region) {
			healthy = 1
		}
		metrics.RegionHealthy.Set(region, healthy)
	}
	metrics.GlobalUtilization.Set("global", stats.Summary.Utilization)

	m.emit(Event{Kind: EventStats, Stats: &stats, Timestamp: stats.Timestamp})
	m.publish(ctx, func(ctx context.Context, s Sink) error { return s.PublishStats(ctx, stats) })
	return stats
}

// SystemHealth computes the health summary without publishing it.
func (m *Manager) SystemHealth() SystemHealth {
	stats := m.SystemStats()
	running := !m.closed.Load()

	h := SystemHealth{
		Running:     running,
		Regions:     make(map[string]RegionHealth, len(m.regions)),
		Utilization: stats.Summary.Utilization,
		Timestamp:   stats.Timestamp,
	}

	anyHealthy := false
	for _, region := range m.regions {
		rh := RegionHealth{
			Region:      region,
			Healthy:     running && m.RegionHealthy(region),
			SuccessRate: 100,
		}
		if rec, ok := m.monitor.PoolHealth(region); ok {
			rh.MeanLatencyMs = rec.MeanLatency()
			rh.Samples = len(rec.Latencies)
			if rec.HasSuccessRate {
				rh.HasData = true
				rh.SuccessRate = rec.SuccessRate
			}
			if rec.HasErrorRate {
				rh.ErrorRate = rec.ErrorRate
			}
		}
		if ps, ok := stats.Regions[region]; ok {
			rh.Utilization = ps.Utilization
		}
		if m.breakers != nil {
			rh.Circuit = m.breakers.For(region).State().String()
		}
		if r, ok := m.monitor.LastReport(region); ok {
			healthy := r.Healthy
			rh.LastReportHealthy = &healthy
		}
		anyHealthy = anyHealthy || rh.Healthy
		h.Regions[region] = rh
	}
	h.Healthy = running && anyHealthy
	return h
}

// ReportSystemHealth computes the health summary, logs it, emits it and
// hands it to the sinks.
func (m *Manager) ReportSystemHealth(ctx context.Context) SystemHealth {
	h := m.SystemHealth()

	healthyRegions := lo.CountBy(lo.Values(h.Regions), func(r RegionHealth) bool { return r.Healthy })
	entry := log.WithField("healthy", h.Healthy).
		WithField("healthy_regions", healthyRegions).
		WithField("regions", len(h.Regions)).
		WithField("utilization", h.Utilization)
	if h.Healthy {
		entry.Info("system health")
	} else {
		entry.Warn("system unhealthy")
	}

	m.emit(Event{Kind: EventHealth, Health: &h, Timestamp: h.Timestamp})
	m.publish(ctx, func(ctx context.Context, s Sink) error { return s.PublishHealth(ctx, h) })
	return h
}
