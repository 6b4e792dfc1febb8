package metrics

import (
	"sort"
	"sync"
	"time"
)

// ConnectionEvent is the direction of a connection counter update.
type ConnectionEvent int

const (
	// ConnectionOpen records a lease starting.
	ConnectionOpen ConnectionEvent = iota
	// ConnectionClose records a lease ending.
	ConnectionClose
)

func (e ConnectionEvent) String() string {
	switch e {
	case ConnectionOpen:
		return "open"
	case ConnectionClose:
		return "close"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of collector counters, either global or
// scoped to one region.
type Snapshot struct {
	Region             string  `json:"region,omitempty"`
	ActiveConnections  int64   `json:"active_connections"`
	TotalConnections   uint64  `json:"total_connections"`
	PeakConnections    int64   `json:"peak_connections"`
	TotalRequests      uint64  `json:"total_requests"`
	SuccessfulRequests uint64  `json:"successful_requests"`
	FailedRequests     uint64  `json:"failed_requests"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
}

type counters struct {
	active    int64
	total     uint64
	peak      int64
	requests  uint64
	succeeded uint64
	failed    uint64
	avgMs     float64
}

func (c *counters) connection(ev ConnectionEvent) {
	switch ev {
	case ConnectionOpen:
		c.active++
		c.total++
		if c.active > c.peak {
			c.peak = c.active
		}
	case ConnectionClose:
		if c.active > 0 {
			c.active--
		}
	}
}

func (c *counters) request(success bool, ms float64) {
	c.requests++
	if success {
		c.succeeded++
	} else {
		c.failed++
	}
	n := float64(c.requests)
	c.avgMs = (c.avgMs*(n-1) + ms) / n
}

func (c *counters) snapshot(region string) Snapshot {
	return Snapshot{
		Region:             region,
		ActiveConnections:  c.active,
		TotalConnections:   c.total,
		PeakConnections:    c.peak,
		TotalRequests:      c.requests,
		SuccessfulRequests: c.succeeded,
		FailedRequests:     c.failed,
		AvgResponseTimeMs:  c.avgMs,
	}
}

func (c *counters) successRate() float64 {
	if c.requests == 0 {
		return 100
	}
	return float64(c.succeeded) / float64(c.requests) * 100
}

// Collector accumulates global and per-region connection and request
// counters. It only observes; nothing it records changes pool behaviour.
type Collector struct {
	mu      sync.RWMutex
	global  counters
	regions map[string]*counters
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{regions: make(map[string]*counters)}
}

func (c *Collector) regionLocked(region string) *counters {
	rc, ok := c.regions[region]
	if !ok {
		rc = &counters{}
		c.regions[region] = rc
	}
	return rc
}

// RecordConnection updates global and per-region active and total
// connection counters and tracks the peak active count.
func (c *Collector) RecordConnection(region string, ev ConnectionEvent) {
	c.mu.Lock()
	rc := c.regionLocked(region)
	rc.connection(ev)
	c.global.connection(ev)
	active, peak := rc.active, c.global.peak
	c.mu.Unlock()

	ActiveConnections.Set(region, float64(active))
	PeakConnections.Set(peak)
}

// RecordRequest counts a request outcome and folds responseTime into the
// running mean, per region and globally.
func (c *Collector) RecordRequest(region string, success bool, responseTime time.Duration) {
	ms := float64(responseTime) / float64(time.Millisecond)

	c.mu.Lock()
	c.regionLocked(region).request(success, ms)
	c.global.request(success, ms)
	c.mu.Unlock()

	RequestsTotal.Inc(region)
	if !success {
		RequestsFailedTotal.Inc(region)
	}
}

// Metrics returns a snapshot for region, or the global snapshot when
// region is empty. An unseen region yields a zero snapshot.
func (c *Collector) Metrics(region string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if region == "" {
		return c.global.snapshot("")
	}
	rc, ok := c.regions[region]
	if !ok {
		return Snapshot{Region: region}
	}
	return rc.snapshot(region)
}

// SuccessRate returns successful over total requests as a percentage,
// for region or globally when region is empty. It is 100 when nothing has
// been recorded.
func (c *Collector) SuccessRate(region string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if region == "" {
		return c.global.successRate()
	}
	rc, ok := c.regions[region]
	if !ok {
		return 100
	}
	return rc.successRate()
}

// Regions lists every region the collector has seen, sorted.
func (c *Collector) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.regions))
	for r := range c.regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
