// Package health tracks rolling health metrics per pool and periodically
// evaluates them against thresholds. Every evaluation pass publishes one
// Report per pool to subscribers, healthy or not, in generation order.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/events"
)

// WindowSize is the number of latency samples kept per pool.
const WindowSize = 100

// MetricKind identifies the statistic passed to RecordMetric.
type MetricKind int

const (
	// Latency appends a sample in milliseconds to the rolling window.
	Latency MetricKind = iota
	// SuccessRate overwrites the success rate percentage.
	SuccessRate
	// ErrorRate overwrites the error rate percentage.
	ErrorRate
	// ConnectionCount overwrites the connection count.
	ConnectionCount
)

func (k MetricKind) String() string {
	switch k {
	case Latency:
		return "latency"
	case SuccessRate:
		return "success-rate"
	case ErrorRate:
		return "error-rate"
	case ConnectionCount:
		return "connection-count"
	default:
		return "unknown"
	}
}

// Thresholds decide when a pool is reported unhealthy.
type Thresholds struct {
	// MaxLatency is the highest acceptable mean latency over the window.
	MaxLatency time.Duration
	// MinSuccessRate is the lowest acceptable success rate, in percent.
	MinSuccessRate float64
	// MaxErrorRate is the highest acceptable error rate, in percent.
	MaxErrorRate float64
}

// Config configures the monitor.
type Config struct {
	// EvaluationInterval is how often Start evaluates every pool.
	EvaluationInterval time.Duration
	Thresholds         Thresholds
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EvaluationInterval: 30 * time.Second,
		Thresholds: Thresholds{
			MaxLatency:     time.Second,
			MinSuccessRate: 95,
			MaxErrorRate:   5,
		},
	}
}

// Record holds the raw metrics last reported for a pool.
type Record struct {
	PoolID          string    `json:"pool_id"`
	Latencies       []float64 `json:"latencies_ms"`
	SuccessRate     float64   `json:"success_rate"`
	HasSuccessRate  bool      `json:"has_success_rate"`
	ErrorRate       float64   `json:"error_rate"`
	HasErrorRate    bool      `json:"has_error_rate"`
	ConnectionCount int       `json:"connection_count"`
	LastUpdated     time.Time `json:"last_updated"`
}

// MeanLatency returns the mean of the latency window in milliseconds, or
// 0 when there are no samples.
func (r Record) MeanLatency() float64 {
	if len(r.Latencies) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.Latencies {
		sum += v
	}
	return sum / float64(len(r.Latencies))
}

func (r *Record) clone() Record {
	c := *r
	c.Latencies = append([]float64(nil), r.Latencies...)
	return c
}

// Report is the outcome of evaluating one pool.
type Report struct {
	PoolID          string    `json:"pool_id"`
	Healthy         bool      `json:"healthy"`
	LatencyOK       bool      `json:"latency_ok"`
	SuccessRateOK   bool      `json:"success_rate_ok"`
	ErrorRateOK     bool      `json:"error_rate_ok"`
	MeanLatencyMs   float64   `json:"mean_latency_ms"`
	SuccessRate     float64   `json:"success_rate"`
	ErrorRate       float64   `json:"error_rate"`
	ConnectionCount int       `json:"connection_count"`
	Samples         int       `json:"samples"`
	Timestamp       time.Time `json:"timestamp"`
}

// Monitor keeps one Record per pool and evaluates them on a timer.
type Monitor struct {
	mu      sync.RWMutex
	config  Config
	records map[string]*Record
	reports map[string]Report

	// evalMu serializes evaluation passes so reports are emitted in the
	// order they are generated.
	evalMu  sync.Mutex
	emitter *events.Emitter[Report]

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. A zero EvaluationInterval uses the default.
func NewMonitor(cfg Config) *Monitor {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultConfig().EvaluationInterval
	}
	return &Monitor{
		config:  cfg,
		records: make(map[string]*Record),
		reports: make(map[string]Report),
		emitter: events.NewEmitter[Report](),
	}
}

// Thresholds returns the configured thresholds.
func (m *Monitor) Thresholds() Thresholds {
	return m.config.Thresholds
}

// RecordMetric updates the statistic of the given kind for poolID.
// Latency samples are appended to a window holding the most recent
// WindowSize values; the other kinds overwrite the previous value.
func (m *Monitor) RecordMetric(poolID string, kind MetricKind, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[poolID]
	if !ok {
		rec = &Record{PoolID: poolID}
	}

	switch kind {
	case Latency:
		rec.Latencies = append(rec.Latencies, value)
		if over := len(rec.Latencies) - WindowSize; over > 0 {
			rec.Latencies = append(rec.Latencies[:0], rec.Latencies[over:]...)
		}
	case SuccessRate:
		rec.SuccessRate = value
		rec.HasSuccessRate = true
	case ErrorRate:
		rec.ErrorRate = value
		rec.HasErrorRate = true
	case ConnectionCount:
		rec.ConnectionCount = int(value)
	default:
		return fmt.Errorf("health: metric kind %d: %w", kind, apperrors.ErrInvalidInput)
	}

	rec.LastUpdated = time.Now()
	m.records[poolID] = rec
	return nil
}

// PoolHealth returns a copy of the raw metrics for poolID and whether the
// pool has reported anything yet.
func (m *Monitor) PoolHealth(poolID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[poolID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// SuccessRate returns the last success rate recorded for poolID. ok is
// false until a success rate has been recorded.
func (m *Monitor) SuccessRate(poolID string) (rate float64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, found := m.records[poolID]
	if !found || !rec.HasSuccessRate {
		return 0, false
	}
	return rec.SuccessRate, true
}

// LastReport returns the most recent evaluation of poolID.
func (m *Monitor) LastReport(poolID string) (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[poolID]
	return r, ok
}

// Subscribe returns a channel of reports and a function that ends the
// subscription.
func (m *Monitor) Subscribe(buffer int) (<-chan Report, func()) {
	return m.emitter.Subscribe(buffer)
}

// DroppedReports returns how many report deliveries were skipped because
// a subscriber was not keeping up.
func (m *Monitor) DroppedReports() uint64 {
	return m.emitter.Dropped()
}

// Evaluate checks every pool against the thresholds, emits one report per
// pool sorted by pool id and returns them.
func (m *Monitor) Evaluate() []Report {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	now := time.Now()
	th := m.config.Thresholds

	m.mu.Lock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		rec := m.records[id]
		r := evaluate(rec, th, now)
		m.reports[id] = r
		reports = append(reports, r)
	}
	m.mu.Unlock()

	for _, r := range reports {
		if !r.Healthy {
			log.WithField("pool", r.PoolID).
				WithField("mean_latency_ms", r.MeanLatencyMs).
				WithField("success_rate", r.SuccessRate).
				WithField("error_rate", r.ErrorRate).
				Debug("pool unhealthy")
		}
		m.emitter.Emit(r)
	}
	return reports
}

func evaluate(rec *Record, th Thresholds, now time.Time) Report {
	mean := rec.MeanLatency()
	success := 100.0
	if rec.HasSuccessRate {
		success = rec.SuccessRate
	}
	errRate := 0.0
	if rec.HasErrorRate {
		errRate = rec.ErrorRate
	}

	r := Report{
		PoolID:          rec.PoolID,
		MeanLatencyMs:   mean,
		SuccessRate:     success,
		ErrorRate:       errRate,
		ConnectionCount: rec.ConnectionCount,
		Samples:         len(rec.Latencies),
		Timestamp:       now,
	}
	maxMs := float64(th.MaxLatency) / float64(time.Millisecond)
	r.LatencyOK = th.MaxLatency <= 0 || mean <= maxMs
	r.SuccessRateOK = success >= th.MinSuccessRate
	r.ErrorRateOK = th.MaxErrorRate <= 0 || errRate <= th.MaxErrorRate
	r.Healthy = r.LatencyOK && r.SuccessRateOK && r.ErrorRateOK
	return r
}

// Start runs Evaluate every EvaluationInterval until ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	log.WithField("interval", m.config.EvaluationInterval).Debug("starting health monitor")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.evaluateLoop(ctx)
	}()
	return nil
}

func (m *Monitor) evaluateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// Stop halts the evaluation loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	log.Debug("health monitor stopped")
}

// Close stops the loop and closes every subscription.
func (m *Monitor) Close() {
	m.Stop()
	m.emitter.Close()
}
