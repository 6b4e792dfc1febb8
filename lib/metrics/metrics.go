// Package metrics provides metrics collection for the regionpool gateway.
// It holds a small Prometheus exposition registry and the Collector that
// accumulates global and per-region connection and request counters.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLatencyBuckets are histogram buckets in seconds for acquire waits.
var DefaultLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Counter is a monotonically increasing counter.
type Counter struct {
	value uint64
	name  string
	help  string
}

// NewCounter creates a new counter metric.
func NewCounter(name, help string) *Counter {
	c := &Counter{
		name: name,
		help: help,
	}
	defaultRegistry.register(name, c)
	return c
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(v uint64) {
	atomic.AddUint64(&c.value, v)
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.value)
}

func (c *Counter) prometheus() string {
	var sb strings.Builder
	writeHeader(&sb, c.name, c.help, "counter")
	fmt.Fprintf(&sb, "%s %d\n", c.name, c.Value())
	return sb.String()
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	value int64
	name  string
	help  string
}

// NewGauge creates a new gauge metric.
func NewGauge(name, help string) *Gauge {
	g := &Gauge{
		name: name,
		help: help,
	}
	defaultRegistry.register(name, g)
	return g
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) {
	atomic.StoreInt64(&g.value, v)
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

func (g *Gauge) prometheus() string {
	var sb strings.Builder
	writeHeader(&sb, g.name, g.help, "gauge")
	fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
	return sb.String()
}

// Histogram tracks the distribution of values.
type Histogram struct {
	mu      sync.Mutex
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// NewHistogram creates a new histogram metric.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	defaultRegistry.register(name, h)
	return h
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) prometheus() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sb strings.Builder
	writeHeader(&sb, h.name, h.help, "histogram")
	for i, b := range h.buckets {
		fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", h.name, b, h.counts[i])
	}
	fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(&sb, "%s_sum %g\n", h.name, h.sum)
	fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
	return sb.String()
}

// GaugeVec is a family of gauges partitioned by the value of one label.
type GaugeVec struct {
	mu     sync.RWMutex
	name   string
	help   string
	label  string
	values map[string]float64
}

// NewGaugeVec creates a gauge family keyed by label.
func NewGaugeVec(name, help, label string) *GaugeVec {
	v := &GaugeVec{
		name:   name,
		help:   help,
		label:  label,
		values: make(map[string]float64),
	}
	defaultRegistry.register(name, v)
	return v
}

// Set sets the gauge for the given label value.
func (v *GaugeVec) Set(labelValue string, value float64) {
	v.mu.Lock()
	v.values[labelValue] = value
	v.mu.Unlock()
}

// Value returns the gauge for the given label value.
func (v *GaugeVec) Value(labelValue string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[labelValue]
}

// Delete drops the series for labelValue.
func (v *GaugeVec) Delete(labelValue string) {
	v.mu.Lock()
	delete(v.values, labelValue)
	v.mu.Unlock()
}

func (v *GaugeVec) prometheus() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var sb strings.Builder
	writeHeader(&sb, v.name, v.help, "gauge")
	for _, lv := range sortedKeys(v.values) {
		fmt.Fprintf(&sb, "%s{%s=%q} %g\n", v.name, v.label, lv, v.values[lv])
	}
	return sb.String()
}

// CounterVec is a family of counters partitioned by the value of one label.
type CounterVec struct {
	mu     sync.RWMutex
	name   string
	help   string
	label  string
	values map[string]uint64
}

// NewCounterVec creates a counter family keyed by label.
func NewCounterVec(name, help, label string) *CounterVec {
	v := &CounterVec{
		name:   name,
		help:   help,
		label:  label,
		values: make(map[string]uint64),
	}
	defaultRegistry.register(name, v)
	return v
}

// Inc increments the counter for the given label value.
func (v *CounterVec) Inc(labelValue string) {
	v.mu.Lock()
	v.values[labelValue]++
	v.mu.Unlock()
}

// Add adds n to the counter for the given label value.
func (v *CounterVec) Add(labelValue string, n uint64) {
	v.mu.Lock()
	v.values[labelValue] += n
	v.mu.Unlock()
}

// Value returns the counter for the given label value.
func (v *CounterVec) Value(labelValue string) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[labelValue]
}

func (v *CounterVec) prometheus() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var sb strings.Builder
	writeHeader(&sb, v.name, v.help, "counter")
	for _, lv := range sortedKeys(v.values) {
		fmt.Fprintf(&sb, "%s{%s=%q} %d\n", v.name, v.label, lv, v.values[lv])
	}
	return sb.String()
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// metric is the interface for all metric types.
type metric interface {
	prometheus() string
}

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]metric
}

// defaultRegistry is the global metric registry.
var defaultRegistry = &Registry{
	metrics: make(map[string]metric),
}

func (r *Registry) register(name string, m metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[name] = m
}

// Expose returns all metrics in Prometheus exposition format.
func (r *Registry) Expose() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range sortedKeys(r.metrics) {
		sb.WriteString(r.metrics[name].prometheus())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Handler returns an http.Handler that exposes metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(defaultRegistry.Expose()))
	})
}

// Default metrics for regionpool
var (
	// Request outcomes
	RequestsTotal       = NewCounterVec("regionpool_requests_total", "Total acquire requests by region", "region")
	RequestsFailedTotal = NewCounterVec("regionpool_requests_failed_total", "Failed acquire requests by region", "region")
	FailoversTotal      = NewCounter("regionpool_failovers_total", "Acquire attempts retried in another region")
	NoHealthyRegion     = NewCounter("regionpool_no_healthy_region_total", "Region selections that found no healthy region")

	// Connection gauges maintained by the collector
	ActiveConnections = NewGaugeVec("regionpool_active_connections", "Leased connections by region", "region")
	PeakConnections   = NewGauge("regionpool_peak_active_connections", "Peak concurrently leased connections")

	// Summary gauges refreshed by the metrics job
	GlobalUtilization = NewGaugeVec("regionpool_utilization_ratio", "Leased connections over capacity", "scope")
	RegionHealthy     = NewGaugeVec("regionpool_region_healthy", "Whether a region is selectable (1=yes, 0=no)", "region")

	// Rate limiting
	RateLimitRejections = NewCounter("regionpool_ratelimit_rejections_total", "Total requests rejected by rate limiting")

	// Uptime
	StartTime = NewGauge("regionpool_start_time_seconds", "Unix timestamp when the gateway started")
)

// RecordStartTime records the current time as the start time.
func RecordStartTime() {
	StartTime.Set(time.Now().Unix())
}
