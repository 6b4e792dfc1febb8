package report

import (
	"context"

	"github.com/smira/go-statsd"

	"github.com/go-i2p/regionpool/lib/manager"
)

// StatsDConfig configures the plain StatsD sink.
type StatsDConfig struct {
	Address string `toml:"address" yaml:"address"`
	Prefix  string `toml:"prefix" yaml:"prefix"`
}

type statsdClient interface {
	Gauge(stat string, value int64, tags ...statsd.Tag)
	FGauge(stat string, value float64, tags ...statsd.Tag)
	Close() error
}

// StatsDSink sends gauges over UDP with InfluxDB style region tags.
type StatsDSink struct {
	c statsdClient
}

// NewStatsDSink creates a StatsD client for cfg.Address.
func NewStatsDSink(cfg StatsDConfig) *StatsDSink {
	if cfg.Prefix == "" {
		cfg.Prefix = "regionpool."
	}
	c := statsd.NewClient(cfg.Address,
		statsd.MetricPrefix(cfg.Prefix),
		statsd.TagStyle(statsd.TagFormatInfluxDB),
	)
	return &StatsDSink{c: c}
}

// Name returns "statsd".
func (s *StatsDSink) Name() string { return "statsd" }

// PublishStats sends per-region pool gauges and the global summary.
// Sends are buffered, so it never fails.
func (s *StatsDSink) PublishStats(_ context.Context, st manager.SystemStats) error {
	for region, ps := range st.Regions {
		tag := statsd.StringTag("region", region)
		s.c.Gauge("pool.connections", int64(ps.TotalConnections), tag)
		s.c.Gauge("pool.active", int64(ps.ActiveConnections), tag)
		s.c.Gauge("pool.available", int64(ps.AvailableConnections), tag)
		s.c.Gauge("pool.pending", int64(ps.PendingRequests), tag)
		s.c.FGauge("pool.utilization", ps.Utilization, tag)
	}
	s.c.FGauge("utilization", st.Summary.Utilization)
	s.c.FGauge("success_rate", st.Summary.SuccessRate)
	s.c.FGauge("response_time_ms", st.Summary.AvgResponseTimeMs)
	s.c.Gauge("leases", int64(st.Summary.OutstandingLeases))
	return nil
}

// PublishHealth sends region health gauges and the overall health flag.
func (s *StatsDSink) PublishHealth(_ context.Context, h manager.SystemHealth) error {
	for region, rh := range h.Regions {
		s.c.Gauge("region.healthy", boolGauge(rh.Healthy), statsd.StringTag("region", region))
	}
	s.c.Gauge("healthy", boolGauge(h.Healthy))
	return nil
}

// Close flushes buffered metrics and closes the client.
func (s *StatsDSink) Close() error {
	return s.c.Close()
}

func boolGauge(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
