package report

import (
	"context"
	"errors"
	"fmt"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"

	"github.com/go-i2p/regionpool/lib/manager"
)

// DogStatsDConfig configures the DogStatsD sink.
type DogStatsDConfig struct {
	Address   string   `toml:"address" yaml:"address"`
	Namespace string   `toml:"namespace" yaml:"namespace"`
	Tags      []string `toml:"tags" yaml:"tags"`
}

type dogClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// DogStatsDSink sends gauges to a Datadog agent with region:<name> tags.
type DogStatsDSink struct {
	c dogClient
}

// NewDogStatsDSink creates a DogStatsD client for cfg.Address.
func NewDogStatsDSink(cfg DogStatsDConfig) (*DogStatsDSink, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "regionpool."
	}
	c, err := ddstatsd.New(cfg.Address,
		ddstatsd.WithNamespace(cfg.Namespace),
		ddstatsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("dogstatsd %s: %w", cfg.Address, err)
	}
	return &DogStatsDSink{c: c}, nil
}

// Name returns "dogstatsd".
func (s *DogStatsDSink) Name() string { return "dogstatsd" }

// PublishStats sends per-region pool gauges tagged with the region and
// the global summary gauges.
func (s *DogStatsDSink) PublishStats(_ context.Context, st manager.SystemStats) error {
	var errs []error
	gauge := func(name string, v float64, tags []string) {
		if err := s.c.Gauge(name, v, tags, 1); err != nil {
			errs = append(errs, err)
		}
	}
	for region, ps := range st.Regions {
		tags := []string{"region:" + region}
		gauge("pool.connections", float64(ps.TotalConnections), tags)
		gauge("pool.active", float64(ps.ActiveConnections), tags)
		gauge("pool.pending", float64(ps.PendingRequests), tags)
		gauge("pool.utilization", ps.Utilization, tags)
	}
	gauge("utilization", st.Summary.Utilization, nil)
	gauge("success_rate", st.Summary.SuccessRate, nil)
	gauge("response_time_ms", st.Summary.AvgResponseTimeMs, nil)
	return errors.Join(errs...)
}

// PublishHealth sends region health and success rate gauges and the
// overall health flag.
func (s *DogStatsDSink) PublishHealth(_ context.Context, h manager.SystemHealth) error {
	var errs []error
	for region, rh := range h.Regions {
		tags := []string{"region:" + region}
		if err := s.c.Gauge("region.healthy", float64(boolGauge(rh.Healthy)), tags, 1); err != nil {
			errs = append(errs, err)
		}
		if err := s.c.Gauge("region.success_rate", rh.SuccessRate, tags, 1); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.c.Gauge("healthy", float64(boolGauge(h.Healthy)), nil, 1); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close flushes buffered metrics and closes the client.
func (s *DogStatsDSink) Close() error {
	return s.c.Close()
}
