package manager

import (
	"fmt"
	"time"

	"github.com/go-i2p/regionpool/lib/balancer"
	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/health"
	"github.com/go-i2p/regionpool/lib/pool"
	"github.com/go-i2p/regionpool/lib/resilience"
	"github.com/go-i2p/regionpool/lib/validation"
)

// Region selection thresholds on the recorded success rate, in percent.
const (
	// PreferredRegionMinSuccess is the rate a preferred region must beat
	// to be used directly.
	PreferredRegionMinSuccess = 95.0
	// HealthyRegionMinSuccess is the rate a region must beat to take part
	// in strategy selection.
	HealthyRegionMinSuccess = 90.0
)

// RegionConfig configures one region's pool.
type RegionConfig struct {
	Name string
	Pool pool.Config
}

// Config configures a Manager. It is read once by New.
type Config struct {
	// Regions lists every region in selection order.
	Regions []RegionConfig
	// Strategy picks a region when no preferred region applies.
	Strategy balancer.Strategy
	// Failover retries a failed acquire once with the preference cleared.
	Failover bool

	// MetricsInterval is how often CollectMetrics runs after Start.
	// Default: 10 seconds
	MetricsInterval time.Duration
	// ReportInterval is how often ReportSystemHealth runs after Start.
	// Default: 60 seconds
	ReportInterval time.Duration
	// MaxAgents is the capacity used for global utilization. Zero means
	// the sum of every region's MaxConnections.
	MaxAgents int

	Health health.Config

	// CircuitBreaker guards each region when enabled.
	CircuitBreakerEnabled bool
	CircuitBreaker        resilience.Config

	// RequesterRate limits acquires per requester per second. Zero
	// disables the limit.
	RequesterRate  float64
	RequesterBurst int

	// Sinks receive every stats and health summary.
	Sinks []Sink
}

// DefaultConfig returns a single-region configuration with defaults.
func DefaultConfig() Config {
	return Config{
		Regions:         []RegionConfig{{Name: "default", Pool: pool.DefaultConfig()}},
		Strategy:        balancer.RoundRobin,
		Failover:        true,
		MetricsInterval: 10 * time.Second,
		ReportInterval:  60 * time.Second,
		Health:          health.DefaultConfig(),
		CircuitBreaker:  resilience.DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("%w: at least one region is required", apperrors.ErrConfiguration)
	}
	names := make([]string, len(c.Regions))
	for i, r := range c.Regions {
		names[i] = r.Name
		if err := r.Pool.Validate(); err != nil {
			return fmt.Errorf("region %s: %w", r.Name, err)
		}
	}
	if err := validation.Regions("regions", names); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	if c.MaxAgents < 0 {
		return fmt.Errorf("%w: max agents must not be negative", apperrors.ErrConfiguration)
	}
	if c.RequesterRate < 0 {
		return fmt.Errorf("%w: requester rate must not be negative", apperrors.ErrConfiguration)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = d.ReportInterval
	}
	if c.Health.EvaluationInterval <= 0 && c.Health.Thresholds == (health.Thresholds{}) {
		c.Health = d.Health
	}
	if c.RequesterBurst <= 0 {
		c.RequesterBurst = 1
	}
	return c
}

func (c Config) maxAgents() int {
	if c.MaxAgents > 0 {
		return c.MaxAgents
	}
	total := 0
	for _, r := range c.Regions {
		total += r.Pool.MaxConnections
	}
	return total
}
