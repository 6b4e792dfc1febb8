// Package core loads and validates the regionpool gateway configuration
// and converts it into the settings the pool manager runs with.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/go-i2p/regionpool/lib/balancer"
	"github.com/go-i2p/regionpool/lib/health"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
	"github.com/go-i2p/regionpool/lib/report"
	"github.com/go-i2p/regionpool/lib/resilience"
	"github.com/go-i2p/regionpool/lib/validation"
)

// Default configuration values
const (
	DefaultGatewayName         = "regionpool"
	DefaultMinConnections      = 2
	DefaultMaxConnections      = 10
	DefaultConnectionTimeout   = 30 * time.Second
	DefaultIdleTimeout         = 5 * time.Minute
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultEvaluationInterval  = 30 * time.Second
	DefaultMetricsInterval     = 10 * time.Second
	DefaultReportInterval      = 60 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultWebListen           = "127.0.0.1:8080"
)

// Config holds all configuration for a regionpool gateway.
type Config struct {
	Gateway        GatewayConfig        `toml:"gateway" yaml:"gateway"`
	Pool           PoolConfig           `toml:"pool" yaml:"pool"`
	Regions        []RegionConfig       `toml:"regions" yaml:"regions"`
	Balancer       BalancerConfig       `toml:"balancer" yaml:"balancer"`
	Health         HealthConfig         `toml:"health" yaml:"health"`
	Reporting      ReportingConfig      `toml:"reporting" yaml:"reporting"`
	RateLimit      RateLimitConfig      `toml:"ratelimit" yaml:"ratelimit"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker" yaml:"circuit_breaker"`
	Web            WebConfig            `toml:"web" yaml:"web"`
	Sinks          report.Config        `toml:"sinks" yaml:"sinks"`
}

// GatewayConfig identifies the process.
type GatewayConfig struct {
	// Name appears in logs and report envelopes
	Name string `toml:"name" yaml:"name"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PoolConfig holds the pool settings shared by every region.
type PoolConfig struct {
	MinConnections      int      `toml:"min_connections" yaml:"min_connections"`
	MaxConnections      int      `toml:"max_connections" yaml:"max_connections"`
	ConnectionTimeout   Duration `toml:"connection_timeout" yaml:"connection_timeout"`
	IdleTimeout         Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	HealthCheckInterval Duration `toml:"health_check_interval" yaml:"health_check_interval"`
}

// RegionConfig names a region and optionally overrides its pool bounds.
type RegionConfig struct {
	Name           string `toml:"name" yaml:"name"`
	MinConnections *int   `toml:"min_connections,omitempty" yaml:"min_connections,omitempty"`
	MaxConnections *int   `toml:"max_connections,omitempty" yaml:"max_connections,omitempty"`
}

// BalancerConfig selects the region selection strategy.
type BalancerConfig struct {
	Strategy balancer.Strategy `toml:"strategy" yaml:"strategy"`
	Failover bool              `toml:"failover" yaml:"failover"`
}

// HealthConfig configures the health monitor.
type HealthConfig struct {
	EvaluationInterval Duration `toml:"evaluation_interval" yaml:"evaluation_interval"`
	MaxLatency         Duration `toml:"max_latency" yaml:"max_latency"`
	MinSuccessRate     float64  `toml:"min_success_rate" yaml:"min_success_rate"`
	MaxErrorRate       float64  `toml:"max_error_rate" yaml:"max_error_rate"`
}

// ReportingConfig configures the periodic summary jobs.
type ReportingConfig struct {
	MetricsInterval Duration `toml:"metrics_interval" yaml:"metrics_interval"`
	ReportInterval  Duration `toml:"report_interval" yaml:"report_interval"`
	// MaxAgents is the capacity for global utilization; 0 sums the regions
	MaxAgents int `toml:"max_agents" yaml:"max_agents"`
}

// RateLimitConfig configures admission limits. A zero rate disables the
// corresponding limiter.
type RateLimitConfig struct {
	RequesterRate  float64 `toml:"requester_rate" yaml:"requester_rate"`
	RequesterBurst int     `toml:"requester_burst" yaml:"requester_burst"`
	HTTPRate       float64 `toml:"http_rate" yaml:"http_rate"`
	HTTPBurst      int     `toml:"http_burst" yaml:"http_burst"`
}

// CircuitBreakerConfig configures the per-region breakers.
type CircuitBreakerConfig struct {
	Enabled          bool     `toml:"enabled" yaml:"enabled"`
	FailureThreshold int      `toml:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int      `toml:"success_threshold" yaml:"success_threshold"`
	CoolDown         Duration `toml:"cool_down" yaml:"cool_down"`
	MaxProbes        int      `toml:"max_probes" yaml:"max_probes"`
}

// WebConfig contains HTTP API settings.
type WebConfig struct {
	// Enabled controls whether the HTTP API is started
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Listen is the address to bind the HTTP server to
	Listen string `toml:"listen" yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	breaker := resilience.DefaultConfig()
	th := health.DefaultConfig().Thresholds

	return &Config{
		Gateway: GatewayConfig{
			Name:            DefaultGatewayName,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Pool: PoolConfig{
			MinConnections:      DefaultMinConnections,
			MaxConnections:      DefaultMaxConnections,
			ConnectionTimeout:   Duration(DefaultConnectionTimeout),
			IdleTimeout:         Duration(DefaultIdleTimeout),
			HealthCheckInterval: Duration(DefaultHealthCheckInterval),
		},
		Regions: []RegionConfig{
			{Name: "us-east"},
			{Name: "eu-west"},
			{Name: "ap-south"},
		},
		Balancer: BalancerConfig{
			Strategy: balancer.RoundRobin,
			Failover: true,
		},
		Health: HealthConfig{
			EvaluationInterval: Duration(DefaultEvaluationInterval),
			MaxLatency:         Duration(th.MaxLatency),
			MinSuccessRate:     th.MinSuccessRate,
			MaxErrorRate:       th.MaxErrorRate,
		},
		Reporting: ReportingConfig{
			MetricsInterval: Duration(DefaultMetricsInterval),
			ReportInterval:  Duration(DefaultReportInterval),
		},
		RateLimit: RateLimitConfig{
			RequesterBurst: 10,
			HTTPRate:       50,
			HTTPBurst:      100,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: breaker.FailureThreshold,
			SuccessThreshold: breaker.SuccessThreshold,
			CoolDown:         Duration(breaker.CoolDown),
			MaxProbes:        breaker.MaxProbes,
		},
		Web: WebConfig{
			Enabled: true,
			Listen:  DefaultWebListen,
		},
		Sinks: report.Config{Log: true},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig reads configuration from a TOML or YAML file, chosen by
// extension, then applies REGIONPOOL_* environment overrides. If the file
// doesn't exist the defaults are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = toml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML or YAML file, chosen by
// extension. It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	err := validation.All(
		func() error { return validation.Required("gateway.name", c.Gateway.Name) },
		func() error { return validation.Regions("regions", c.RegionNames()) },
		c.validateRegionBounds,
	)
	if err != nil {
		return err
	}

	var errs validation.Errors
	errs.Add(validation.PositiveDuration("gateway.shutdown_timeout", c.Gateway.ShutdownTimeout.Std()))
	errs.Add(validation.PositiveDuration("pool.connection_timeout", c.Pool.ConnectionTimeout.Std()))
	errs.Add(validation.PositiveDuration("pool.idle_timeout", c.Pool.IdleTimeout.Std()))
	if c.Pool.HealthCheckInterval < 0 {
		errs.Add(validation.NewResult("pool.health_check_interval", "must not be negative", validation.ErrOutOfRange))
	}
	errs.Add(validation.Percent("health.min_success_rate", c.Health.MinSuccessRate))
	errs.Add(validation.Percent("health.max_error_rate", c.Health.MaxErrorRate))
	errs.Add(validation.NonNegative("reporting.max_agents", c.Reporting.MaxAgents))
	if c.RateLimit.RequesterRate < 0 || c.RateLimit.HTTPRate < 0 {
		errs.Add(validation.NewResult("ratelimit", "rates must not be negative", validation.ErrOutOfRange))
	}
	if c.Web.Enabled {
		errs.Add(validation.HostPort("web.listen", c.Web.Listen))
	}
	if c.CircuitBreaker.Enabled {
		errs.Add(validation.Positive("circuit_breaker.failure_threshold", c.CircuitBreaker.FailureThreshold))
		errs.Add(validation.Positive("circuit_breaker.success_threshold", c.CircuitBreaker.SuccessThreshold))
		errs.Add(validation.Positive("circuit_breaker.max_probes", c.CircuitBreaker.MaxProbes))
		errs.Add(validation.PositiveDuration("circuit_breaker.cool_down", c.CircuitBreaker.CoolDown.Std()))
	}
	if len(c.Sinks.Kafka.Brokers) > 0 && c.Sinks.Kafka.Topic == "" {
		errs.Add(validation.Required("sinks.kafka.topic", ""))
	}
	return errs.Err()
}

func (c *Config) validateRegionBounds() error {
	for _, r := range c.Regions {
		min, max := c.regionBounds(r)
		if err := validation.PoolBounds("regions."+r.Name+".min_connections", min,
			"regions."+r.Name+".max_connections", max); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) regionBounds(r RegionConfig) (min, max int) {
	min, max = c.Pool.MinConnections, c.Pool.MaxConnections
	if r.MinConnections != nil {
		min = *r.MinConnections
	}
	if r.MaxConnections != nil {
		max = *r.MaxConnections
	}
	return min, max
}

// RegionNames returns the configured region names in order.
func (c *Config) RegionNames() []string {
	out := make([]string, len(c.Regions))
	for i, r := range c.Regions {
		out[i] = r.Name
	}
	return out
}

// SetRegions replaces the region list, keeping existing overrides for
// regions that remain.
func (c *Config) SetRegions(names []string) {
	existing := make(map[string]RegionConfig, len(c.Regions))
	for _, r := range c.Regions {
		existing[r.Name] = r
	}
	c.Regions = make([]RegionConfig, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if r, ok := existing[n]; ok {
			c.Regions = append(c.Regions, r)
			continue
		}
		c.Regions = append(c.Regions, RegionConfig{Name: n})
	}
}

// ManagerConfig converts the file configuration into a manager.Config.
// factory backs every pool connection and may be nil.
func (c *Config) ManagerConfig(factory pool.Factory, sinks []manager.Sink) manager.Config {
	regions := make([]manager.RegionConfig, len(c.Regions))
	for i, r := range c.Regions {
		min, max := c.regionBounds(r)
		regions[i] = manager.RegionConfig{
			Name: r.Name,
			Pool: pool.Config{
				MinConnections:      min,
				MaxConnections:      max,
				ConnectionTimeout:   c.Pool.ConnectionTimeout.Std(),
				IdleTimeout:         c.Pool.IdleTimeout.Std(),
				HealthCheckInterval: c.Pool.HealthCheckInterval.Std(),
				Factory:             factory,
			},
		}
	}

	return manager.Config{
		Regions:         regions,
		Strategy:        c.Balancer.Strategy,
		Failover:        c.Balancer.Failover,
		MetricsInterval: c.Reporting.MetricsInterval.Std(),
		ReportInterval:  c.Reporting.ReportInterval.Std(),
		MaxAgents:       c.Reporting.MaxAgents,
		Health: health.Config{
			EvaluationInterval: c.Health.EvaluationInterval.Std(),
			Thresholds: health.Thresholds{
				MaxLatency:     c.Health.MaxLatency.Std(),
				MinSuccessRate: c.Health.MinSuccessRate,
				MaxErrorRate:   c.Health.MaxErrorRate,
			},
		},
		CircuitBreakerEnabled: c.CircuitBreaker.Enabled,
		CircuitBreaker: resilience.Config{
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
			CoolDown:         c.CircuitBreaker.CoolDown.Std(),
			MaxProbes:        c.CircuitBreaker.MaxProbes,
		},
		RequesterRate:  c.RateLimit.RequesterRate,
		RequesterBurst: c.RateLimit.RequesterBurst,
		Sinks:          sinks,
	}
}
