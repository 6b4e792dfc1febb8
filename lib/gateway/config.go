package gateway

import (
	"errors"
	"time"

	"github.com/go-i2p/regionpool/lib/balancer"
	"github.com/go-i2p/regionpool/lib/core"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

// DefaultEventBufferSize is the buffer of the Events channel.
const DefaultEventBufferSize = 100

// Config configures an embedded gateway.
// Fields with zero values use sensible defaults.
type Config struct {
	// Settings is the file-level configuration.
	// Default: core.DefaultConfig()
	Settings *core.Config

	// Factory backs each pooled connection with a real resource.
	// Default: nil (connections carry no resource)
	Factory pool.Factory

	// ExtraSinks receive summaries in addition to the sinks built from
	// Settings.Sinks. They are closed when the gateway stops.
	ExtraSinks []manager.Sink

	// EventBufferSize is the size of the event channel buffer.
	// Default: 100
	EventBufferSize int
}

// Option is a functional option for configuring a Gateway.
type Option func(*Config)

func (c *Config) settings() *core.Config {
	if c.Settings == nil {
		c.Settings = core.DefaultConfig()
	}
	return c.Settings
}

// WithSettings replaces the file-level configuration.
func WithSettings(s *core.Config) Option {
	return func(c *Config) {
		c.Settings = s
	}
}

// WithName sets the gateway name.
func WithName(name string) Option {
	return func(c *Config) {
		c.settings().Gateway.Name = name
	}
}

// WithRegions replaces the region list.
func WithRegions(regions ...string) Option {
	return func(c *Config) {
		c.settings().SetRegions(regions)
	}
}

// WithStrategy sets the region selection strategy.
func WithStrategy(s balancer.Strategy) Option {
	return func(c *Config) {
		c.settings().Balancer.Strategy = s
	}
}

// WithFailover enables or disables single-hop failover.
func WithFailover(enabled bool) Option {
	return func(c *Config) {
		c.settings().Balancer.Failover = enabled
	}
}

// WithPoolBounds sets the connection bounds shared by every region.
func WithPoolBounds(min, max int) Option {
	return func(c *Config) {
		s := c.settings()
		s.Pool.MinConnections = min
		s.Pool.MaxConnections = max
	}
}

// WithConnectionTimeout sets how long an acquire may wait in a region.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.settings().Pool.ConnectionTimeout = core.Duration(d)
	}
}

// WithFactory sets the connection factory.
func WithFactory(f pool.Factory) Option {
	return func(c *Config) {
		c.Factory = f
	}
}

// WithSinks adds report sinks.
func WithSinks(sinks ...manager.Sink) Option {
	return func(c *Config) {
		c.ExtraSinks = append(c.ExtraSinks, sinks...)
	}
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(size int) Option {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Settings:        core.DefaultConfig(),
		EventBufferSize: DefaultEventBufferSize,
	}
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	c.settings()
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Settings == nil {
		return errors.New("settings are required")
	}
	if c.EventBufferSize < 1 {
		return errors.New("event buffer size must be at least 1")
	}
	return c.Settings.Validate()
}
