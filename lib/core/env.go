package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-i2p/regionpool/lib/balancer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REGIONPOOL_"

// applyEnvOverrides applies REGIONPOOL_* variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = Duration(d)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = b
		}
	}

	str("NAME", &cfg.Gateway.Name)
	if v, ok := os.LookupEnv(EnvPrefix + "REGIONS"); ok {
		cfg.SetRegions(strings.Split(v, ","))
	}
	if v, ok := os.LookupEnv(EnvPrefix + "STRATEGY"); ok {
		s, err := balancer.ParseStrategy(v)
		if err != nil {
			fail("STRATEGY", err)
		} else {
			cfg.Balancer.Strategy = s
		}
	}
	boolean("FAILOVER", &cfg.Balancer.Failover)
	integer("MIN_CONNECTIONS", &cfg.Pool.MinConnections)
	integer("MAX_CONNECTIONS", &cfg.Pool.MaxConnections)
	duration("CONNECTION_TIMEOUT", &cfg.Pool.ConnectionTimeout)
	duration("IDLE_TIMEOUT", &cfg.Pool.IdleTimeout)
	duration("HEALTH_CHECK_INTERVAL", &cfg.Pool.HealthCheckInterval)
	integer("MAX_AGENTS", &cfg.Reporting.MaxAgents)
	float("REQUESTER_RATE", &cfg.RateLimit.RequesterRate)
	boolean("WEB_ENABLED", &cfg.Web.Enabled)
	str("WEB_LISTEN", &cfg.Web.Listen)
	str("NATS_URL", &cfg.Sinks.NATS.URL)
	str("STATSD_ADDRESS", &cfg.Sinks.StatsD.Address)
	str("DOGSTATSD_ADDRESS", &cfg.Sinks.DogStatsD.Address)
	if v, ok := os.LookupEnv(EnvPrefix + "KAFKA_BROKERS"); ok {
		cfg.Sinks.Kafka.Brokers = strings.Split(v, ",")
	}
	str("KAFKA_TOPIC", &cfg.Sinks.Kafka.Topic)

	return firstErr
}
