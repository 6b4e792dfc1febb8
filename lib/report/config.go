package report

import (
	"errors"
	"fmt"

	"github.com/go-i2p/regionpool/lib/manager"
)

// Config selects the sinks to build. A sink is enabled when its address
// is set.
type Config struct {
	Log       bool            `toml:"log" yaml:"log"`
	NATS      NATSConfig      `toml:"nats" yaml:"nats"`
	Kafka     KafkaConfig     `toml:"kafka" yaml:"kafka"`
	StatsD    StatsDConfig    `toml:"statsd" yaml:"statsd"`
	DogStatsD DogStatsDConfig `toml:"dogstatsd" yaml:"dogstatsd"`
}

// Build creates every enabled sink. If one fails the ones already built
// are closed.
func Build(cfg Config) ([]manager.Sink, error) {
	var sinks []manager.Sink
	fail := func(err error) ([]manager.Sink, error) {
		var errs []error
		for _, s := range sinks {
			errs = append(errs, s.Close())
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	if cfg.Log {
		sinks = append(sinks, NewLogSink())
	}
	if cfg.NATS.URL != "" {
		s, err := NewNATSSink(cfg.NATS)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		s, err := NewKafkaSink(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.StatsD.Address != "" {
		sinks = append(sinks, NewStatsDSink(cfg.StatsD))
	}
	if cfg.DogStatsD.Address != "" {
		s, err := NewDogStatsDSink(cfg.DogStatsD)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	if len(sinks) > 0 {
		log.WithField("sinks", fmt.Sprint(names)).Debug("report sinks configured")
	}
	return sinks, nil
}
