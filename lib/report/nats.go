package report

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/go-i2p/regionpool/lib/manager"
)

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL string `toml:"url" yaml:"url"`
	// Subject is the prefix; summaries go to <subject>.stats and
	// <subject>.health.
	Subject string `toml:"subject" yaml:"subject"`
}

type natsPublisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes JSON envelopes to NATS subjects.
type NATSSink struct {
	conn    natsPublisher
	subject string
}

// NewNATSSink connects to the NATS server at cfg.URL.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.Subject == "" {
		cfg.Subject = "regionpool"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("regionpool"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return newNATSSink(nc, cfg.Subject), nil
}

func newNATSSink(conn natsPublisher, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// Name returns "nats".
func (s *NATSSink) Name() string { return "nats" }

// PublishStats publishes a stats envelope on <subject>.stats.
func (s *NATSSink) PublishStats(_ context.Context, st manager.SystemStats) error {
	_, data, err := encodeStats(st)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject+"."+KindStats, data)
}

// PublishHealth publishes a health envelope on <subject>.health.
func (s *NATSSink) PublishHealth(_ context.Context, h manager.SystemHealth) error {
	_, data, err := encodeHealth(h)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject+"."+KindHealth, data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
