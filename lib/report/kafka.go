package report

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/go-i2p/regionpool/lib/manager"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string `toml:"brokers" yaml:"brokers"`
	Topic   string   `toml:"topic" yaml:"topic"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes JSON envelopes to a Kafka topic, keyed by kind so
// each kind stays ordered within its partition.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink creates a writer for cfg.Topic on cfg.Brokers.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = "regionpool"
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w), nil
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

// Name returns "kafka".
func (s *KafkaSink) Name() string { return "kafka" }

// PublishStats writes a stats envelope keyed by its kind.
func (s *KafkaSink) PublishStats(ctx context.Context, st manager.SystemStats) error {
	id, data, err := encodeStats(st)
	if err != nil {
		return err
	}
	return s.write(ctx, KindStats, id, data)
}

// PublishHealth writes a health envelope keyed by its kind.
func (s *KafkaSink) PublishHealth(ctx context.Context, h manager.SystemHealth) error {
	id, data, err := encodeHealth(h)
	if err != nil {
		return err
	}
	return s.write(ctx, KindHealth, id, data)
}

func (s *KafkaSink) write(ctx context.Context, kind, id string, data []byte) error {
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(kind),
		Value: data,
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(id)},
		},
	})
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
