package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"
	"github.com/smira/go-statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

func sampleStats() manager.SystemStats {
	return manager.SystemStats{
		Regions: map[string]pool.Stats{
			"eu-west": {Region: "eu-west", TotalConnections: 4, ActiveConnections: 1, AvailableConnections: 3, MaxConnections: 10, Utilization: 0.25},
		},
		Summary: manager.Summary{
			Regions:           1,
			TotalConnections:  4,
			ActiveConnections: 1,
			MaxAgents:         10,
			Utilization:       0.1,
			SuccessRate:       99.5,
		},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func sampleHealth() manager.SystemHealth {
	return manager.SystemHealth{
		Healthy: true,
		Running: true,
		Regions: map[string]manager.RegionHealth{
			"eu-west": {Region: "eu-west", Healthy: true, SuccessRate: 99.5},
		},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

type fakeNATS struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	drained  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSink(t *testing.T) {
	conn := &fakeNATS{}
	s := newNATSSink(conn, "pools")
	ctx := context.Background()

	require.NoError(t, s.PublishStats(ctx, sampleStats()))
	require.NoError(t, s.PublishHealth(ctx, sampleHealth()))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"pools.stats", "pools.health"}, conn.subjects)
	assert.True(t, conn.drained)

	var env Envelope
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, KindStats, env.Kind)
	assert.NotEmpty(t, env.ID)
	assert.True(t, env.Timestamp.Equal(sampleStats().Timestamp))

	var got manager.SystemStats
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	if diff := cmp.Diff(sampleStats().Summary, got.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaSink(w)
	ctx := context.Background()

	require.NoError(t, s.PublishStats(ctx, sampleStats()))
	require.NoError(t, s.PublishHealth(ctx, sampleHealth()))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "stats", string(w.msgs[0].Key))
	assert.Equal(t, "health", string(w.msgs[1].Key))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "id", w.msgs[0].Headers[0].Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &env))
	assert.Equal(t, KindHealth, env.Kind)
	assert.Equal(t, string(w.msgs[1].Headers[0].Value), env.ID)

	w.err = errors.New("leader not available")
	assert.Error(t, s.PublishStats(ctx, sampleStats()))

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "x"})
	assert.Error(t, err)
}

type gauge struct {
	name  string
	value float64
	tags  int
}

type fakeStatsD struct {
	gauges []gauge
}

func (f *fakeStatsD) Gauge(stat string, value int64, tags ...statsd.Tag) {
	f.gauges = append(f.gauges, gauge{stat, float64(value), len(tags)})
}

func (f *fakeStatsD) FGauge(stat string, value float64, tags ...statsd.Tag) {
	f.gauges = append(f.gauges, gauge{stat, value, len(tags)})
}

func (f *fakeStatsD) Close() error { return nil }

func (f *fakeStatsD) find(name string) (gauge, bool) {
	for _, g := range f.gauges {
		if g.name == name {
			return g, true
		}
	}
	return gauge{}, false
}

func TestStatsDSink(t *testing.T) {
	c := &fakeStatsD{}
	s := &StatsDSink{c: c}
	ctx := context.Background()

	require.NoError(t, s.PublishStats(ctx, sampleStats()))
	g, ok := c.find("pool.active")
	require.True(t, ok)
	assert.Equal(t, 1.0, g.value)
	assert.Equal(t, 1, g.tags, "per-region gauges carry a region tag")

	g, ok = c.find("success_rate")
	require.True(t, ok)
	assert.Equal(t, 99.5, g.value)
	assert.Zero(t, g.tags)

	require.NoError(t, s.PublishHealth(ctx, sampleHealth()))
	g, ok = c.find("healthy")
	require.True(t, ok)
	assert.Equal(t, 1.0, g.value)
}

type fakeDog struct {
	gauges map[string][]string
	err    error
}

func (f *fakeDog) Gauge(name string, _ float64, tags []string, _ float64) error {
	if f.gauges == nil {
		f.gauges = make(map[string][]string)
	}
	f.gauges[name] = tags
	return f.err
}

func (f *fakeDog) Close() error { return nil }

func TestDogStatsDSink(t *testing.T) {
	c := &fakeDog{}
	s := &DogStatsDSink{c: c}
	ctx := context.Background()

	require.NoError(t, s.PublishStats(ctx, sampleStats()))
	assert.Equal(t, []string{"region:eu-west"}, c.gauges["pool.active"])
	assert.Nil(t, c.gauges["utilization"])

	require.NoError(t, s.PublishHealth(ctx, sampleHealth()))
	assert.Contains(t, c.gauges, "region.healthy")

	c.err = errors.New("socket closed")
	assert.Error(t, s.PublishHealth(ctx, sampleHealth()))
}

func TestLogSink(t *testing.T) {
	s := NewLogSink()
	assert.Equal(t, "log", s.Name())
	assert.NoError(t, s.PublishStats(context.Background(), sampleStats()))
	assert.NoError(t, s.PublishHealth(context.Background(), sampleHealth()))
	assert.NoError(t, s.Close())
}

func TestBuild(t *testing.T) {
	sinks, err := Build(Config{})
	require.NoError(t, err)
	assert.Empty(t, sinks)

	sinks, err = Build(Config{Log: true, StatsD: StatsDConfig{Address: "127.0.0.1:8125"}})
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "log", sinks[0].Name())
	assert.Equal(t, "statsd", sinks[1].Name())
	for _, s := range sinks {
		assert.NoError(t, s.Close())
	}
}

func TestSinksSatisfyInterface(t *testing.T) {
	var _ manager.Sink = (*LogSink)(nil)
	var _ manager.Sink = (*NATSSink)(nil)
	var _ manager.Sink = (*KafkaSink)(nil)
	var _ manager.Sink = (*StatsDSink)(nil)
	var _ manager.Sink = (*DogStatsDSink)(nil)
}

func TestSinkNames(t *testing.T) {
	tests := []struct {
		sink manager.Sink
		want string
	}{
		{NewLogSink(), "log"},
		{newNATSSink(&fakeNATS{}, "pools"), "nats"},
		{newKafkaSink(&fakeWriter{}), "kafka"},
		{&StatsDSink{c: &fakeStatsD{}}, "statsd"},
		{&DogStatsDSink{c: &fakeDog{}}, "dogstatsd"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sink.Name())
			assert.NoError(t, tt.sink.Close())
		})
	}
}
