package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/regionpool/lib/balancer"
	"github.com/go-i2p/regionpool/lib/core"
	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

type nopSink struct {
	mu     sync.Mutex
	closed bool
}

func (s *nopSink) Name() string                                              { return "nop" }
func (s *nopSink) PublishStats(context.Context, manager.SystemStats) error   { return nil }
func (s *nopSink) PublishHealth(context.Context, manager.SystemHealth) error { return nil }
func (s *nopSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func testSettings() *core.Config {
	cfg := core.DefaultConfig()
	cfg.SetRegions([]string{"us-east", "eu-west"})
	cfg.Pool.MinConnections = 0
	cfg.Pool.MaxConnections = 2
	cfg.Pool.ConnectionTimeout = core.Duration(50 * time.Millisecond)
	cfg.Pool.HealthCheckInterval = 0
	cfg.Sinks.Log = false
	cfg.Web.Enabled = false
	return cfg
}

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	gw, err := NewWithOptions(append([]Option{WithSettings(testSettings())}, opts...)...)
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func startGateway(t *testing.T, gw *Gateway) {
	t.Helper()
	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitForEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed before %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	gw, err := New(Config{})
	if err != nil {
		t.Fatalf("New with default config failed: %v", err)
	}
	defer gw.Close()

	if gw.State() != StateInitial {
		t.Errorf("expected state initial, got %s", gw.State())
	}
	if gw.Config().EventBufferSize != DefaultEventBufferSize {
		t.Errorf("EventBufferSize = %d, want %d", gw.Config().EventBufferSize, DefaultEventBufferSize)
	}
}

func TestNewWithOptions(t *testing.T) {
	gw := newTestGateway(t,
		WithName("options-test"),
		WithRegions("ap-south", "eu-west"),
		WithStrategy(balancer.LeastConnections),
		WithFailover(false),
		WithPoolBounds(1, 4),
		WithConnectionTimeout(time.Second),
		WithEventBufferSize(10),
	)

	s := gw.Config().Settings
	if s.Gateway.Name != "options-test" {
		t.Errorf("expected name options-test, got %s", s.Gateway.Name)
	}
	if got := s.RegionNames(); len(got) != 2 || got[0] != "ap-south" {
		t.Errorf("regions = %v", got)
	}
	if s.Balancer.Strategy != balancer.LeastConnections || s.Balancer.Failover {
		t.Errorf("balancer = %+v", s.Balancer)
	}
	if s.Pool.MinConnections != 1 || s.Pool.MaxConnections != 4 {
		t.Errorf("pool bounds = %d/%d", s.Pool.MinConnections, s.Pool.MaxConnections)
	}
	if s.Pool.ConnectionTimeout.Std() != time.Second {
		t.Errorf("connection timeout = %v", s.Pool.ConnectionTimeout.Std())
	}
}

func TestNew_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"negative buffer", []Option{WithEventBufferSize(-1)}},
		{"no regions", []Option{WithRegions()}},
		{"bad region", []Option{WithRegions("Not A Region")}},
		{"min above max", []Option{WithPoolBounds(5, 2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithSettings(testSettings())}, tt.opts...)
			if _, err := NewWithOptions(opts...); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	sink := &nopSink{}
	gw := newTestGateway(t, WithSinks(sink))
	events := gw.Events()

	startGateway(t, gw)
	waitForEvent(t, events, EventStarted)

	if gw.State() != StateRunning {
		t.Fatalf("expected running, got %s", gw.State())
	}
	st := gw.Status()
	if st.StartedAt.IsZero() || len(st.Regions) != 2 || st.Strategy != "round-robin" {
		t.Errorf("unexpected status %+v", st)
	}

	if err := gw.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: expected ErrAlreadyRunning, got %v", err)
	}

	if err := gw.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForEvent(t, events, EventStopped)

	select {
	case <-gw.Done():
	default:
		t.Error("Done should be closed after Stop")
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Error("extra sink should be closed on Stop")
	}
	if err := gw.Stop(context.Background()); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestStop_BeforeStart(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestStoppedGatewayReportsDestroyed(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)
	lease, err := gw.Acquire(context.Background(), "before-stop", manager.Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := gw.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_, err = gw.Acquire(context.Background(), "after-stop", manager.Options{})
	if !errors.Is(err, apperrors.ErrDestroyed) {
		t.Fatalf("Acquire after Stop: expected ErrDestroyed, got %v", err)
	}
	if errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Acquire after Stop should not be an invalid-state error: %v", err)
	}
	if got := apperrors.FromSentinel(err).HTTPStatus(); got != 503 {
		t.Errorf("HTTP status = %d, want 503", got)
	}
	if err := gw.ReleaseByID(lease.ID()); !errors.Is(err, apperrors.ErrDestroyed) {
		t.Errorf("ReleaseByID after Stop: expected ErrDestroyed, got %v", err)
	}
	if _, err := gw.SystemStats(); !errors.Is(err, apperrors.ErrDestroyed) {
		t.Errorf("SystemStats after Stop: expected ErrDestroyed, got %v", err)
	}
	if _, _, err := gw.RegionStats("us-east"); !errors.Is(err, apperrors.ErrDestroyed) {
		t.Errorf("RegionStats after Stop: expected ErrDestroyed, got %v", err)
	}
	if err := gw.Stop(context.Background()); err != nil {
		t.Errorf("repeated Stop: %v", err)
	}
}

func TestRestart(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)
	if err := gw.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	startGateway(t, gw)

	lease, err := gw.Acquire(context.Background(), "after-restart", manager.Options{})
	if err != nil {
		t.Fatalf("Acquire after restart: %v", err)
	}
	lease.Release()
}

func TestStart_CancelledContext(t *testing.T) {
	gw := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gw.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gw.State() != StateStopped {
		t.Errorf("expected stopped, got %s", gw.State())
	}
}

func TestNotRunning(t *testing.T) {
	gw := newTestGateway(t)

	if _, err := gw.Acquire(context.Background(), "r", manager.Options{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Acquire: expected ErrNotRunning, got %v", err)
	}
	if err := gw.ReleaseByID("nope"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ReleaseByID: expected ErrNotRunning, got %v", err)
	}
	if _, err := gw.SystemStats(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SystemStats: expected ErrNotRunning, got %v", err)
	}
	if h := gw.SystemHealth(); h.Healthy || h.Running {
		t.Errorf("health of stopped gateway = %+v", h)
	}
	if gw.Manager() != nil {
		t.Error("Manager should be nil before Start")
	}
}

func TestAcquireAndRelease(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)
	ctx := context.Background()

	lease, err := gw.Acquire(ctx, "agent-1", manager.Options{Tier: pool.Elite, PreferredRegion: "eu-west"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Region() != "eu-west" {
		t.Errorf("region = %s, want eu-west", lease.Region())
	}
	if got, ok := gw.Lease(lease.ID()); !ok || got != lease {
		t.Error("lease should be retrievable by id")
	}
	if gw.Status().Leases != 1 {
		t.Errorf("leases = %d, want 1", gw.Status().Leases)
	}

	stats, region, err := gw.RegionStats("eu-west")
	if err != nil {
		t.Fatalf("RegionStats: %v", err)
	}
	if stats.ActiveConnections != 1 || !region.Healthy {
		t.Errorf("eu-west stats = %+v health = %+v", stats, region)
	}

	if err := gw.ReleaseByID(lease.ID()); err != nil {
		t.Fatalf("ReleaseByID: %v", err)
	}
	if err := gw.ReleaseByID(lease.ID()); !errors.Is(err, manager.ErrLeaseNotFound) {
		t.Errorf("second release: expected ErrLeaseNotFound, got %v", err)
	}
}

func TestAcquire_InvalidParams(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)

	_, err := gw.Acquire(context.Background(), "bad id with spaces", manager.Options{})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	_, err = gw.Acquire(context.Background(), "ok", manager.Options{PreferredRegion: "EU WEST"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad region, got %v", err)
	}
}

func TestRegionStats_Unknown(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)

	if _, _, err := gw.RegionStats("mars"); !errors.Is(err, manager.ErrUnknownRegion) {
		t.Errorf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestForwardsManagerEvents(t *testing.T) {
	gw := newTestGateway(t)
	startGateway(t, gw)

	ch, cancel := gw.Subscribe(16)
	defer cancel()

	gw.Manager().CollectMetrics(context.Background())
	ev := waitForEvent(t, ch, EventStats)
	if ev.Pool == nil || ev.Pool.Stats == nil {
		t.Fatalf("stats event without payload: %+v", ev)
	}
	if ev.Pool.Stats.Summary.Regions != 2 {
		t.Errorf("summary regions = %d, want 2", ev.Pool.Stats.Summary.Regions)
	}
}

func TestClose_ClosesEvents(t *testing.T) {
	gw, err := NewWithOptions(WithSettings(testSettings()))
	if err != nil {
		t.Fatal(err)
	}
	startGateway(t, gw)

	if err := gw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if gw.State() != StateStopped {
		t.Errorf("expected stopped, got %s", gw.State())
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-gw.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Events channel not closed")
		}
	}
}
