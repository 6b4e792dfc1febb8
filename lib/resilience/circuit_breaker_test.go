package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("eu-west", cfg)
	b.now = clk.Now
	return b, clk
}

var errRegion = errors.New("region down")

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker("us-east", Config{})
	if b.cfg != DefaultConfig() {
		t.Errorf("zero config should take defaults, got %+v", b.cfg)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %v", b.State())
	}
	if b.Region() != "us-east" {
		t.Errorf("unexpected region %q", b.Region())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, CoolDown: time.Second})

	for i := 0; i < 3; i++ {
		if b.State() != Closed {
			t.Fatalf("opened early after %d failures", i)
		}
		b.Failure()
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %v", b.State())
	}
	if b.Allow() {
		t.Error("open breaker should reject")
	}
	if got := b.Stats().Trips; got != 1 {
		t.Errorf("expected 1 trip, got %d", got)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Error("non-consecutive failures should not open the breaker")
	}
}

func TestBreakerHalfOpenCycle(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, CoolDown: 10 * time.Second, MaxProbes: 2})
	b.Failure()

	clk.Advance(5 * time.Second)
	if b.Allow() {
		t.Fatal("should reject during cool-down")
	}

	clk.Advance(5 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cool-down, got %v", b.State())
	}
	if !b.Allow() || !b.Allow() {
		t.Fatal("half-open should admit MaxProbes requests")
	}
	if b.Allow() {
		t.Fatal("half-open should reject beyond MaxProbes")
	}

	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Errorf("expected closed after successful probes, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, CoolDown: time.Second})
	b.Failure()
	clk.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("expected probe admitted")
	}
	b.Failure()
	if b.State() != Open {
		t.Errorf("expected open, got %v", b.State())
	}
	if b.Stats().Trips != 2 {
		t.Errorf("expected 2 trips, got %d", b.Stats().Trips)
	}
}

func TestBreakerExecute(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})
	ctx := context.Background()

	if err := b.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := b.Execute(ctx, func(context.Context) error { return errRegion }); !errors.Is(err, errRegion) {
			t.Fatalf("expected region error, got %v", err)
		}
	}
	err := b.Execute(ctx, func(context.Context) error {
		t.Error("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if BreakerRejections.Value("eu-west") == 0 {
		t.Error("rejection should be counted")
	}
}

func TestBreakerExecuteCancelledNotCounted(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())

	err := b.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.State() != Closed {
		t.Error("cancellation must not trip the breaker")
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	changes := make(chan [2]State, 4)
	b.OnStateChange(func(region string, from, to State) {
		if region != "eu-west" {
			t.Errorf("unexpected region %q", region)
		}
		changes <- [2]State{from, to}
	})

	b.Failure()
	select {
	case c := <-changes:
		if c != [2]State{Closed, Open} {
			t.Errorf("unexpected transition %v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}

	b.Reset()
	select {
	case c := <-changes:
		if c != [2]State{Open, Closed} {
			t.Errorf("unexpected transition %v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked on reset")
	}
}

func TestBreakerConcurrent(t *testing.T) {
	b := NewBreaker("ap-south", Config{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Execute(context.Background(), func(context.Context) error {
					if (i+j)%2 == 0 {
						return errRegion
					}
					return nil
				})
				_ = b.Stats()
			}
		}(i)
	}
	wg.Wait()
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Closed:    "closed",
		Open:      "open",
		HalfOpen:  "half-open",
		State(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestGroup(t *testing.T) {
	g := NewGroup(Config{FailureThreshold: 1})
	if g.For("a") != g.For("a") {
		t.Fatal("For should return the same breaker per region")
	}
	if !g.Available("a") || !g.Available("b") {
		t.Fatal("fresh breakers should be available")
	}

	g.For("b").Failure()
	if g.Available("b") {
		t.Error("tripped region should be unavailable")
	}

	stats := g.Stats()
	if len(stats) != 2 || stats[0].Region != "a" || stats[1].Region != "b" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats[1].State != Open {
		t.Errorf("expected b open, got %v", stats[1].State)
	}
}

func TestGroupCallbackAppliesToNewBreakers(t *testing.T) {
	g := NewGroup(Config{FailureThreshold: 1})
	got := make(chan string, 1)
	g.OnStateChange(func(region string, _, to State) {
		if to == Open {
			got <- region
		}
	})

	g.For("late").Failure()
	select {
	case r := <-got:
		if r != "late" {
			t.Errorf("unexpected region %q", r)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not wired to lazily created breaker")
	}
}
