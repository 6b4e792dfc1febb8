package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-i2p/regionpool/lib/core"
	"github.com/go-i2p/regionpool/lib/gateway"
)

// DefaultWaitTimeout bounds Eventually when no timeout is given.
const DefaultWaitTimeout = 5 * time.Second

// Settings returns gateway settings suited to tests: the given regions
// with no warm connections, a short acquire timeout, no background pool
// health loop, no sinks and the HTTP API disabled.
func Settings(regions ...string) *core.Config {
	cfg := core.DefaultConfig()
	if len(regions) > 0 {
		cfg.SetRegions(regions)
	}
	cfg.Pool.MinConnections = 0
	cfg.Pool.MaxConnections = 2
	cfg.Pool.ConnectionTimeout = core.Duration(100 * time.Millisecond)
	cfg.Pool.HealthCheckInterval = 0
	cfg.Sinks.Log = false
	cfg.Web.Enabled = false
	return cfg
}

// Harness is a started gateway with a recording sink and a counting
// factory attached.
type Harness struct {
	Gateway *gateway.Gateway
	Sink    *RecordingSink
	Factory *CountingFactory
}

// StartGateway builds and starts a gateway from settings (Settings() when
// nil). The gateway is closed when the test ends.
func StartGateway(tb testing.TB, settings *core.Config, opts ...gateway.Option) *Harness {
	tb.Helper()

	if settings == nil {
		settings = Settings()
	}
	h := &Harness{
		Sink:    NewRecordingSink("recording"),
		Factory: NewCountingFactory(),
	}

	all := append([]gateway.Option{
		gateway.WithSettings(settings),
		gateway.WithFactory(h.Factory.Factory()),
		gateway.WithSinks(h.Sink),
	}, opts...)
	gw, err := gateway.NewWithOptions(all...)
	if err != nil {
		tb.Fatalf("creating gateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Start(ctx); err != nil {
		tb.Fatalf("starting gateway: %v", err)
	}
	tb.Cleanup(func() {
		if err := gw.Close(); err != nil {
			tb.Logf("closing gateway: %v", err)
		}
	})

	h.Gateway = gw
	return h
}

// Eventually polls cond until it returns true or the timeout passes.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool) {
	tb.Helper()

	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %v", timeout)
}
