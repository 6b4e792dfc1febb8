// Package gateway provides an embeddable regionpool gateway for Go programs.
//
// It wraps the pool manager, its report sinks and the lifecycle around
// them in a small API:
//
//	gw, err := gateway.NewWithOptions(
//	    gateway.WithRegions("us-east", "eu-west"),
//	    gateway.WithStrategy(balancer.LeastConnections),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	if err := gw.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	lease, err := gw.Acquire(ctx, "agent-7", manager.Options{Tier: pool.Elite})
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//
// # Events
//
// [Gateway.Events] delivers lifecycle changes and everything the pool
// manager emits (stats, health, region reports, failovers and circuit
// transitions). The channel is buffered; when the consumer falls behind
// events are dropped and counted by [Gateway.DroppedEventCount].
// [Gateway.Subscribe] opens additional independent streams.
//
// A stopped gateway can be started again. Each start builds a fresh
// manager, so pool state and counters do not carry over.
package gateway
