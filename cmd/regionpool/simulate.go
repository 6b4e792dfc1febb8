package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/go-i2p/regionpool/lib/gateway"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "drive a local gateway with synthetic agents and print the resulting stats",
		Flags: append(poolFlags(),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "concurrent simulated agents",
				Value: 20,
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "how long to run",
				Value: 5 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "hold",
				Usage: "maximum time an agent holds a connection",
				Value: 20 * time.Millisecond,
			},
		),
		Action: runSimulate,
	}
}

// simulation is one synthetic load run.
type simulation struct {
	Workers  int
	Duration time.Duration
	Hold     time.Duration

	acquired atomic.Uint64
	failed   atomic.Uint64
	failover atomic.Uint64
}

// SimulationResult is printed by the simulate command.
type SimulationResult struct {
	Workers   int                 `json:"workers"`
	Duration  string              `json:"duration"`
	Acquired  uint64              `json:"acquired"`
	Failed    uint64              `json:"failed"`
	Failovers uint64              `json:"failovers"`
	Stats     manager.SystemStats `json:"stats"`
}

// tierFor spreads workers over the tiers: one elite and two advanced in
// every ten, the rest standard.
func tierFor(worker int) pool.Tier {
	switch worker % 10 {
	case 0:
		return pool.Elite
	case 1, 2:
		return pool.Advanced
	default:
		return pool.Standard
	}
}

func (s *simulation) run(ctx context.Context, gw *gateway.Gateway) (SimulationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range s.Workers {
		g.Go(func() error {
			requester := fmt.Sprintf("agent-%03d", w)
			tier := tierFor(w)
			for ctx.Err() == nil {
				lease, err := gw.Acquire(ctx, requester, manager.Options{Tier: tier})
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.failed.Add(1)
					continue
				}
				s.acquired.Add(1)
				if lease.Failover() {
					s.failover.Add(1)
				}
				if s.Hold > 0 {
					time.Sleep(rand.N(s.Hold) + time.Millisecond)
				}
				lease.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return SimulationResult{}, err
	}

	stats, err := gw.SystemStats()
	if err != nil {
		return SimulationResult{}, err
	}
	return SimulationResult{
		Workers:   s.Workers,
		Duration:  s.Duration.String(),
		Acquired:  s.acquired.Load(),
		Failed:    s.failed.Load(),
		Failovers: s.failover.Load(),
		Stats:     stats,
	}, nil
}

func runSimulate(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Web.Enabled = false

	sim := &simulation{
		Workers:  c.Int("workers"),
		Duration: c.Duration("duration"),
		Hold:     c.Duration("hold"),
	}
	if sim.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	gw, err := gateway.New(gateway.Config{Settings: cfg})
	if err != nil {
		return err
	}
	defer gw.Close()

	if err := gw.Start(c.Context); err != nil {
		return err
	}

	newLogger(c).Info("simulating",
		"workers", sim.Workers,
		"duration", sim.Duration,
		"regions", cfg.RegionNames(),
	)
	result, err := sim.run(c.Context, gw)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
