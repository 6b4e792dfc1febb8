package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/go-i2p/regionpool/lib/gateway"
	"github.com/go-i2p/regionpool/lib/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the gateway and its HTTP API until interrupted",
		Flags: append(poolFlags(),
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP API listen address (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-web",
				Usage: "do not start the HTTP API",
			},
		),
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := loadSettings(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.IsSet("listen") {
		cfg.Web.Listen = c.String("listen")
	}
	if c.Bool("no-web") {
		cfg.Web.Enabled = false
	}

	gw, err := gateway.New(gateway.Config{Settings: cfg})
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	var srv *web.Server
	if cfg.Web.Enabled {
		srv, err = web.New(web.Config{
			ListenAddr: cfg.Web.Listen,
			Gateway:    gw,
			RateLimit: web.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit.HTTPRate,
				BurstSize:         cfg.RateLimit.HTTPBurst,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("starting web server: %w", err)
		}
	}

	logger.Info("regionpool started",
		"name", cfg.Gateway.Name,
		"regions", cfg.RegionNames(),
		"strategy", cfg.Balancer.Strategy.String(),
	)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case <-gw.Done():
		logger.Warn("gateway stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout.Std())
	defer cancel()

	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("web server shutdown error", "error", err)
		}
	}
	if gw.State() == gateway.StateRunning {
		if err := gw.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	logger.Info("regionpool stopped")
	return nil
}
