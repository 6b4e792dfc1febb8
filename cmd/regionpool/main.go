// regionpool runs a multi-region connection pool gateway.
//
// Usage:
//
//	regionpool [--config FILE] [-v] serve [flags]
//	regionpool simulate [flags]
//	regionpool config init [FILE]
//	regionpool config show
//	regionpool version
//
// Configuration is read from a TOML or YAML file (chosen by extension),
// then REGIONPOOL_* environment variables, then command-line flags.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/go-i2p/regionpool/lib/core"
	"github.com/go-i2p/regionpool/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".regionpool", "config.toml")
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "regionpool",
		Usage:   "multi-region, priority-aware connection pool gateway",
		Version: version.Full(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file (.toml, .yaml)",
				EnvVars: []string{"REGIONPOOL_CONFIG"},
				Value:   defaultConfigPath(),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
				EnvVars: []string{"REGIONPOOL_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			simulateCommand(),
			configCommand(),
			{
				Name:  "version",
				Usage: "print version and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print build information as JSON"},
				},
				Action: func(c *cli.Context) error {
					info := version.Get()
					if c.Bool("json") {
						return printJSON(c.App.Writer, info)
					}
					fmt.Fprintf(c.App.Writer, "regionpool version %s\n", info)
					return nil
				},
			},
		},
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadSettings loads the config file and applies the flags shared by
// serve and simulate when they were given explicitly.
func loadSettings(c *cli.Context) (*core.Config, error) {
	cfg, err := core.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("regions") {
		cfg.SetRegions(c.StringSlice("regions"))
	}
	if c.IsSet("strategy") {
		if err := cfg.Balancer.Strategy.UnmarshalText([]byte(c.String("strategy"))); err != nil {
			return nil, err
		}
	}
	if c.IsSet("no-failover") {
		cfg.Balancer.Failover = !c.Bool("no-failover")
	}
	if c.IsSet("max-connections") {
		cfg.Pool.MaxConnections = c.Int("max-connections")
	}
	if c.IsSet("min-connections") {
		cfg.Pool.MinConnections = c.Int("min-connections")
	}
	if c.IsSet("timeout") {
		cfg.Pool.ConnectionTimeout = core.Duration(c.Duration("timeout"))
	}
	if c.IsSet("circuit-breaker") {
		cfg.CircuitBreaker.Enabled = c.Bool("circuit-breaker")
	}
	return cfg, cfg.Validate()
}

func poolFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "regions",
			Usage: "regions to serve (overrides config)",
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "round-robin, least-connections or regional-affinity",
		},
		&cli.BoolFlag{
			Name:  "no-failover",
			Usage: "disable retrying a failed acquire in another region",
		},
		&cli.IntFlag{
			Name:  "min-connections",
			Usage: "connections created up front per region",
		},
		&cli.IntFlag{
			Name:  "max-connections",
			Usage: "connection cap per region",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "how long an acquire may wait in a region",
		},
		&cli.BoolFlag{
			Name:  "circuit-breaker",
			Usage: "enable per-region circuit breakers",
		},
	}
}
