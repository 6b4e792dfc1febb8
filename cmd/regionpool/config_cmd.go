package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/go-i2p/regionpool/lib/core"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "write a default configuration file",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing file",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if c.Args().Present() {
						path = c.Args().First()
					}
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}
					if err := core.SaveConfig(core.DefaultConfig(), path); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the effective configuration as JSON",
				Action: func(c *cli.Context) error {
					cfg, err := core.LoadConfig(c.String("config"))
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, cfg)
				},
			},
		},
	}
}
