package main

import (
	"github.com/binw666/ethdma"
	"github.com/urfave/cli/v2"
)

func init() {
	var link string
	defineCommand(&cli.Command{
		Name:  "config",
		Usage: "DMA configuration files.",
		Subcommands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Load and validate a YAML configuration, then print it with defaults applied.",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "link",
						Usage:       "Take MTU and channels from network `interface`.",
						Destination: &link,
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected one configuration file", 2)
					}
					cfg, err := ethdma.LoadConfig(c.Args().First())
					if err != nil {
						return err
					}
					if link != "" {
						info, err := ethdma.LinkChannels(link)
						if err != nil {
							return err
						}
						if err = cfg.ApplyLink(info); err != nil {
							return err
						}
					}
					if err = cfg.Validate(); err != nil {
						return cli.Exit(err, 1)
					}
					return printYAML(c.App.Writer, cfg)
				},
			},
		},
	})
}
