package main

import (
	"github.com/binw666/ethdma"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

func init() {
	var name string
	var chans int
	var unpin bool
	defineCommand(&cli.Command{
		Name:  "stats",
		Usage: "Read per-channel counters pinned by selftest --export.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "map",
				Usage:       "Pinned map `name`.",
				Required:    true,
				Destination: &name,
			},
			&cli.IntFlag{
				Name:        "chans",
				Usage:       "Number of channels to print.",
				Value:       1,
				Destination: &chans,
			},
			&cli.BoolFlag{
				Name:        "unpin",
				Usage:       "Remove the pin after reading.",
				Destination: &unpin,
			},
		},
		Action: func(c *cli.Context) (err error) {
			sm, err := ethdma.OpenStatsMap(name)
			if err != nil {
				return err
			}
			defer func() {
				if unpin {
					err = multierr.Append(err, sm.CloseAndUnpin())
				} else {
					err = multierr.Append(err, sm.Close())
				}
			}()

			out := map[uint32]ethdma.ChanStats{}
			for ch := uint32(0); ch < uint32(chans) && ch < ethdma.MaxDmaChans; ch++ {
				st, err := sm.Lookup(ch)
				if err != nil {
					return err
				}
				out[ch] = st
			}
			return printYAML(c.App.Writer, out)
		},
	})
}
