package main

import (
	"fmt"

	"github.com/binw666/ethdma"
	"github.com/urfave/cli/v2"
)

func init() {
	var mtu uint
	var link string
	defineCommand(&cli.Command{
		Name:  "rxbuflen",
		Usage: "Print the Rx buffer length for an MTU or a network interface.",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:        "mtu",
				Usage:       "Link MTU in bytes.",
				Destination: &mtu,
			},
			&cli.StringFlag{
				Name:        "link",
				Usage:       "Read the MTU of network `interface`.",
				Destination: &link,
			},
		},
		Action: func(c *cli.Context) error {
			switch {
			case link != "" && c.IsSet("mtu"):
				return cli.Exit("--mtu and --link are exclusive", 2)
			case link != "":
				info, err := ethdma.LinkChannels(link)
				if err != nil {
					return err
				}
				l, err := ethdma.RxBufLenForMtu(info.MTU)
				if err != nil {
					return err
				}
				return printYAML(c.App.Writer, map[string]any{
					"link":       info.Name,
					"driver":     info.Driver,
					"bus":        info.BusInfo,
					"mtu":        info.MTU,
					"combined":   info.CombinedCount,
					"rx_buf_len": l,
				})
			case c.IsSet("mtu"):
				l, err := ethdma.RxBufLenForMtu(uint32(mtu))
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, l)
				return nil
			}
			return cli.Exit("one of --mtu or --link is required", 2)
		},
	})
}
