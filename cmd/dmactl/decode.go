package main

import (
	"fmt"
	"strconv"

	"github.com/binw666/ethdma"
	"github.com/urfave/cli/v2"
)

type decodeResult struct {
	Own     bool   `yaml:"own"`
	First   bool   `yaml:"first"`
	Last    bool   `yaml:"last"`
	Error   bool   `yaml:"error"`
	Context bool   `yaml:"context"`
	Valid   bool   `yaml:"valid"`
	Length  uint32 `yaml:"length"`
	Csum    string `yaml:"csum"`
	Vlan    uint32 `yaml:"vlan,omitempty"`
	Hash    string `yaml:"hash,omitempty"`
}

func init() {
	defineCommand(&cli.Command{
		Name:      "decode",
		Usage:     "Decode one Rx write-back descriptor.",
		ArgsUsage: "RDES0 RDES1 RDES2 RDES3",
		Flags:     []cli.Flag{macFlag()},
		Action: func(c *cli.Context) error {
			mac, err := macFromFlag(c)
			if err != nil {
				return err
			}
			if c.NArg() != 4 {
				return cli.Exit("expected four descriptor words", 2)
			}
			var desc ethdma.Desc
			for i, arg := range c.Args().Slice() {
				w, err := strconv.ParseUint(arg, 0, 32)
				if err != nil {
					return cli.Exit(fmt.Sprintf("word %d: %v", i, err), 2)
				}
				desc[i] = uint32(w)
			}

			info, err := ethdma.DecodeRxDesc(mac, desc)
			if err != nil {
				return err
			}
			res := decodeResult{
				Own:     info.Own,
				First:   info.First,
				Last:    info.Last,
				Error:   info.Error,
				Context: info.Context,
				Valid:   info.Cx.Flags&ethdma.PktCxValid != 0,
				Length:  info.Cx.PktLen,
				Csum:    fmt.Sprintf("%#x", info.Cx.RxCsum),
			}
			if info.Cx.Flags&ethdma.PktCxVLAN != 0 {
				res.Vlan = info.Cx.VlanTag
			}
			if info.Cx.Flags&ethdma.PktCxRSS != 0 {
				res.Hash = fmt.Sprintf("%#08x/L%d", info.Cx.RxHash, info.Cx.RxHashType+1)
			}
			return printYAML(c.App.Writer, res)
		},
	})
}
