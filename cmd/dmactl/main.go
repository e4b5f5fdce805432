// Command dmactl exercises and inspects the ethdma descriptor ring engine.
package main

import (
	"io"
	"log"
	"os"
	"sort"

	"github.com/binw666/ethdma"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var app = &cli.App{
	Name:  "dmactl",
	Usage: "EQOS/MGBE DMA ring engine tool.",
}

func defineCommand(command *cli.Command) {
	app.Commands = append(app.Commands, command)
}

func macFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "mac",
		Value: "eqos",
		Usage: "MAC `type`: eqos, mgbe or mgbe-t26x.",
	}
}

func macFromFlag(c *cli.Context) (ethdma.MacType, error) {
	mac, err := ethdma.ParseMacType(c.String("mac"))
	if err != nil {
		return 0, cli.Exit(err, 2)
	}
	return mac, nil
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	sort.Sort(cli.CommandsByName(app.Commands))
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
