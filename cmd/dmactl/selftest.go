package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/binw666/ethdma"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

// simBusBase keeps model bus addresses away from zero.
const simBusBase = 0x80000000

type selftestResult struct {
	Mac        string                      `yaml:"mac"`
	Version    uint32                      `yaml:"version"`
	Sent       int                         `yaml:"sent"`
	Received   int                         `yaml:"received"`
	Mismatched int                         `yaml:"mismatched"`
	Timestamps int                         `yaml:"rx_timestamps"`
	Stats      ethdma.DmaStats             `yaml:"stats"`
	Chans      map[uint32]ethdma.ChanStats `yaml:"chans"`
}

func buildUDPFrame(seq int, size int, dstPort uint16) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(5000 + seq%1000), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	if size < 4 {
		size = 4
	}
	payload := make([]byte, size)
	binary.BigEndian.PutUint32(payload, uint32(seq))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func arenaSize(cfg *ethdma.DmaConfig) int {
	n := len(cfg.DmaChans)
	bufs := n*int(cfg.RxRingSize+cfg.TxRingSize) + 1
	descs := n * int(cfg.RxRingSize+cfg.TxRingSize) * ethdma.DescSize
	return bufs*int(cfg.RxBufLen) + descs + 2*n*ethdma.DescRingAlign + 4096
}

func init() {
	var frames, size, chans, ring, budget int
	var vlan uint
	var ptp, dump bool
	var export string
	defineCommand(&cli.Command{
		Name:  "selftest",
		Usage: "Run the ring engine against an in-memory device model.",
		Flags: []cli.Flag{
			macFlag(),
			&cli.IntFlag{
				Name:        "frames",
				Usage:       "Number of frames to loop back.",
				Value:       1000,
				Destination: &frames,
			},
			&cli.IntFlag{
				Name:        "size",
				Usage:       "UDP payload `bytes`.",
				Value:       256,
				Destination: &size,
			},
			&cli.IntFlag{
				Name:        "chans",
				Usage:       "Number of DMA channels.",
				Value:       1,
				Destination: &chans,
			},
			&cli.IntFlag{
				Name:        "ring",
				Usage:       "Tx and Rx ring size.",
				Value:       256,
				Destination: &ring,
			},
			&cli.IntFlag{
				Name:        "budget",
				Usage:       "Completion budget per pass.",
				Value:       64,
				Destination: &budget,
			},
			&cli.UintFlag{
				Name:        "vlan",
				Usage:       "Insert this VLAN `tag` in hardware.",
				Destination: &vlan,
			},
			&cli.BoolFlag{
				Name:        "ptp",
				Usage:       "Send to the PTP event port to request Tx timestamps.",
				Destination: &ptp,
			},
			&cli.BoolFlag{
				Name:        "dump",
				Usage:       "Dump the rings of channel 0 and the last frame.",
				Destination: &dump,
			},
			&cli.StringFlag{
				Name:        "export",
				Usage:       "Pin per-channel counters as BPF map `name`.",
				Destination: &export,
			},
		},
		Action: func(c *cli.Context) (err error) {
			mac, err := macFromFlag(c)
			if err != nil {
				return err
			}
			if chans <= 0 || chans > ethdma.MaxDmaChans {
				return cli.Exit(fmt.Sprintf("invalid channel count %d", chans), 2)
			}

			cfg := ethdma.DefaultDmaConfig(mac)
			cfg.TxRingSize, cfg.RxRingSize = uint32(ring), uint32(ring)
			cfg.DmaChans = cfg.DmaChans[:0]
			for ch := 0; ch < chans; ch++ {
				cfg.DmaChans = append(cfg.DmaChans, uint32(ch))
			}

			arena := ethdma.NewMemArena(arenaSize(cfg), simBusBase)
			sim := ethdma.NewSimHW(mac, arena)
			sim.Loopback = true
			sim.Attach(cfg)

			dev, err := ethdma.NewDevice(cfg, arena)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, dev.Close()) }()

			dstPort := uint16(6000)
			if ptp {
				dstPort = 319
			}
			opts := ethdma.TxOptions{VlanTag: uint16(vlan)}

			res := selftestResult{Mac: mac.String(), Version: dev.Dma().MacVersion(), Chans: map[uint32]ethdma.ChanStats{}}
			var last []byte
			for i := 0; i < frames; i++ {
				ch := cfg.DmaChans[i%chans]
				frame, err := buildUDPFrame(i, size, dstPort)
				if err != nil {
					return err
				}

				err = dev.Send(ch, frame, opts)
				if errors.Is(err, ethdma.ErrTxRingFull) {
					sim.Step(ch)
					if _, err = dev.Reclaim(ch, budget); err != nil {
						return err
					}
					err = dev.Send(ch, frame, opts)
				}
				if err != nil {
					return fmt.Errorf("frame %d: %w", i, err)
				}
				res.Sent++
				sim.Step(ch)

				got, _, err := dev.Receive(ch, budget)
				if err != nil {
					return err
				}
				for _, f := range got {
					res.Received++
					if !f.Valid() || !bytes.Equal(f.Data(), frame) {
						res.Mismatched++
					}
					if f.Flags&ethdma.PktCxPTP != 0 {
						res.Timestamps++
					}
					last = append(last[:0], f.Data()...)
					dev.PutFrame(f)
				}
				if _, err = dev.Reclaim(ch, budget); err != nil {
					return err
				}
			}

			res.Stats = dev.Dma().Stats()
			for _, ch := range cfg.DmaChans {
				res.Chans[ch] = dev.Dma().ChanStats(ch)
			}

			if export != "" {
				if err = exportStats(export, dev.Dma()); err != nil {
					return err
				}
			}
			if dump {
				ethdma.DumpTxRing(c.App.Writer, cfg.TxRings[0])
				ethdma.DumpRxRing(c.App.Writer, cfg.RxRings[0])
				ethdma.HexDump(c.App.Writer, last)
			}
			return printYAML(c.App.Writer, res)
		},
	})
}

func exportStats(name string, d *ethdma.Dma) error {
	sm, err := ethdma.NewStatsMap(name)
	if err != nil {
		return err
	}
	defer sm.Close()
	if err = sm.Update(d); err != nil {
		return err
	}
	return sm.Pin(name)
}
