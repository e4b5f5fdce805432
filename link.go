package ethdma

import (
	"fmt"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// LinkInfo describes a kernel network interface bound to the same MAC.
type LinkInfo struct {
	Name    string
	MTU     uint32
	Driver  string
	BusInfo string

	// RxCount, TxCount and CombinedCount are the active channel counts.
	RxCount       uint32
	TxCount       uint32
	CombinedCount uint32
	MaxCombined   uint32
}

// LinkMtu returns the MTU of interface ifname.
func LinkMtu(ifname string) (uint32, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return 0, fmt.Errorf("netlink.LinkByName(%s): %w", ifname, err)
	}
	return uint32(link.Attrs().MTU), nil
}

// LinkRxBufLen returns the Rx buffer length matching the MTU of ifname.
func LinkRxBufLen(ifname string) (uint32, error) {
	mtu, err := LinkMtu(ifname)
	if err != nil {
		return 0, err
	}
	return RxBufLenForMtu(mtu)
}

// LinkChannels reads MTU, driver and channel counts of ifname.
func LinkChannels(ifname string) (*LinkInfo, error) {
	mtu, err := LinkMtu(ifname)
	if err != nil {
		return nil, err
	}

	etht, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("ethtool.NewEthtool: %w", err)
	}
	defer etht.Close()

	info := &LinkInfo{Name: ifname, MTU: mtu}
	if info.Driver, err = etht.DriverName(ifname); err != nil {
		return nil, fmt.Errorf("ethtool.DriverName(%s): %w", ifname, err)
	}
	if info.BusInfo, err = etht.BusInfo(ifname); err != nil {
		return nil, fmt.Errorf("ethtool.BusInfo(%s): %w", ifname, err)
	}
	ch, err := etht.GetChannels(ifname)
	if err != nil {
		return nil, fmt.Errorf("ethtool.GetChannels(%s): %w", ifname, err)
	}
	info.RxCount = ch.RxCount
	info.TxCount = ch.TxCount
	info.CombinedCount = ch.CombinedCount
	info.MaxCombined = ch.MaxCombined
	return info, nil
}

// ApplyLink sets Mtu, RxBufLen and, when unset, one DMA channel per
// combined channel of ifname.
func (cfg *DmaConfig) ApplyLink(info *LinkInfo) error {
	if err := cfg.SetRxBufLen(info.MTU); err != nil {
		return err
	}
	if len(cfg.DmaChans) == 0 && info.CombinedCount > 0 {
		for ch := uint32(0); ch < info.CombinedCount && ch < MaxDmaChans; ch++ {
			cfg.DmaChans = append(cfg.DmaChans, ch)
		}
	}
	return nil
}
