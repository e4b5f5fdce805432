package ethdma

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	ethTypePTP     = layers.EthernetType(0x88F7)
	ptpEventPort   = 319
	ptpGeneralPort = 320
)

// TxOptions are the offloads requested for one outgoing frame.
type TxOptions struct {
	// VlanTag is inserted by hardware when non-zero.
	VlanTag uint16
	// MSS requests TCP segmentation when the TCP payload exceeds it.
	MSS uint32
	// NoCsum disables checksum offload.
	NoCsum bool
	// NoTimestamp suppresses the Tx timestamp of PTP frames.
	NoTimestamp bool
}

// TxContextInfo is the outcome of BuildTxContext.
type TxContextInfo struct {
	Cx TxPktContext
	// HdrLen is the L2 through L4 header length of a TSO frame; the payload starts there.
	HdrLen uint32
}

// BuildTxContext decodes frame and derives the packet context flags:
// checksum offload for IPv4/IPv6 TCP and UDP, IP header checksum for other
// IPv4, hardware VLAN insertion, TSO and PTP timestamping.
//
// Parameters:
//   - frame: the complete Ethernet frame.
//   - opts: requested offloads.
//
// Returns:
//   - TxContextInfo: the packet context, DescCnt left at zero.
//   - error: the frame could not be decoded, or TSO was requested for a non-TCP frame.
func BuildTxContext(frame []byte, opts TxOptions) (TxContextInfo, error) {
	var (
		eth   layers.Ethernet
		dot1q layers.Dot1Q
		ip4   layers.IPv4
		ip6   layers.IPv6
		tcp   layers.TCP
		udp   layers.UDP
		info  TxContextInfo
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &dot1q, &ip4, &ip6, &tcp, &udp)
	parser.IgnoreUnsupported = true
	decoded := make([]gopacket.LayerType, 0, 6)
	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		return info, fmt.Errorf("decode frame: %w", err)
	}

	cx := &info.Cx
	var hasIP4, hasIP6, hasTCP, hasUDP bool
	l2Len := uint32(ethHdrLen)
	etherType := eth.EthernetType
	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeDot1Q:
			l2Len += vlanHdrLen
			etherType = dot1q.Type
		case layers.LayerTypeIPv4:
			hasIP4 = true
		case layers.LayerTypeIPv6:
			hasIP6 = true
		case layers.LayerTypeTCP:
			hasTCP = true
		case layers.LayerTypeUDP:
			hasUDP = true
		}
	}

	if !opts.NoCsum {
		if (hasIP4 || hasIP6) && (hasTCP || hasUDP) {
			cx.Flags |= PktCxCSUM
		} else if hasIP4 {
			cx.Flags |= PktCxIPCSUM
		}
	}

	if opts.VlanTag != 0 {
		cx.Flags |= PktCxVLAN
		cx.VTagID = uint32(opts.VlanTag)
	}

	if !opts.NoTimestamp {
		ptp := etherType == ethTypePTP
		if hasUDP && (udp.DstPort == ptpEventPort || udp.DstPort == ptpGeneralPort) {
			ptp = true
		}
		if ptp {
			cx.Flags |= PktCxPTP
		}
	}

	if opts.MSS != 0 {
		if !hasTCP {
			return info, fmt.Errorf("%w: TSO requested for a non-TCP frame", ErrInvalidArg)
		}
		var l3Len uint32
		if hasIP4 {
			l3Len = uint32(ip4.IHL) * 4
		} else {
			l3Len = uint32(len(ip6.Contents))
		}
		l4Len := uint32(tcp.DataOffset) * 4
		hdrLen := l2Len + l3Len + l4Len
		payload := uint32(len(tcp.Payload))
		if payload > opts.MSS {
			cx.Flags |= PktCxTSO
			cx.MSS = opts.MSS
			cx.TCPUDPHdrLen = l4Len
			cx.TotalHdrLen = hdrLen
			cx.PayloadLen = payload
			info.HdrLen = hdrLen
		}
	}
	return info, nil
}
