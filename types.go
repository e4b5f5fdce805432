package ethdma

import (
	"go.uber.org/zap"
)

// Desc is one hardware descriptor: tdes0..tdes3 or rdes0..rdes3.
type Desc [4]uint32

// Packet context flags, shared by TxPktContext, RxPktContext and TxSwcx.
const (
	PktCxVLAN     = 1 << 0
	PktCxCSUM     = 1 << 1
	PktCxTSO      = 1 << 2
	PktCxPTP      = 1 << 3
	PktCxPagedBuf = 1 << 4
	PktCxRSS      = 1 << 5
	PktCxValid    = 1 << 10
	PktCxLen      = 1 << 11
	PktCxIPCSUM   = 1 << 12
)

// Tx completion flags.
const (
	TxDoneCxPagedBuf  = 1 << 0
	TxDoneCxError     = 1 << 1
	TxDoneCxTS        = 1 << 2
	TxDoneCxTSDelayed = 1 << 3
)

// Rx software context flags.
const (
	RxSwcxReuse     = 1 << 0
	RxSwcxBufValid  = 1 << 1
	RxSwcxProcessed = 1 << 3
)

// Rx checksum results.
const (
	ChecksumNone        = 0
	ChecksumTCPv4       = 1 << 0
	ChecksumUDPv4       = 1 << 1
	ChecksumTCPUDPBad   = 1 << 2
	ChecksumTCPv6       = 1 << 4
	ChecksumUDPv6       = 1 << 5
	ChecksumIPv4        = 1 << 6
	ChecksumIPv4Bad     = 1 << 7
	ChecksumUnnecessary = 1 << 8
)

// Rx hash types.
const (
	RxPktHashTypeL2 = 1
	RxPktHashTypeL3 = 2
	RxPktHashTypeL4 = 3
)

// PTP synchronization mode flags.
const (
	PtpSyncMaster  = 1 << 0
	PtpSyncSlave   = 1 << 1
	PtpSyncOneStep = 1 << 2
	PtpSyncTwoStep = 1 << 3
)

// Interrupt direction for SetInterrupt.
const (
	DmaChTxIntr = 0
	DmaChRxIntr = 1
)

// TxPktContext describes the packet about to be handed to Transmit.
type TxPktContext struct {
	Flags uint32
	// VTagID is the 802.1Q TCI inserted by hardware.
	VTagID uint32
	// DescCnt is the number of ring slots the packet uses, context descriptor included.
	DescCnt uint32
	MSS     uint32
	// PayloadLen is the TCP payload length for TSO or the explicit packet length.
	PayloadLen uint32
	// TCPUDPHdrLen is the L4 header length for TSO, in bytes.
	TCPUDPHdrLen uint32
	// TotalHdrLen covers L2 through L4 headers for TSO.
	TotalHdrLen uint32
}

// TxDoneContext is reported for each reclaimed Tx slot.
type TxDoneContext struct {
	Flags  uint32
	NS     uint64
	PktID  uint32
	VdmaID uint32
}

// RxPktContext accumulates the decode result of one received packet.
type RxPktContext struct {
	Flags      uint32
	RxCsum     uint32
	VlanTag    uint32
	PktLen     uint32
	RxHash     uint32
	RxHashType uint32
	NS         uint64
}

// TxSwcx is the software shadow of one Tx descriptor slot.
type TxSwcx struct {
	BufPhysAddr uint64
	Len         uint32
	// Flags holds PktCxPagedBuf and PktCxPTP.
	Flags   uint32
	PktID   uint32
	VdmaID  uint32
	DataIdx uint32
	// Cookie is an opaque caller handle, returned untouched on completion.
	Cookie any
}

// RxSwcx is the software shadow of one Rx descriptor slot.
type RxSwcx struct {
	BufPhysAddr uint64
	Len         uint32
	Flags       uint32
	DataIdx     uint32
	Cookie      any
}

// OsdOps are the callbacks supplied by the owner of a Dma instance.
type OsdOps struct {
	// TransmitComplete is invoked once per reclaimed Tx slot.
	TransmitComplete func(ch uint32, swcx *TxSwcx, done *TxDoneContext)
	// ReceivePacket is invoked once per decoded or rejected Rx slot.
	ReceivePacket func(ring *RxRing, ch uint32, rxBufLen uint32, cx *RxPktContext, swcx *RxSwcx)
	// ReallocBuf is invoked when a reserved placeholder buffer was consumed.
	ReallocBuf func(ring *RxRing, ch uint32)
	// Udelay busy-waits for the given number of microseconds.
	Udelay func(usec uint64)
	// Logger replaces the package logger when set.
	Logger *zap.Logger
}

// RIITEntry maps a link speed to a receive interrupt idle time in nanoseconds.
type RIITEntry struct {
	Speed uint32 `yaml:"speed"`
	RIIT  uint32 `yaml:"riit"`
}

// SlotConfig enables slot based scheduling on one channel.
type SlotConfig struct {
	Chan     uint32 `yaml:"chan"`
	Interval uint32 `yaml:"interval"`
}

// PdmaMap lists the virtual DMA channels served by one physical DMA channel.
type PdmaMap struct {
	Pdma  uint32   `yaml:"pdma"`
	Vdmas []uint32 `yaml:"vdmas"`
	TxTC  uint32   `yaml:"tx_tc"`
	RxTC  uint32   `yaml:"rx_tc"`
}
