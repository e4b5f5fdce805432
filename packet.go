package ethdma

import (
	"errors"
)

const (
	MaxFrameDataSize = maxMtuSize + ethHdrLen + vlanHdrLen
	FrameHeadroom    = 64
	FrameTailroom    = 0
	FrameRawDataSize = FrameHeadroom + MaxFrameDataSize + FrameTailroom
)

// ErrFrameTooLarge is returned by SetData for data above MaxFrameDataSize.
var ErrFrameTooLarge = errors.New("data too large")

type FrameRawData [FrameRawDataSize]byte

// Frame is a received packet copied out of its DMA buffer, together with
// the receive metadata the descriptor carried.
type Frame struct {
	rawData FrameRawData
	data    []byte
	head    int
	tail    int

	// Chan is the DMA channel the frame arrived on.
	Chan uint32
	// Flags holds PktCxValid, PktCxVLAN, PktCxPTP and PktCxRSS.
	Flags   uint32
	Csum    uint32
	VlanTag uint32
	Hash    uint32
	// NS is the receive timestamp when Flags has PktCxPTP.
	NS uint64
}

// Data returns the valid bytes of the frame. The slice must not be modified.
func (f *Frame) Data() []byte {
	return f.data
}

// Len returns the current length of the frame.
func (f *Frame) Len() int {
	return len(f.data)
}

// Valid reports whether the frame passed the hardware checks.
func (f *Frame) Valid() bool {
	return f.Flags&PktCxValid != 0
}

// SetData copies data into the frame and updates its length.
func (f *Frame) SetData(data []byte) error {
	if len(data) > MaxFrameDataSize {
		return ErrFrameTooLarge
	}
	copy(f.rawData[FrameHeadroom:], data)
	f.head = FrameHeadroom
	f.tail = FrameHeadroom + len(data)
	f.data = f.rawData[f.head:f.tail]
	return nil
}

// setMeta copies the receive metadata of cx into the frame.
func (f *Frame) setMeta(ch uint32, cx *RxPktContext) {
	f.Chan = ch
	f.Flags = cx.Flags
	f.Csum = cx.RxCsum
	f.VlanTag = cx.VlanTag
	f.Hash = cx.RxHash
	f.NS = cx.NS
}

// RunHandler runs handler on the raw data and the head and tail indexes,
// then re-slices the frame data from head to tail.
func (f *Frame) RunHandler(handler func(*FrameRawData, *int, *int)) {
	handler(&f.rawData, &f.head, &f.tail)
	f.data = f.rawData[f.head:f.tail]
}
