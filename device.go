package ethdma

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Device runs a Dma instance over rings and buffers it carves from an Arena.
// Send and Reclaim may run concurrently with Receive; calls of the same
// kind on one channel are serialized internally.
type Device struct {
	dma    *Dma
	cfg    *DmaConfig
	arena  *Arena
	rxBufs *BufferPool
	txBufs *BufferPool
	frames *FramePool
	resv   Buffer

	txMu    [MaxDmaChans]sync.Mutex
	rxMu    [MaxDmaChans]sync.Mutex
	rxBatch [MaxDmaChans][]*Frame

	logger *zap.Logger
}

// NewDevice allocates rings and buffers for every channel of cfg from arena,
// acquires a Dma instance and initializes the hardware.
//
// Parameters:
//   - cfg: configuration with Base set. Rings, callbacks and the reserved
//     buffer are filled in by NewDevice.
//   - arena: DMA-able memory. The device closes it on Close.
//
// Returns:
//   - *Device: the running device.
//   - error: invalid configuration, arena exhausted, or InitHardware failed.
//
// Steps:
// 1. Validate cfg.
// 2. Allocate Tx and Rx rings, one Rx buffer per Rx slot, one Tx buffer per
//    Tx slot and the reserved Rx buffer.
// 3. Install the device callbacks.
// 4. Acquire a Dma and run InitHardware.
func NewDevice(cfg *DmaConfig, arena *Arena) (*Device, error) {
	if cfg == nil || arena == nil {
		return nil, fmt.Errorf("%w: nil config or arena", ErrInvalidArg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev := &Device{cfg: cfg, arena: arena, frames: NewFramePool(), logger: logger}
	if cfg.Ops.Logger != nil {
		dev.logger = cfg.Ops.Logger
	}

	nchans := len(cfg.DmaChans)
	var err error
	dev.rxBufs, err = NewBufferPool(arena, nchans*int(cfg.RxRingSize)+1, cfg.RxBufLen)
	if err != nil {
		return nil, fmt.Errorf("Rx buffers: %w", err)
	}
	dev.txBufs, err = NewBufferPool(arena, nchans*int(cfg.TxRingSize), cfg.RxBufLen)
	if err != nil {
		return nil, fmt.Errorf("Tx buffers: %w", err)
	}
	if dev.resv, err = dev.rxBufs.Get(); err != nil {
		return nil, err
	}
	if !cfg.Stripped {
		cfg.ResvBufPhysAddr = dev.resv.Phys
	}

	for _, ch := range cfg.DmaChans {
		if cfg.TxRings[ch], err = arena.AllocTxRing(cfg.TxRingSize); err != nil {
			return nil, fmt.Errorf("channel %d Tx ring: %w", ch, err)
		}
		rx, err := arena.AllocRxRing(cfg.RxRingSize)
		if err != nil {
			return nil, fmt.Errorf("channel %d Rx ring: %w", ch, err)
		}
		for i := range rx.Swcx {
			b, err := dev.rxBufs.Get()
			if err != nil {
				return nil, err
			}
			rx.Swcx[i] = RxSwcx{BufPhysAddr: b.Phys, Len: cfg.RxBufLen, Cookie: b}
		}
		cfg.RxRings[ch] = rx
	}

	cfg.Ops.TransmitComplete = dev.transmitComplete
	cfg.Ops.ReceivePacket = dev.receivePacket
	cfg.Ops.ReallocBuf = dev.reallocBuf
	if cfg.Ops.Udelay == nil {
		cfg.Ops.Udelay = busyWait
	}

	if dev.dma, err = Acquire(); err != nil {
		return nil, err
	}
	if err = dev.dma.InitHardware(cfg); err != nil {
		return nil, multierr.Append(err, Release(dev.dma))
	}
	dev.logger.Info("device started",
		zap.Stringer("mac", cfg.MacType),
		zap.Uint32s("chans", cfg.DmaChans),
		zap.Int("arena_free", arena.Free()))
	return dev, nil
}

// Dma returns the underlying instance.
func (dev *Device) Dma() *Dma {
	return dev.dma
}

func (dev *Device) transmitComplete(ch uint32, swcx *TxSwcx, done *TxDoneContext) {
	if b, ok := swcx.Cookie.(Buffer); ok {
		dev.txBufs.Put(b)
	}
	if done.Flags&TxDoneCxError != 0 {
		dev.logger.Debug("Tx error", zap.Uint32("chan", ch))
	}
}

// receivePacket copies the frame out and leaves the buffer attached to its slot.
func (dev *Device) receivePacket(ring *RxRing, ch uint32, rxBufLen uint32, cx *RxPktContext, swcx *RxSwcx) {
	defer func() { swcx.Flags |= RxSwcxBufValid }()

	b, ok := swcx.Cookie.(Buffer)
	if !ok {
		return
	}
	n := cx.PktLen
	if n > rxBufLen {
		n = rxBufLen
	}
	f := dev.frames.Get()
	if err := f.SetData(dev.rxBufs.Bytes(b)[:n]); err != nil {
		dev.frames.Put(f)
		return
	}
	f.setMeta(ch, cx)
	dev.rxBatch[ch] = append(dev.rxBatch[ch], f)
}

// reallocBuf replaces the reserved buffer consumed by the slot before CurRxIdx.
func (dev *Device) reallocBuf(ring *RxRing, ch uint32) {
	swcx := &ring.Swcx[decrIdx(ring.CurRxIdx, ring.Size)]
	b, err := dev.rxBufs.Get()
	if err != nil {
		b = dev.resv
	}
	swcx.BufPhysAddr, swcx.Cookie = b.Phys, b
	swcx.Flags |= RxSwcxBufValid
}

// recycleReuse makes the context slots consumed by timestamps refillable.
func recycleReuse(ring *RxRing) {
	for i := ring.RefillIdx; i != ring.CurRxIdx; i = incrIdx(i, ring.Size) {
		if ring.Swcx[i].Flags&RxSwcxReuse != 0 {
			ring.Swcx[i].Flags = RxSwcxBufValid
		}
	}
}

// Receive delivers up to budget frames from channel ch and refills its ring.
//
// Returns:
//   - The received frames; return them with PutFrame when done.
//   - Whether more frames are already waiting.
//   - An error from the ring engine.
func (dev *Device) Receive(ch uint32, budget int) ([]*Frame, bool, error) {
	if ch >= MaxDmaChans {
		return nil, false, fmt.Errorf("%w: channel %d", ErrInvalidArg, ch)
	}
	dev.rxMu[ch].Lock()
	defer dev.rxMu[ch].Unlock()

	dev.rxBatch[ch] = dev.rxBatch[ch][:0]
	_, more, err := dev.dma.ProcessRxCompletions(ch, budget)
	if err != nil {
		return nil, false, err
	}
	recycleReuse(dev.cfg.RxRings[ch])
	if err = dev.dma.RefillRxDescriptors(ch); err != nil {
		return nil, false, err
	}
	out := make([]*Frame, len(dev.rxBatch[ch]))
	copy(out, dev.rxBatch[ch])
	return out, more, nil
}

// PutFrame recycles a frame returned by Receive.
func (dev *Device) PutFrame(f *Frame) {
	dev.frames.Put(f)
}

// Reclaim releases the Tx buffers of completed packets on channel ch.
func (dev *Device) Reclaim(ch uint32, budget int) (int, error) {
	if ch >= MaxDmaChans {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidArg, ch)
	}
	dev.txMu[ch].Lock()
	defer dev.txMu[ch].Unlock()
	return dev.dma.ProcessTxCompletions(ch, budget)
}

func txRingFree(ring *TxRing) uint32 {
	return ring.Size - ringDistance(ring.CleanIdx, ring.CurTxIdx, ring.Size) - 1
}

// Send copies frame into a DMA buffer and transmits it on channel ch.
//
// Returns:
//   - nil once the doorbell was written.
//   - ErrFrameTooLarge, ErrTxRingFull, ErrNoBuffer, or a decode or Transmit error.
func (dev *Device) Send(ch uint32, frame []byte, opts TxOptions) error {
	if ch >= MaxDmaChans || dev.cfg.TxRings[ch] == nil {
		return fmt.Errorf("%w: channel %d", ErrInvalidArg, ch)
	}
	if uint32(len(frame)) > dev.txBufs.BufSize() {
		return ErrFrameTooLarge
	}
	info, err := BuildTxContext(frame, opts)
	if err != nil {
		return err
	}

	dev.txMu[ch].Lock()
	defer dev.txMu[ch].Unlock()

	ring := dev.cfg.TxRings[ch]
	cx := info.Cx
	needCtx := dev.dma.NeedsContextDesc(&cx)
	need := uint32(1)
	if needCtx {
		need++
	}
	if cx.Flags&PktCxTSO != 0 {
		need++
	}
	if txRingFree(ring) < need {
		if _, err = dev.dma.ProcessTxCompletions(ch, int(ring.Size)); err != nil {
			return err
		}
		if txRingFree(ring) < need {
			return ErrTxRingFull
		}
	}

	b, err := dev.txBufs.Get()
	if err != nil {
		return err
	}
	copy(dev.txBufs.Bytes(b), frame)

	idx := ring.CurTxIdx
	if needCtx {
		ring.Swcx[idx] = TxSwcx{Len: invalidValue}
		idx = incrIdx(idx, ring.Size)
	}
	first := idx
	if cx.Flags&PktCxTSO != 0 {
		ring.Swcx[idx] = TxSwcx{BufPhysAddr: b.Phys, Len: info.HdrLen, Cookie: b}
		idx = incrIdx(idx, ring.Size)
		ring.Swcx[idx] = TxSwcx{BufPhysAddr: b.Phys + uint64(info.HdrLen), Len: uint32(len(frame)) - info.HdrLen}
	} else {
		ring.Swcx[idx] = TxSwcx{BufPhysAddr: b.Phys, Len: uint32(len(frame)), Cookie: b}
	}

	cx.DescCnt = need
	ring.PktCx = cx
	if err = dev.dma.Transmit(ch); err != nil {
		ring.Swcx[first] = TxSwcx{}
		dev.txBufs.Put(b)
		return err
	}
	return nil
}

// Close stops the DMA, returns the instance to the pool and unmaps the arena.
func (dev *Device) Close() error {
	if dev == nil || dev.dma == nil {
		return nil
	}
	err := multierr.Combine(
		dev.dma.DeinitHardware(),
		Release(dev.dma),
		dev.arena.Close(),
	)
	dev.dma = nil
	return err
}
