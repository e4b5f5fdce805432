package ethdma

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// rxRefillDesc builds the descriptor that hands the buffer of swcx back to hardware.
// OWN is not set.
func (d *Dma) rxRefillDesc(swcx *RxSwcx, pos uint32) Desc {
	desc := Desc{lower32(swcx.BufPhysAddr), upper32(swcx.BufPhysAddr), 0, Rdes3IOC}
	desc[3] |= d.ops.rxBufValid()

	if d.cfg.UseRIWT {
		desc[3] &^= Rdes3IOC
		if d.cfg.UseRxFrames && d.cfg.RxFrames != 0 && pos%d.cfg.RxFrames == 0 {
			desc[3] |= Rdes3IOC
		}
	}
	return desc
}

func (d *Dma) rxTailPtr(ring *RxRing) (uint64, error) {
	tailptr := ring.descPhys(ring.Size)
	if tailptr < ring.PhysAddr {
		d.logger.Error("invalid Rx descriptor address", zap.Uint64("phys", ring.PhysAddr))
		return 0, fmt.Errorf("%w: Rx descriptor address overflow", unix.EFAULT)
	}
	return tailptr, nil
}

// initRxRing hands every slot of ring to hardware and programs the ring registers.
func (d *Dma) initRxRing(ch uint32, ring *RxRing) error {
	ring.CurRxIdx = 0
	ring.RefillIdx = 0
	ring.PktCx = RxPktContext{}

	for i := uint32(0); i < ring.Size; i++ {
		swcx := &ring.Swcx[i]
		desc := d.rxRefillDesc(swcx, i)
		desc[3] |= Rdes3OWN
		ring.Store(i, desc)
		swcx.Flags = 0
	}

	tailptr, err := d.rxTailPtr(ring)
	if err != nil {
		return err
	}

	r := d.ops.regs()
	d.writel(r.at(ch, r.rdrl), (ring.Size-1)&d.ops.ringLenMask())
	d.writel(r.at(ch, r.rdtp), lower32(tailptr))
	d.writel(r.at(ch, r.rdlh), upper32(ring.PhysAddr))
	d.writel(r.at(ch, r.rdla), lower32(ring.PhysAddr))
	return nil
}

// RefillRxDescriptors returns the slots between RefillIdx and CurRxIdx to hardware.
//
// The caller attaches a buffer to a slot by setting BufPhysAddr and the
// RxSwcxBufValid flag of its Swcx entry. Refilling stops at the first slot
// without a valid buffer, and never passes CurRxIdx.
//
// Returns:
// - nil once the tail pointer was written.
// - An error for an invalid channel or a channel without Rx ring.
//
// Steps:
// 1. For each refillable slot: clear the software flags, write the buffer
//    address, rdes2 and rdes3 with interrupt-on-completion per coalescing,
//    then set OWN in a separate, final write.
// 2. Write the Rx tail pointer, one past the last descriptor of the ring.
func (d *Dma) RefillRxDescriptors(ch uint32) error {
	if err := d.validateChan(ch); err != nil {
		return err
	}
	ring := d.cfg.RxRings[ch]
	if ring == nil || len(ring.Swcx) == 0 {
		d.logger.Error("Rx ring not attached", zap.Uint32("chan", ch))
		return fmt.Errorf("%w: channel %d has no Rx ring", unix.EFAULT, ch)
	}

	for ring.RefillIdx != ring.CurRxIdx && ring.RefillIdx < ring.Size {
		idx := ring.RefillIdx
		swcx := &ring.Swcx[idx]
		if swcx.Flags&RxSwcxBufValid == 0 {
			break
		}
		swcx.Flags = 0

		desc := d.rxRefillDesc(swcx, idx)
		ring.Store(idx, desc)
		ring.SetWord(idx, 3, desc[3]|Rdes3OWN)

		ring.RefillIdx = incrIdx(idx, ring.Size)
	}

	tailptr, err := d.rxTailPtr(ring)
	if err != nil {
		return err
	}
	r := d.ops.regs()
	d.writel(r.at(ch, r.rdtp), lower32(tailptr))
	return nil
}

// GetRefillCount returns the number of slots waiting for a new buffer.
func (d *Dma) GetRefillCount(ch uint32) uint32 {
	if ch >= MaxDmaChans || d.cfg == nil {
		return 0
	}
	ring := d.cfg.RxRings[ch]
	if ring == nil || ring.CurRxIdx >= ring.Size || ring.RefillIdx >= ring.Size {
		return 0
	}
	return ringDistance(ring.RefillIdx, ring.CurRxIdx, ring.Size)
}

func (d *Dma) deliver(ring *RxRing, ch uint32, cx *RxPktContext, swcx *RxSwcx) {
	if d.cfg.Ops.ReceivePacket != nil {
		d.cfg.Ops.ReceivePacket(ring, ch, d.cfg.RxBufLen, cx, swcx)
	}
}

func (d *Dma) isResvBuf(swcx *RxSwcx) bool {
	return !d.stripped && d.cfg.ResvBufPhysAddr != 0 && swcx.BufPhysAddr == d.cfg.ResvBufPhysAddr
}

// decodeRxDesc fills cx from a complete single-descriptor packet and consumes
// the following context slot when it carries the timestamp.
func (d *Dma) decodeRxDesc(ring *RxRing, ch uint32, desc Desc, cx *RxPktContext) {
	if desc[3]&d.ops.rxErrBits() != 0 {
		cx.Flags &^= PktCxValid
		if !d.stripped {
			d.stats.update(func(s *DmaStats) { d.ops.updateRxErrStats(desc, &s.Err) })
		}
	}

	d.ops.getRxCsum(desc, cx)
	if !d.stripped {
		d.ops.getRxVlan(desc, cx)
		d.ops.getRxHash(desc, cx)
	}

	if err := d.getRxHwstamp(ring, desc, ring.CurRxIdx, cx); err == nil {
		ring.Swcx[ring.CurRxIdx].Flags |= RxSwcxReuse
		ring.CurRxIdx = incrIdx(ring.CurRxIdx, ring.Size)
	}
}

// ProcessRxCompletions delivers the packets the DMA of channel ch wrote back.
//
// Parameters:
// - ch: DMA channel.
// - budget: maximum number of packets to deliver.
//
// Returns:
// - The number of packets delivered through ReceivePacket.
// - Whether more completed descriptors are waiting once the budget ran out.
// - An error for an invalid channel or a channel without Rx ring.
//
// A packet spanning more than one descriptor is delivered without
// PktCxValid. Slots holding the reserved placeholder buffer are not
// delivered; ReallocBuf is asked to replace them instead.
func (d *Dma) ProcessRxCompletions(ch uint32, budget int) (int, bool, error) {
	if err := d.validateChan(ch); err != nil {
		return 0, false, err
	}
	ring := d.cfg.RxRings[ch]
	if ring == nil {
		d.logger.Error("Rx ring not attached", zap.Uint32("chan", ch))
		return 0, false, fmt.Errorf("%w: channel %d has no Rx ring", unix.EFAULT, ch)
	}
	if ring.CurRxIdx >= ring.Size || ring.Size == 0 {
		d.logger.Error("invalid cur_rx_idx or Rx ring size",
			zap.Uint32("idx", ring.CurRxIdx), zap.Uint32("size", ring.Size))
		return 0, false, fmt.Errorf("%w: cur_rx_idx %d", ErrInvalidArg, ring.CurRxIdx)
	}

	if n, ok := d.ops.rxCompleted(d, ring, ch); ok && int(n) < budget {
		budget = int(n)
	}

	received, resv := 0, 0
	cx := &ring.PktCx
	for received < budget && resv < budget {
		desc := ring.Load(ring.CurRxIdx)
		if desc[3]&Rdes3OWN != 0 {
			break
		}
		if !d.ops.rxDataReady(d, ring, ch) {
			continue
		}

		swcx := &ring.Swcx[ring.CurRxIdx]
		*cx = RxPktContext{}
		ring.CurRxIdx = incrIdx(ring.CurRxIdx, ring.Size)

		if d.isResvBuf(swcx) {
			swcx.BufPhysAddr = 0
			swcx.Cookie = nil
			resv++
			d.stats.update(func(s *DmaStats) {
				s.RxBufReallocN = updateStatsCounter(s.RxBufReallocN, 1)
			})
			if d.cfg.Ops.ReallocBuf != nil {
				d.cfg.Ops.ReallocBuf(ring, ch)
			}
			continue
		}

		if swcx.Flags&RxSwcxProcessed != 0 {
			break
		}

		cx.PktLen = desc[3] & Rdes3PktLen
		if desc[3]&Rdes3FD == 0 || desc[3]&Rdes3LD == 0 {
			// needed more than one buffer: not reassembled
			d.deliver(ring, ch, cx, swcx)
			continue
		}

		cx.Flags |= PktCxValid
		d.decodeRxDesc(ring, ch, desc, cx)
		d.deliver(ring, ch, cx, swcx)

		if !d.stripped {
			valid := cx.Flags&PktCxValid != 0
			d.stats.update(func(s *DmaStats) {
				s.ChanRxPktN[ch] = updateStatsCounter(s.ChanRxPktN[ch], 1)
				s.RxPktN = updateStatsCounter(s.RxPktN, 1)
				if valid {
					s.QRxPktN[ch] = updateStatsCounter(s.QRxPktN[ch], 1)
				}
			})
		}
		received++
	}

	more := false
	if !d.stripped && received+resv >= budget {
		desc := ring.Load(ring.CurRxIdx)
		if ring.Swcx[ring.CurRxIdx].Flags&RxSwcxProcessed == 0 && desc[3]&Rdes3OWN == 0 {
			more = true
		}
	}
	return received, more, nil
}
