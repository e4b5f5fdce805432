package ethdma

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// initTxRing empties ring and programs its length and base address.
func (d *Dma) initTxRing(ch uint32, ring *TxRing) {
	for i := uint32(0); i < ring.Size; i++ {
		ring.Clear(i)
		ring.Swcx[i] = TxSwcx{}
	}
	ring.CurTxIdx = 0
	ring.CleanIdx = 0
	ring.SlotNumber = 0
	ring.SlotCheck = false

	r := d.ops.regs()
	d.writel(r.at(ch, r.tdrl), (ring.Size-1)&d.ops.ringLenMask())
	d.writel(r.at(ch, r.tdlh), upper32(ring.PhysAddr))
	d.writel(r.at(ch, r.tdla), lower32(ring.PhysAddr))
}

// TxRingEmpty reports whether every submitted Tx descriptor of ch was reclaimed.
func (d *Dma) TxRingEmpty(ch uint32) bool {
	if ch >= MaxDmaChans || d.cfg == nil || d.cfg.TxRings[ch] == nil {
		return true
	}
	ring := d.cfg.TxRings[ch]
	return ring.CleanIdx == ring.CurTxIdx
}

func (d *Dma) validateTxPktContext(cx *TxPktContext) error {
	switch {
	case cx.Flags&PktCxTSO != 0:
		if cx.TCPUDPHdrLen/4 > Tdes3THLMask {
			d.logger.Error("invalid TSO header length", zap.Uint32("len", cx.TCPUDPHdrLen))
			return fmt.Errorf("%w: TSO header length %d", ErrTxContext, cx.TCPUDPHdrLen)
		}
		if cx.PayloadLen > Tdes3TPLMask {
			d.logger.Error("invalid TSO payload length", zap.Uint32("len", cx.PayloadLen))
			return fmt.Errorf("%w: TSO payload length %d", ErrTxContext, cx.PayloadLen)
		}
		if cx.MSS > Tdes2MSSMask {
			d.logger.Error("invalid MSS", zap.Uint32("mss", cx.MSS))
			return fmt.Errorf("%w: MSS %d", ErrTxContext, cx.MSS)
		}
	case cx.Flags&PktCxLen != 0:
		if cx.PayloadLen > Tdes3PLMask {
			d.logger.Error("invalid frame length", zap.Uint32("len", cx.PayloadLen))
			return fmt.Errorf("%w: frame length %d", ErrTxContext, cx.PayloadLen)
		}
	}
	if cx.VTagID > Tdes3VTMask {
		d.logger.Error("invalid VLAN tag", zap.Uint32("vtag", cx.VTagID))
		return fmt.Errorf("%w: VLAN tag 0x%x", ErrTxContext, cx.VTagID)
	}
	return nil
}

func ptpOneStepMaster(flag uint32) bool {
	return flag&PtpSyncMaster != 0 && flag&PtpSyncOneStep != 0
}

// contextDesc builds the leading context descriptor, if cx needs one.
// swcxLen is the Len of the slot it occupies.
func (d *Dma) contextDesc(cx *TxPktContext, swcxLen *uint32) (desc Desc, need bool) {
	if cx.Flags&(PktCxVLAN|PktCxTSO|PktCxPTP) == 0 {
		return desc, false
	}
	if cx.Flags&PktCxVLAN != 0 {
		desc[3] |= Tdes3CTXT | cx.VTagID | Tdes3VLTV
		if *swcxLen == invalidValue {
			*swcxLen = vlanHdrLen
		}
		need = true
	}
	if cx.Flags&PktCxTSO != 0 {
		desc[2] |= cx.MSS
		desc[3] |= Tdes3CTXT | Tdes3TCMSSV
		need = true
	}
	// must stay last: one-step mode overrides TCMSSV
	if cx.Flags&PktCxPTP != 0 {
		ptp := d.cfg.PtpFlag
		if d.cfg.MacType == MacEQOS && ptp&PtpSyncTwoStep != 0 {
			return desc, need
		}
		desc[3] |= Tdes3CTXT
		if ptp&PtpSyncOneStep != 0 {
			desc[3] |= Tdes3OSTC
			desc[3] &^= Tdes3TCMSSV
		}
		need = true
	}
	return desc, need
}

// nextPktID advances the PTP packet id counter and encodes it for ch.
func (d *Dma) nextPktID(ch uint32) (pktID, vdmaID uint32) {
	var id uint32
	for {
		old := d.pktID.Load()
		id = (old & 0x7FFFFFFF) + 1
		if d.pktID.CompareAndSwap(old, id) {
			break
		}
	}
	if d.cfg.MacType == MacMGBET26x {
		return id & (pktIDCntT26x - 1), ch
	}
	return (id & (pktIDCnt - 1)) | ((ch + 1) << pktIDChanShift), 0
}

// firstDesc builds the first data descriptor of a packet.
func (d *Dma) firstDesc(ring *TxRing, cx *TxPktContext, swcx *TxSwcx) (desc Desc) {
	desc[0] = lower32(swcx.BufPhysAddr)
	desc[1] = upper32(swcx.BufPhysAddr)
	desc[2] = swcx.Len
	desc[3] = Tdes3FD

	if cx.Flags&PktCxCSUM != 0 {
		desc[3] |= Tdes3HwCicAll
	} else if cx.Flags&PktCxIPCSUM != 0 {
		desc[3] |= Tdes3HwCicIPOnly
	}
	if cx.Flags&PktCxVLAN != 0 {
		desc[2] |= Tdes2VTIR
	}
	if cx.Flags&PktCxPTP != 0 && !ptpOneStepMaster(d.cfg.PtpFlag) {
		desc[2] |= Tdes2TTSE
	}
	if cx.Flags&PktCxLen != 0 {
		desc[3] |= cx.PayloadLen
	}

	if cx.Flags&PktCxTSO != 0 {
		desc[3] |= Tdes3TSE
		desc[3] |= (cx.TCPUDPHdrLen / 4) << Tdes3THLShift
		desc[3] &^= Tdes3TPLMask
		desc[3] |= cx.PayloadLen
	} else if !d.stripped && ring.SlotCheck && ring.SlotNumber < slotNumMax {
		desc[3] |= ring.SlotNumber << Tdes3THLShift
		ring.SlotNumber = (ring.SlotNumber + 1) % slotNumMax
	}
	return desc
}

func incrDescCnt(ring *TxRing) {
	if ring.DescCnt == math.MaxUint32 {
		ring.DescCnt = 0
	}
	ring.DescCnt++
}

func (d *Dma) updateFrameCnt(ring *TxRing) {
	switch {
	case ring.FrameCnt < math.MaxUint32:
		ring.FrameCnt++
	case d.cfg.UseTxFrames && d.cfg.TxFrames != 0:
		// keep the position within the tx_frames window
		ring.FrameCnt = ring.FrameCnt%d.cfg.TxFrames + 1
	default:
		ring.FrameCnt = 1
	}
}

// coalesceIOC applies software Tx interrupt coalescing to the last descriptor.
func (d *Dma) coalesceIOC(ring *TxRing, cx *TxPktContext, last *Desc) {
	cfg := d.cfg
	if !cfg.UseTxUsecs {
		return
	}
	last[2] &^= Tdes2IOC
	switch {
	case cfg.UseTxFrames:
		if cfg.TxFrames != 0 && ring.FrameCnt%cfg.TxFrames == 0 {
			last[2] |= Tdes2IOC
		}
	case cfg.UseTxDescs:
		if cfg.IntrDescCount != 0 && ring.DescCnt >= cfg.IntrDescCount {
			last[2] |= Tdes2IOC
			ring.DescCnt %= cfg.IntrDescCount
		} else if cx.Flags&PktCxPTP != 0 {
			// timestamps are not held back by coalescing
			last[2] |= Tdes2IOC
			ring.DescCnt = 0
		}
	}
}

// Transmit hands the packet described by ring.PktCx to the DMA of channel ch.
//
// The caller fills ring.PktCx and the Swcx entries of the ring.PktCx.DescCnt
// slots starting at CurTxIdx beforehand; a context slot carries Len 0xFFFFFFFF.
//
// Returns:
// - nil once the doorbell was written.
// - ErrTxContext if a packet context field does not fit its descriptor field.
//   Nothing is written to descriptors or registers in that case.
//
// Steps:
// 1. Validate the ring index, descriptor count and packet context.
// 2. Build the context descriptor, if VLAN, TSO or PTP need one.
// 3. Build the first, middle and last data descriptors and apply coalescing.
// 4. Write the descriptors. Each slot is filled before its OWN bit is set;
//    the first and the context descriptor are handed over last.
// 5. Barrier, advance CurTxIdx and write the tail pointer.
func (d *Dma) Transmit(ch uint32) error {
	if err := d.validateChan(ch); err != nil {
		return err
	}
	ring := d.cfg.TxRings[ch]
	if ring == nil {
		d.logger.Error("Tx ring not attached", zap.Uint32("chan", ch))
		return fmt.Errorf("%w: channel %d has no Tx ring", unix.EFAULT, ch)
	}

	entry := ring.CurTxIdx
	if entry >= ring.Size {
		d.logger.Error("invalid cur_tx_idx", zap.Uint32("idx", entry))
		return fmt.Errorf("%w: cur_tx_idx %d", ErrInvalidArg, entry)
	}
	cx := &ring.PktCx
	descCnt := cx.DescCnt
	if descCnt == 0 || descCnt > ring.Size {
		d.logger.Error("invalid desc_cnt", zap.Uint32("desc_cnt", descCnt))
		return fmt.Errorf("%w: desc_cnt %d", ErrInvalidArg, descCnt)
	}
	if err := d.validateTxPktContext(cx); err != nil {
		return err
	}

	// Everything is computed on copies so that a rejected packet changes nothing.
	ctxSwcxLen := ring.Swcx[entry].Len
	ctxDesc, needCtx := d.contextDesc(cx, &ctxSwcxLen)
	if needCtx && descCnt < 2 {
		d.logger.Error("context descriptor without data descriptor", zap.Uint32("desc_cnt", descCnt))
		return fmt.Errorf("%w: desc_cnt %d leaves no data descriptor", ErrInvalidArg, descCnt)
	}

	if !d.stripped {
		d.stats.update(func(s *DmaStats) {
			if cx.Flags&PktCxVLAN != 0 {
				s.TxVlanPktN = updateStatsCounter(s.TxVlanPktN, 1)
			}
			if cx.Flags&PktCxTSO != 0 {
				s.TxTSOPktN = updateStatsCounter(s.TxTSOPktN, 1)
			}
		})
	}

	var pktID, vdmaID uint32
	ctxIdx := entry
	ptpOnNewMac := cx.Flags&PktCxPTP != 0 && d.cfg.MacType != MacEQOS
	idxs := make([]uint32, 0, descCnt)
	descs := make([]Desc, 0, descCnt)
	if needCtx {
		ring.Swcx[entry].Len = ctxSwcxLen
		if ptpOnNewMac {
			ctxDesc[3] |= Tdes3PIDV
			if d.cfg.PtpFlag&PtpSyncOneStep == 0 {
				pktID, vdmaID = d.nextPktID(ch)
				if d.cfg.MacType == MacMGBET26x {
					ctxDesc[0] = vdmaID << ptpVdmaShift
				}
			}
			ctxDesc[0] |= pktID
		}
		entry = incrIdx(entry, ring.Size)
		descCnt--
	}

	firstIdx := entry
	idxs = append(idxs, entry)
	descs = append(descs, d.firstDesc(ring, cx, &ring.Swcx[entry]))
	entry = incrIdx(entry, ring.Size)
	descCnt--

	for ; descCnt > 0; descCnt-- {
		incrDescCnt(ring)
		swcx := &ring.Swcx[entry]
		idxs = append(idxs, entry)
		descs = append(descs, Desc{lower32(swcx.BufPhysAddr), upper32(swcx.BufPhysAddr), swcx.Len, 0})
		entry = incrIdx(entry, ring.Size)
	}
	if ring.DescCnt == math.MaxUint32 {
		ring.DescCnt = 0
	}

	lastIdx := idxs[len(idxs)-1]
	last := &descs[len(descs)-1]
	last[3] |= Tdes3LD
	if ptpOnNewMac {
		lastSwcx := &ring.Swcx[lastIdx]
		lastSwcx.Flags |= PktCxPTP
		lastSwcx.PktID = pktID
		if d.cfg.MacType == MacMGBET26x {
			lastSwcx.VdmaID = vdmaID
		}
	}
	last[2] |= Tdes2IOC
	d.updateFrameCnt(ring)
	ring.DescCnt++
	d.coalesceIOC(ring, cx, last)

	tailptr := ring.descPhys(entry)
	if tailptr < ring.PhysAddr {
		d.logger.Error("invalid Tx descriptor address", zap.Uint64("phys", ring.PhysAddr))
		return fmt.Errorf("%w: Tx descriptor address overflow", unix.EFAULT)
	}

	if needCtx {
		ring.Store(ctxIdx, ctxDesc)
	}
	ring.Store(firstIdx, descs[0])
	for i := 1; i < len(descs); i++ {
		descs[i][3] |= Tdes3OWN
		ring.Store(idxs[i], descs[i])
	}
	ring.SetWord(firstIdx, 3, descs[0][3]|Tdes3OWN)
	if needCtx {
		ring.SetWord(ctxIdx, 3, ctxDesc[3]|Tdes3OWN)
	}

	if !ring.SkipDmb {
		d.wmb()
	}

	ring.CurTxIdx = entry

	r := d.ops.regs()
	d.writel(r.at(ch, r.tdtp), lower32(tailptr))
	return nil
}

// NeedsContextDesc reports whether Transmit places a context descriptor in
// front of the packet described by cx. The caller reserves one extra slot,
// with Len 0xFFFFFFFF, when it does.
func (d *Dma) NeedsContextDesc(cx *TxPktContext) bool {
	l := uint32(invalidValue)
	_, need := d.contextDesc(cx, &l)
	return need
}
