package ethdma

import (
	"fmt"
)

// mgbeMac drives the MGBE MAC. t26x selects the generation with the VDMA/PDMA fabric.
type mgbeMac struct {
	t26x bool
}

var mgbeRegs = chanRegs{
	base:     mgbeDmaChBase,
	ctrl:     mgbeDmaChCtrl,
	txCtrl:   mgbeDmaChTxCtrl,
	rxCtrl:   mgbeDmaChRxCtrl,
	tdlh:     mgbeDmaChTDLH,
	tdla:     mgbeDmaChTDLA,
	rdlh:     mgbeDmaChRDLH,
	rdla:     mgbeDmaChRDLA,
	tdtp:     mgbeDmaChTDTLP,
	rdtp:     mgbeDmaChRDTLP,
	tdrl:     mgbeDmaChTxCntrl2,
	rdrl:     mgbeDmaChRxCntrl2,
	intrEna:  mgbeDmaChIntrEna,
	rxWdt:    mgbeDmaChRxWdt,
	status:   mgbeDmaChStatus,
	stsr:     mgbeMacSTSR,
	stnsr:    mgbeMacSTNSR,
	chanMask: 0x3F,
}

func (m mgbeMac) macType() MacType {
	if m.t26x {
		return MacMGBET26x
	}
	return MacMGBE
}

func (mgbeMac) regs() *chanRegs         { return &mgbeRegs }
func (mgbeMac) ringLenMask() uint32     { return mgbeRingLenMask }
func (mgbeMac) defaultRingSize() uint32 { return MgbeDefaultRingSize }
func (mgbeMac) rxBufValid() uint32      { return 0 }
func (mgbeMac) rxErrBits() uint32       { return Rdes3ES }

func (m mgbeMac) globalStatusCount() int {
	if m.t26x {
		return mgbeT26xGlobalStatus
	}
	return 1
}

// mgbeRxPBL splits the Rx FIFO of one queue between the configured channels.
func mgbeRxPBL(nchans uint32) uint32 {
	depth := uint32(mgbeRxqSize / mgbeMaxQueues / axiBusWidth)
	return validPBL(depth / nchans / 2)
}

func (m mgbeMac) initChannel(d *Dma, ch uint32) error {
	r := &mgbeRegs
	nchans := uint32(len(d.cfg.DmaChans))
	initChannelCommon(d, ch, !m.t26x)

	var pdma uint32
	if m.t26x {
		p, err := d.VdmaToPdma(ch)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		pdma = p
	}

	reg := r.at(ch, r.txCtrl)
	val := d.readl(reg)
	val |= mgbeTxCtrlOSP | mgbeTxCtrlTSE
	if m.t26x {
		val &^= mgbeTxVdmaTCMask
		val |= (pdma << mgbeTxVdmaTCShift) & mgbeTxVdmaTCMask
	} else {
		val |= mgbeTxPBLRecommend
	}
	d.writel(reg, val)

	reg = r.at(ch, r.rxCtrl)
	val = d.readl(reg)
	val = programRxBufSize(val, d.cfg.RxBufLen, mgbeRBSZShift, mgbeRBSZMask)
	if m.t26x {
		val &^= mgbeRxVdmaTCMask
		val |= (pdma << mgbeRxVdmaTCShift) & mgbeRxVdmaTCMask
	} else {
		val |= mgbeRxPBL(nchans) << mgbeRxPBLShift
	}
	d.writel(reg, val)

	rwt := riwtToRwt(d.cfg.RxRIWT, mgbeAxiClkFreq, mgbeRwtu, mgbeRwtMask)
	programRIWT(d, ch, rwt, mgbeRwtMask, mgbeRwtu2048Cycle, mgbeRwtuMask)

	if !m.t26x {
		reg = r.at(ch, mgbeDmaChTxCntrl2)
		val = d.readl(reg)
		val |= (mgbeOrrqRecommended / nchans) << mgbeOrrqShift
		d.writel(reg, val)

		owrq := uint32(mgbeOwrqMChan) / nchans
		if nchans == 1 {
			owrq = mgbeOwrqSChan
		}
		reg = r.at(ch, mgbeDmaChRxCntrl2)
		val = d.readl(reg)
		val |= owrq << mgbeOwrqShift
		d.writel(reg, val)
	}
	return nil
}

// Slot scheduling only exists on the legacy MAC.
func (mgbeMac) configSlot(*Dma, uint32, bool, uint32) {}

func (m mgbeMac) setRxRIIT(d *Dma, ch uint32, itw uint32) {
	if !m.t26x {
		return
	}
	reg := mgbeRegs.at(ch, mgbeRegs.rxWdt)
	val := d.readl(reg)
	val &^= mgbeItwMask
	val |= itw << mgbeItwShift
	d.writel(reg, val)
}

func (mgbeMac) updateRxErrStats(desc Desc, st *PktErrStats) {
	if desc[3]&Rdes3ELLTCRC == Rdes3ELLTCRC {
		st.RxCrcError = updateStatsCounter(st.RxCrcError, 1)
	}

	frpsm := desc[2]&Rdes2FRPSM != 0
	frpsl := desc[3]&Rdes3FRPSL != 0
	switch {
	case !frpsm && !frpsl:
		st.FrpParsed = updateStatsCounter(st.FrpParsed, 1)
	case !frpsm && frpsl:
		st.FrpDropped = updateStatsCounter(st.FrpDropped, 1)
	case frpsm && !frpsl:
		st.FrpErr = updateStatsCounter(st.FrpErr, 1)
	default:
		st.FrpIncomplete = updateStatsCounter(st.FrpIncomplete, 1)
	}
}

func (mgbeMac) getRxVlan(desc Desc, cx *RxPktContext) {
	if desc[3]&Rdes3ELLTCVLAN == Rdes3ELLTCVLAN {
		cx.Flags |= PktCxVLAN
		cx.VlanTag = desc[0] & Rdes0OVT
	}
}

func (mgbeMac) getRxCsum(desc Desc, cx *RxPktContext) {
	if desc[3]&Rdes3ES != 0 {
		switch desc[3] & Rdes3ELLT {
		case Rdes3ELLTCsumErr:
			cx.RxCsum |= ChecksumTCPUDPBad
		case Rdes3ELLTIPHE:
			cx.RxCsum |= ChecksumIPv4Bad
		}
		return
	}

	pt := desc[3] & Rdes3PTMask
	if pt == 0 {
		return
	}
	// hardware validated the checksums
	cx.RxCsum |= ChecksumUnnecessary | ChecksumIPv4
	switch pt {
	case Rdes3PTIPv4TCP:
		cx.RxCsum |= ChecksumTCPv4
	case Rdes3PTIPv4UDP:
		cx.RxCsum |= ChecksumUDPv4
	case Rdes3PTIPv6TCP:
		cx.RxCsum |= ChecksumTCPv6
	case Rdes3PTIPv6UDP:
		cx.RxCsum |= ChecksumUDPv6
	}
}

func (mgbeMac) getRxHash(desc Desc, cx *RxPktContext) {
	if desc[3]&Rdes3RSV == 0 {
		return
	}
	switch desc[3] & Rdes3L34T {
	case Rdes3L34TIPv4TCP, Rdes3L34TIPv4UDP, Rdes3L34TIPv6TCP, Rdes3L34TIPv6UDP:
		cx.RxHashType = RxPktHashTypeL4
	default:
		cx.RxHashType = RxPktHashTypeL3
	}
	cx.RxHash = desc[1]
	cx.Flags |= PktCxRSS
}

func (mgbeMac) rxHasContext(desc Desc) bool {
	return desc[3]&Rdes3CDA != 0
}

func (mgbeMac) rxContextState(ctx Desc) ctxState {
	switch {
	case ctx[3]&(Rdes3OWN|Rdes3CTXT|Rdes3TSA|Rdes3TSD) == Rdes3CTXT|Rdes3TSA:
		return ctxReady
	case ctx[3]&(Rdes3OWN|Rdes3CTXT|Rdes3TSD) == Rdes3CTXT|Rdes3TSD:
		return ctxDropped
	}
	return ctxPending
}

func (mgbeMac) rxDataReady(*Dma, *RxRing, uint32) bool {
	return true
}

// rxCompleted derives the number of written-back descriptors from the
// write ring offset the T26x DMA publishes.
func (m mgbeMac) rxCompleted(d *Dma, ring *RxRing, ch uint32) (uint32, bool) {
	if !m.t26x {
		return 0, false
	}
	wr := (d.readl(mgbeRegs.at(ch, mgbeDmaChRxDescWrRngOff)) >> 16) & (ring.Size - 1)
	return ringDistance(ring.CurRxIdx, wr, ring.Size) + 1, true
}
