package ethdma

// eqosMac drives the legacy EQOS MAC.
type eqosMac struct{}

var eqosRegs = chanRegs{
	base:     eqosDmaChBase,
	ctrl:     eqosDmaChCtrl,
	txCtrl:   eqosDmaChTxCtrl,
	rxCtrl:   eqosDmaChRxCtrl,
	tdlh:     eqosDmaChTDLH,
	tdla:     eqosDmaChTDLA,
	rdlh:     eqosDmaChRDLH,
	rdla:     eqosDmaChRDLA,
	tdtp:     eqosDmaChTDTP,
	rdtp:     eqosDmaChRDTP,
	tdrl:     eqosDmaChTDRL,
	rdrl:     eqosDmaChRDRL,
	intrEna:  eqosDmaChIntrEna,
	rxWdt:    eqosDmaChRxWdt,
	status:   eqosDmaChStatus,
	stsr:     eqosMacSTSR,
	stnsr:    eqosMacSTNSR,
	chanMask: 0x7,
}

func (eqosMac) macType() MacType        { return MacEQOS }
func (eqosMac) regs() *chanRegs         { return &eqosRegs }
func (eqosMac) ringLenMask() uint32     { return eqosRingLenMask }
func (eqosMac) defaultRingSize() uint32 { return EqosDefaultRingSize }
func (eqosMac) globalStatusCount() int  { return 1 }
func (eqosMac) rxBufValid() uint32      { return Rdes3B1V }
func (eqosMac) rxErrBits() uint32       { return Rdes3ESBits }

func (eqosMac) initChannel(d *Dma, ch uint32) error {
	r := &eqosRegs
	initChannelCommon(d, ch, true)

	reg := r.at(ch, r.txCtrl)
	val := d.readl(reg)
	val |= eqosTxCtrlOSF | eqosTxCtrlTSE | eqosTxPBLRecommend
	d.writel(reg, val)

	reg = r.at(ch, r.rxCtrl)
	val = d.readl(reg)
	val = programRxBufSize(val, d.cfg.RxBufLen, eqosRBSZShift, eqosRBSZMask)
	val |= eqosRxPBLRecommend
	d.writel(reg, val)

	rwt := riwtToRwt(d.cfg.RxRIWT, eqosAxiClkFreq, eqosRwtu, eqosRwtMask)
	programRIWT(d, ch, rwt, eqosRwtMask, eqosRwtu512Cycle, eqosRwtuMask)
	return nil
}

func (eqosMac) configSlot(d *Dma, ch uint32, set bool, interval uint32) {
	reg := eqosRegs.at(ch, eqosDmaChSlotCtrl)
	val := d.readl(reg)
	if set {
		val &^= eqosSlotSIVMask << eqosSlotSIVShift
		val |= (interval & eqosSlotSIVMask) << eqosSlotSIVShift
		val |= eqosSlotESC
	} else {
		val &^= eqosSlotESC
	}
	d.writel(reg, val)
}

// RIIT is a T26x feature.
func (eqosMac) setRxRIIT(*Dma, uint32, uint32) {}

func (eqosMac) updateRxErrStats(desc Desc, st *PktErrStats) {
	if desc[3]&Rdes3ErrCRC != 0 {
		st.RxCrcError = updateStatsCounter(st.RxCrcError, 1)
	}
	if desc[3]&Rdes3ErrRE != 0 {
		st.RxFrameError = updateStatsCounter(st.RxFrameError, 1)
	}
}

func (eqosMac) getRxVlan(desc Desc, cx *RxPktContext) {
	if desc[3]&Rdes3RS0V == 0 {
		return
	}
	if lt := desc[3] & Rdes3LT; lt == Rdes3LTVT || lt == Rdes3LTDVT {
		cx.Flags |= PktCxVLAN
		cx.VlanTag = desc[0] & Rdes0OVT
	}
}

func (eqosMac) getRxCsum(desc Desc, cx *RxPktContext) {
	if desc[3]&Rdes3RS1V == 0 {
		return
	}
	rdes1 := desc[1]
	if rdes1&(Rdes1IPCE|Rdes1IPCB|Rdes1IPHE) == 0 {
		cx.RxCsum |= ChecksumUnnecessary
	}
	// bypassed by the checksum engine
	if rdes1&Rdes1IPCB != 0 {
		return
	}

	cx.RxCsum |= ChecksumIPv4
	if rdes1&Rdes1IPHE != 0 {
		cx.RxCsum |= ChecksumIPv4Bad
	}

	pt := rdes1 & Rdes1PTMask
	switch {
	case rdes1&Rdes1IPV4 != 0:
		if pt == Rdes1PTUDP {
			cx.RxCsum |= ChecksumUDPv4
		} else if pt == Rdes1PTTCP {
			cx.RxCsum |= ChecksumTCPv4
		}
	case rdes1&Rdes1IPV6 != 0:
		if pt == Rdes1PTUDP {
			cx.RxCsum |= ChecksumUDPv6
		} else if pt == Rdes1PTTCP {
			cx.RxCsum |= ChecksumTCPv6
		}
	}

	if rdes1&Rdes1IPCE != 0 {
		cx.RxCsum |= ChecksumTCPUDPBad
	}
}

// The legacy MAC does not report a receive hash.
func (eqosMac) getRxHash(Desc, *RxPktContext) {}

func (eqosMac) rxHasContext(desc Desc) bool {
	return desc[3]&Rdes3RS1V != 0 && desc[1]&Rdes1TSA != 0 && desc[1]&Rdes1TD == 0
}

func (eqosMac) rxContextState(ctx Desc) ctxState {
	if ctx[3]&Rdes3OWN == 0 && ctx[3]&Rdes3CTXT != 0 {
		return ctxReady
	}
	return ctxPending
}

// eqosRxDmaBusy reads the receive process state of ch from the DMA debug status registers.
func eqosRxDmaBusy(d *Dma, ch uint32) bool {
	var reg, shift uint32
	switch {
	case ch <= 2:
		reg, shift = eqosDmaDebugStatus0, 8+8*ch
	case ch <= 6:
		reg, shift = eqosDmaDebugStatus1, 8*(ch-3)
	default:
		reg, shift = eqosDmaDebugStatus2, 0
	}
	return (d.readl(reg)>>shift)&eqosRPSxMask >= eqosRPSxRunCRD
}

func (eqosMac) rxDataReady(d *Dma, ring *RxRing, ch uint32) bool {
	card := d.readl(eqosRegs.at(ch, eqosDmaChCARD))
	if card != lower32(ring.descPhys(ring.CurRxIdx)) {
		return true
	}
	// DMA still points at this descriptor: only trust it once the receive process went idle
	return !eqosRxDmaBusy(d, ch)
}

func (eqosMac) rxCompleted(*Dma, *RxRing, uint32) (uint32, bool) {
	return 0, false
}
