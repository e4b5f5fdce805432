package ethdma

// chanRegs holds the per-channel DMA register offsets of one MAC generation.
// Channel N lives at base + 0x80*N.
type chanRegs struct {
	base     uint32
	ctrl     uint32
	txCtrl   uint32
	rxCtrl   uint32
	tdlh     uint32
	tdla     uint32
	rdlh     uint32
	rdla     uint32
	tdtp     uint32
	rdtp     uint32
	tdrl     uint32
	rdrl     uint32
	intrEna  uint32
	rxWdt    uint32
	status   uint32
	stsr     uint32
	stnsr    uint32
	chanMask uint32
}

func (r *chanRegs) at(ch, off uint32) uint32 {
	return r.base + 0x80*(ch&r.chanMask) + off
}

// ctxState is the state of an Rx context descriptor being polled for a timestamp.
type ctxState int

const (
	ctxPending ctxState = iota
	ctxReady
	ctxDropped
)

// macOps is implemented once per MAC generation and selected at init.
type macOps interface {
	macType() MacType
	regs() *chanRegs
	ringLenMask() uint32
	defaultRingSize() uint32

	// initChannel programs PBL, buffer size, watchdog and request limits of one channel.
	initChannel(d *Dma, ch uint32) error
	configSlot(d *Dma, ch uint32, set bool, interval uint32)
	setRxRIIT(d *Dma, ch uint32, itw uint32)
	globalStatusCount() int

	// rxBufValid is OR'ed into rdes3 on refill.
	rxBufValid() uint32
	rxErrBits() uint32
	updateRxErrStats(desc Desc, st *PktErrStats)
	getRxVlan(desc Desc, cx *RxPktContext)
	getRxCsum(desc Desc, cx *RxPktContext)
	getRxHash(desc Desc, cx *RxPktContext)
	// rxHasContext tells whether a context descriptor follows desc.
	rxHasContext(desc Desc) bool
	rxContextState(ctx Desc) ctxState
	// rxDataReady reports false while the DMA is still writing the current descriptor.
	rxDataReady(d *Dma, ring *RxRing, ch uint32) bool
	// rxCompleted returns the hardware completed descriptor count when the MAC reports one.
	rxCompleted(d *Dma, ring *RxRing, ch uint32) (uint32, bool)
}

func newMacOps(mac MacType) macOps {
	switch mac {
	case MacEQOS:
		return eqosMac{}
	case MacMGBE:
		return mgbeMac{}
	case MacMGBET26x:
		return mgbeMac{t26x: true}
	}
	return nil
}

// macVersionChans maps the MAC version register onto the channel limit of the instance.
func macVersionChans(mac MacType, ver uint32, stripped bool) (maxChans uint32, coreVer uint32, ok bool) {
	maxDmaChan := [macTypeMax]uint32{EqosMaxChans, MgbeT23xMaxChans, MgbeMaxChans}

	switch ver {
	case EqosMac500:
		if stripped {
			return 0, 0, false
		}
		return EqosXPMaxChans, macCoreEqos, true
	case EqosMac530, EqosMac540:
		return EqosMaxChans, macCoreEqos530, true
	case MgbeMac310, MgbeMac320, MgbeMac420:
		return maxDmaChan[mac%macTypeMax], macCoreMgbe, true
	case MgbeMac400:
		if stripped {
			return 0, 0, false
		}
		return maxDmaChan[mac%macTypeMax], macCoreMgbe, true
	}
	return 0, 0, false
}

// validPBL rounds a burst length down to a value the DMA accepts.
func validPBL(pbl uint32) uint32 {
	switch {
	case pbl >= 32:
		return 32
	case pbl >= 16:
		return 16
	case pbl >= 8:
		return 8
	case pbl >= 4:
		return 4
	case pbl >= 2:
		return 2
	}
	return 1
}

// riwtToRwt converts a watchdog time in microseconds into RWT units.
func riwtToRwt(riwt, axiClk, rwtu, mask uint32) uint32 {
	riwt &= 0xFFF
	return (riwt * (axiClk / 1000000) / rwtu) & mask
}

// Shared parts of channel programming.
func initChannelCommon(d *Dma, ch uint32, pblx8 bool) {
	r := d.ops.regs()
	d.setBits(r.at(ch, r.intrEna), dmaChIntrTIE|dmaChIntrRIE)
	if pblx8 {
		d.setBits(r.at(ch, r.ctrl), dmaChCtrlPBLx8)
	}
}

func programRxBufSize(val, rxBufLen uint32, shift, mask uint32) uint32 {
	val &^= mask
	val |= ((rxBufLen - rxBufHeadroom) << shift) & mask
	return val
}

func programRIWT(d *Dma, ch uint32, rwt, rwtMask, rwtu, rwtuMask uint32) {
	if !d.cfg.UseRIWT {
		return
	}
	r := d.ops.regs()
	reg := r.at(ch, r.rxWdt)
	val := d.readl(reg)
	val &^= rwtMask
	val |= rwt
	d.writel(reg, val)

	val = d.readl(reg)
	val &^= rwtuMask
	val |= rwtu
	d.writel(reg, val)
}
