package ethdma

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Dma is one DMA engine instance, acquired from the process-wide pool.
// A Dma drives every configured channel of one MAC block.
//
// Calls on one channel and direction must be serialized by the caller;
// different channels may be driven from different goroutines.
type Dma struct {
	slot int
	gen  uint64

	cfg      *DmaConfig
	ops      macOps
	initDone bool

	macVer      uint32
	coreVer     uint32
	numMaxChans uint32

	// pktID is the PTP packet id counter, shared by all channels.
	pktID atomic.Uint32

	stats    statsBlock
	logger   *zap.Logger
	wmb      func()
	udelay   func(usec uint64)
	stripped bool
}

// dmaPool is the fixed-capacity instance table.
var dmaPool struct {
	mu    sync.Mutex
	gen   uint64
	slots [MaxDmaInstances]*Dma
}

// Acquire takes a free instance from the pool.
//
// Returns:
// - The instance, with no configuration attached.
// - ErrPoolExhausted if all MaxDmaInstances slots are live.
func Acquire() (*Dma, error) {
	dmaPool.mu.Lock()
	defer dmaPool.mu.Unlock()

	for i := range dmaPool.slots {
		if dmaPool.slots[i] != nil {
			continue
		}
		dmaPool.gen++
		d := &Dma{slot: i, gen: dmaPool.gen, logger: logger}
		dmaPool.slots[i] = d
		return d, nil
	}
	logger.Error("DMA instance pool exhausted", zap.Int("capacity", MaxDmaInstances))
	return nil, ErrPoolExhausted
}

// Release returns d to the pool. A handle that was already released, or that
// was never acquired, is rejected with ErrStaleHandle.
func Release(d *Dma) error {
	if d == nil {
		return unix.EFAULT
	}
	dmaPool.mu.Lock()
	defer dmaPool.mu.Unlock()

	if d.slot < 0 || d.slot >= MaxDmaInstances || dmaPool.slots[d.slot] != d {
		return ErrStaleHandle
	}
	dmaPool.slots[d.slot] = nil
	d.initDone = false
	d.slot = -1
	return nil
}

// live reports whether d is the current holder of its pool slot.
func (d *Dma) live() bool {
	dmaPool.mu.Lock()
	defer dmaPool.mu.Unlock()
	return d.slot >= 0 && d.slot < MaxDmaInstances && dmaPool.slots[d.slot] == d
}

func (d *Dma) readl(off uint32) uint32 {
	return d.cfg.Base.Read32(off)
}

func (d *Dma) writel(off, val uint32) {
	d.cfg.Base.Write32(off, val)
}

func (d *Dma) setBits(off, bits uint32) {
	d.writel(off, d.readl(off)|bits)
}

func (d *Dma) clearBits(off, bits uint32) {
	d.writel(off, d.readl(off)&^bits)
}

// barrierSeq only exists so that the store barrier is a sequentially consistent atomic.
var barrierSeq atomic.Uint64

func storeBarrier() {
	barrierSeq.Add(1)
}

func busyWait(usec uint64) {
	deadline := time.Now().Add(time.Duration(usec) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// Config returns the configuration d was initialized with.
func (d *Dma) Config() *DmaConfig {
	return d.cfg
}

// MacVersion returns the MAC version read during InitHardware.
func (d *Dma) MacVersion() uint32 {
	return d.macVer
}

// MaxChans returns the channel limit of the MAC version found during InitHardware.
func (d *Dma) MaxChans() uint32 {
	return d.numMaxChans
}

func (d *Dma) validateOsdOps(ops *OsdOps) error {
	switch {
	case ops.TransmitComplete == nil:
		return fmt.Errorf("%w: TransmitComplete callback not set", ErrInvalidArg)
	case ops.ReceivePacket == nil:
		return fmt.Errorf("%w: ReceivePacket callback not set", ErrInvalidArg)
	case ops.Udelay == nil:
		return fmt.Errorf("%w: Udelay callback not set", ErrInvalidArg)
	}
	return nil
}

// validateChans checks the channel list against the limit of the MAC version.
func (d *Dma) validateChans(cfg *DmaConfig) error {
	n := uint32(len(cfg.DmaChans))
	if n == 0 || n > d.numMaxChans {
		d.logger.Error("invalid number of DMA channels", zap.Uint32("chans", n), zap.Uint32("max", d.numMaxChans))
		return fmt.Errorf("%w: %d DMA channels, max %d", ErrInvalidArg, n, d.numMaxChans)
	}
	for _, ch := range cfg.DmaChans {
		if ch >= d.numMaxChans {
			d.logger.Error("invalid DMA channel number", zap.Uint32("chan", ch))
			return fmt.Errorf("%w: DMA channel %d", ErrInvalidArg, ch)
		}
	}
	return nil
}

// validateChan checks a channel argument of a runtime operation.
func (d *Dma) validateChan(ch uint32) error {
	if !d.initDone {
		return ErrNotInitialized
	}
	if ch >= d.numMaxChans {
		d.logger.Error("invalid DMA channel number", zap.Uint32("chan", ch))
		return fmt.Errorf("%w: DMA channel %d", ErrInvalidArg, ch)
	}
	return nil
}

func (d *Dma) validateRings(cfg *DmaConfig) error {
	for _, ch := range cfg.DmaChans {
		tx, rx := cfg.TxRings[ch], cfg.RxRings[ch]
		if tx == nil || rx == nil {
			d.logger.Error("ring not attached", zap.Uint32("chan", ch))
			return fmt.Errorf("%w: channel %d has no ring", unix.EFAULT, ch)
		}
		if tx.Size != cfg.TxRingSize || uint32(len(tx.Swcx)) < tx.Size {
			return fmt.Errorf("%w: channel %d Tx ring holds %d slots, configured %d", ErrRingSize, ch, tx.Size, cfg.TxRingSize)
		}
		if rx.Size != cfg.RxRingSize || uint32(len(rx.Swcx)) < rx.Size {
			return fmt.Errorf("%w: channel %d Rx ring holds %d slots, configured %d", ErrRingSize, ch, rx.Size, cfg.RxRingSize)
		}
	}
	return nil
}

// InitHardware validates cfg, programs every configured channel and starts its DMA.
//
// Parameters:
// - cfg: configuration with Base, rings and callbacks attached. d keeps a reference to it.
//
// Returns:
// - nil on success.
// - ErrStaleHandle, ErrAlreadyInitialized, ErrRingSize, ErrMacVersion, or an error
//   wrapping ErrInvalidArg / unix.EFAULT for malformed arguments.
//
// A failure leaves whatever was already programmed in place. The caller is
// expected to call DeinitHardware.
//
// Steps:
// 1. Validate the handle, register window, MAC type and callbacks.
// 2. Validate ring sizes against the MAC generation.
// 3. Read MAC_VERSION and derive the channel limit.
// 4. Validate the channel list and ring attachment.
// 5. Initialize Tx and Rx descriptor rings and program ring registers.
// 6. Per channel: program the DMA channel, enable interrupts, start DMA.
// 7. Default the PTP mode to slave two-step.
func (d *Dma) InitHardware(cfg *DmaConfig) error {
	var err error

	if d == nil || cfg == nil {
		return unix.EFAULT
	}
	if !d.live() {
		return ErrStaleHandle
	}
	if d.initDone {
		return ErrAlreadyInitialized
	}
	if cfg.Ops.Logger != nil {
		d.logger = cfg.Ops.Logger
	}
	if cfg.Base == nil {
		d.logger.Error("register window not set")
		return fmt.Errorf("%w: nil register window", unix.EFAULT)
	}
	if cfg.MacType >= macTypeMax {
		d.logger.Error("invalid MAC HW type", zap.Uint32("mac", uint32(cfg.MacType)))
		return fmt.Errorf("%w: MAC type %d", ErrInvalidArg, cfg.MacType)
	}
	if !cfg.Stripped {
		if err = d.validateOsdOps(&cfg.Ops); err != nil {
			d.logger.Error("callback validation failed", zap.Error(err))
			return err
		}
	}
	if err = validateRingSize(cfg.MacType, cfg.TxRingSize); err != nil {
		d.logger.Error("invalid Tx ring size", zap.Uint32("size", cfg.TxRingSize))
		return err
	}
	if err = validateRingSize(cfg.MacType, cfg.RxRingSize); err != nil {
		d.logger.Error("invalid Rx ring size", zap.Uint32("size", cfg.RxRingSize))
		return err
	}
	if cfg.RxBufLen <= rxBufHeadroom {
		d.logger.Error("invalid Rx buffer length", zap.Uint32("len", cfg.RxBufLen))
		return fmt.Errorf("%w: Rx buffer length %d", ErrInvalidArg, cfg.RxBufLen)
	}

	d.cfg = cfg
	d.ops = newMacOps(cfg.MacType)
	d.stripped = cfg.Stripped
	d.wmb = storeBarrier
	d.udelay = cfg.Ops.Udelay
	if d.udelay == nil {
		d.udelay = busyWait
	}

	d.macVer = d.readl(macVersionReg) & macVersionMask
	maxChans, coreVer, ok := macVersionChans(cfg.MacType, d.macVer, cfg.Stripped)
	if !ok {
		d.logger.Error("invalid MAC version", zap.Uint32("version", d.macVer))
		return fmt.Errorf("%w: 0x%x on %s", ErrMacVersion, d.macVer, cfg.MacType)
	}
	d.numMaxChans, d.coreVer = maxChans, coreVer

	if err = d.validateChans(cfg); err != nil {
		return err
	}
	if err = d.validateRings(cfg); err != nil {
		return err
	}

	for _, ch := range cfg.DmaChans {
		d.initTxRing(ch, cfg.TxRings[ch])
	}
	for _, ch := range cfg.DmaChans {
		if err = d.initRxRing(ch, cfg.RxRings[ch]); err != nil {
			return err
		}
	}

	// Runtime channel checks need initDone from here on.
	d.initDone = true
	for _, ch := range cfg.DmaChans {
		if err = d.initDma(ch); err != nil {
			d.initDone = false
			return err
		}
	}

	if cfg.PtpFlag == 0 {
		cfg.PtpFlag = PtpSyncSlave | PtpSyncTwoStep
	}
	d.logger.Debug("DMA initialized",
		zap.Stringer("mac", cfg.MacType),
		zap.Uint32("version", d.macVer),
		zap.Uint32s("chans", cfg.DmaChans))
	return nil
}

func (d *Dma) initDma(ch uint32) error {
	if err := d.ops.initChannel(d, ch); err != nil {
		d.logger.Error("DMA channel init failed", zap.Uint32("chan", ch), zap.Error(err))
		return err
	}
	if err := d.SetInterrupt(ch, DmaChTxIntr, true); err != nil {
		d.logger.Error("enable Tx interrupt failed", zap.Uint32("chan", ch))
		return err
	}
	if err := d.SetInterrupt(ch, DmaChRxIntr, true); err != nil {
		d.logger.Error("enable Rx interrupt failed", zap.Uint32("chan", ch))
		return err
	}
	d.startDma(ch)
	return nil
}

func (d *Dma) startDma(ch uint32) {
	r := d.ops.regs()
	d.setBits(r.at(ch, r.txCtrl), dmaChStart)

	reg := r.at(ch, r.rxCtrl)
	val := d.readl(reg)
	val |= dmaChStart
	val &^= dmaChRxCtrlRPF
	d.writel(reg, val)
}

func (d *Dma) stopDma(ch uint32) {
	r := d.ops.regs()
	d.clearBits(r.at(ch, r.txCtrl), dmaChStart)

	reg := r.at(ch, r.rxCtrl)
	val := d.readl(reg)
	val &^= dmaChStart
	val |= dmaChRxCtrlRPF
	d.writel(reg, val)
}

// DeinitHardware stops Tx and Rx DMA on every configured channel.
// Descriptor memory is left untouched.
func (d *Dma) DeinitHardware() error {
	if d == nil {
		return unix.EFAULT
	}
	if !d.live() {
		return ErrStaleHandle
	}
	if !d.initDone || d.cfg == nil || d.cfg.Base == nil {
		return ErrNotInitialized
	}
	if err := d.validateChans(d.cfg); err != nil {
		return err
	}
	for _, ch := range d.cfg.DmaChans {
		d.stopDma(ch)
	}
	d.initDone = false
	return nil
}

// VdmaToPdma returns the physical DMA channel serving virtual channel vdma.
func (d *Dma) VdmaToPdma(vdma uint32) (uint32, error) {
	for _, m := range d.cfg.PdmaMap {
		for _, v := range m.Vdmas {
			if v == vdma {
				return m.Pdma, nil
			}
		}
	}
	d.logger.Error("VDMA to PDMA mapping not found", zap.Uint32("vdma", vdma))
	return 0, fmt.Errorf("%w: no PDMA for VDMA %d", ErrInvalidArg, vdma)
}

// RxBufLenForMtu returns the Rx buffer length needed for frames of the given MTU:
// Ethernet and VLAN headers plus the alignment headroom, rounded up to the bus width.
func RxBufLenForMtu(mtu uint32) (uint32, error) {
	if mtu > maxMtuSize {
		return 0, fmt.Errorf("%w: MTU %d above %d", ErrInvalidArg, mtu, maxMtuSize)
	}
	l := mtu + ethHdrLen + vlanHdrLen + rxBufHeadroom
	return (l + axiBusWidth - 1) &^ (axiBusWidth - 1), nil
}
