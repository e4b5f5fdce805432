package ethdma

import (
	"fmt"

	"go.uber.org/zap"
)

// readSystimeNS reads the MAC system time. The nanoseconds register is read
// on both sides of the seconds register; a rollover in between makes the
// seconds register be read again.
func (d *Dma) readSystimeNS() uint64 {
	r := d.ops.regs()

	ns1 := uint64(d.readl(r.stnsr) & macSTNSRTSSSMask)
	sec := d.readl(r.stsr)
	ns2 := uint64(d.readl(r.stnsr) & macSTNSRTSSSMask)

	if ns1 >= ns2 {
		sec = d.readl(r.stsr)
		return ns2 + (uint64(sec)*nsecPerSec)&0x7FFFFFFFFFFFFFFF
	}
	return ns1 + (uint64(sec)*nsecPerSec)&0x7FFFFFFFFFFFFFFF
}

// ReadSystime returns the MAC system time as seconds and nanoseconds.
func (d *Dma) ReadSystime() (sec, nsec uint32, err error) {
	if !d.initDone {
		return 0, 0, ErrNotInitialized
	}
	ns := d.readSystimeNS()
	return uint32(ns / nsecPerSec), uint32(ns % nsecPerSec), nil
}

// slotInterval returns the slot interval configured for ch.
func (d *Dma) slotInterval(ch uint32) (uint32, bool) {
	for _, s := range d.cfg.Slots {
		if s.Chan == ch {
			return s.Interval, true
		}
	}
	return 0, false
}

// ConfigSlotFunction enables or disables slot based Tx scheduling on every
// channel listed in Slots. Channel 0 is never slotted.
//
// Returns:
// - nil on success.
// - An error wrapping ErrInvalidArg for an interval above 4095.
func (d *Dma) ConfigSlotFunction(set bool) error {
	if !d.initDone {
		return ErrNotInitialized
	}
	for _, ch := range d.cfg.DmaChans {
		if ch == 0 || ch >= d.numMaxChans {
			continue
		}
		interval, ok := d.slotInterval(ch)
		if !ok {
			continue
		}
		if interval > slotIntvlMax {
			d.logger.Error("invalid slot interval", zap.Uint32("chan", ch), zap.Uint32("interval", interval))
			return fmt.Errorf("%w: slot interval %d", ErrInvalidArg, interval)
		}
		ring := d.cfg.TxRings[ch]
		if ring == nil {
			d.logger.Error("Tx ring not attached", zap.Uint32("chan", ch))
			return fmt.Errorf("%w: channel %d has no Tx ring", ErrInvalidArg, ch)
		}
		ring.SlotCheck = set
		d.ops.configSlot(d, ch, set, interval)
	}
	return nil
}
