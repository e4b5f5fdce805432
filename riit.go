package ethdma

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// IoctlCmd selects an Ioctl operation.
type IoctlCmd uint32

const (
	// IoctlRxRIITConfig applies the Rx interrupt idle time of the link speed in Arg.
	IoctlRxRIITConfig IoctlCmd = 4
)

// IoctlData carries the command and argument of an Ioctl call.
type IoctlData struct {
	Cmd IoctlCmd
	Arg uint32
}

// riitToItw converts an idle time in nanoseconds into ITW units.
func riitToItw(riit uint32) (uint32, bool) {
	freqMHz := uint32(mgbeAxiClkFreq / 1000000)
	if riit > math.MaxUint32/freqMHz {
		return 0, false
	}
	return (riit * freqMHz / (mgbeItcu * 1000)) & mgbeItwMax, true
}

// lookupRIIT returns the idle time configured for speed, or the 1us default.
func (d *Dma) lookupRIIT(speed uint32) uint32 {
	for _, e := range d.cfg.RxRIIT {
		if e.Speed == speed {
			return e.RIIT
		}
	}
	d.logger.Warn("no riit for link speed, using default 1us", zap.Uint32("speed", speed))
	return mgbeRiitDefault
}

// SetRxRIIT programs the Rx interrupt idle time of every configured channel
// for the given link speed.
//
// The value comes from the RxRIIT table; an unknown speed falls back to 1us.
// A value above the Rx watchdog time is logged and applied anyway.
// Registers are only written on T26x with UseRIIT set.
func (d *Dma) SetRxRIIT(speed uint32) error {
	if !d.initDone {
		return ErrNotInitialized
	}
	riit := d.lookupRIIT(speed)
	if uint64(riit) > uint64(d.cfg.RxRIWT)*1000 {
		d.logger.Warn("riit above rx watchdog time", zap.Uint32("riit", riit), zap.Uint32("riwt", d.cfg.RxRIWT))
	}

	itw, ok := riitToItw(riit)
	if !ok {
		d.logger.Error("invalid riit", zap.Uint32("riit", riit))
		return nil
	}
	if !d.cfg.UseRIIT {
		return nil
	}
	for _, ch := range d.cfg.DmaChans {
		d.ops.setRxRIIT(d, ch, itw)
	}
	return nil
}

// Ioctl runs a runtime control command.
func (d *Dma) Ioctl(data *IoctlData) error {
	if data == nil {
		return fmt.Errorf("%w: nil ioctl data", ErrInvalidArg)
	}
	if !d.live() {
		return ErrStaleHandle
	}
	switch data.Cmd {
	case IoctlRxRIITConfig:
		return d.SetRxRIIT(data.Arg)
	}
	d.logger.Error("invalid ioctl command", zap.Uint32("cmd", uint32(data.Cmd)))
	return fmt.Errorf("%w: ioctl command %d", ErrInvalidArg, data.Cmd)
}
