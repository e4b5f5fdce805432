package ethdma

import (
	"go.uber.org/zap"
)

// getRxHwstamp polls the context descriptor at ctxIdx for the receive
// timestamp of desc.
//
// Returns:
// - nil once the context slot was handled: the timestamp was read into cx,
//   hardware dropped it, or hardware wrote an invalid value.
// - ErrNoContextDesc if desc announces no context descriptor.
// - ErrTimestampTimeout if the context slot stayed pending for all retries.
func (d *Dma) getRxHwstamp(ring *RxRing, desc Desc, ctxIdx uint32, cx *RxPktContext) error {
	if !d.ops.rxHasContext(desc) {
		return ErrNoContextDesc
	}

	var ctx Desc
	for retry := 0; retry < ptpRetryCount; retry++ {
		ctx = ring.Load(ctxIdx)
		switch d.ops.rxContextState(ctx) {
		case ctxReady:
			if ctx[0] == invalidValue && ctx[1] == invalidValue {
				return nil
			}
			ns := uint64(ctx[0]) + nsecPerSec*uint64(ctx[1])
			if ns < uint64(ctx[0]) {
				return nil
			}
			cx.NS = ns
			cx.Flags |= PktCxPTP
			return nil
		case ctxDropped:
			return nil
		}
		d.udelay(delay1us)
	}

	d.logger.Error("context descriptor not released by hardware",
		zap.Uint32("idx", ctxIdx), zap.Uint32("rdes3", ctx[3]))
	return ErrTimestampTimeout
}
