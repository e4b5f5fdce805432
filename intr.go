package ethdma

import (
	"fmt"

	"go.uber.org/zap"
)

func virtIntrCtrl(ch uint32) uint32 {
	return virtIntrChCtrl + virtIntrChStride*ch
}

func virtIntrStatus(ch uint32) uint32 {
	return virtIntrChStatus + virtIntrChStride*ch
}

// intrRetry sets or clears bit in the register at ctrl until a read back
// returns what was written, at most intrRetryCount times.
func (d *Dma) intrRetry(ctrl, bit uint32, enable bool) (int, error) {
	for i := 1; i <= intrRetryCount; i++ {
		want := d.readl(ctrl)
		if enable {
			want |= bit
		} else {
			want &^= bit
		}
		d.writel(ctrl, want)
		if d.readl(ctrl) == want {
			return i, nil
		}
	}
	return intrRetryCount, ErrIntrNotApplied
}

// SetInterrupt enables or disables the Tx (DmaChTxIntr) or Rx (DmaChRxIntr)
// interrupt of channel ch.
//
// Disabling first acknowledges a pending status of that direction, so the
// interrupt does not fire again as soon as it is re-enabled.
//
// Returns:
// - nil once a read back of the control register shows the new value.
// - ErrIntrNotApplied if it did not after 10 attempts.
func (d *Dma) SetInterrupt(ch uint32, dir uint32, enable bool) error {
	if err := d.validateChan(ch); err != nil {
		return err
	}
	if dir != DmaChTxIntr && dir != DmaChRxIntr {
		return fmt.Errorf("%w: interrupt direction %d", ErrInvalidArg, dir)
	}

	bit := uint32(1) << dir
	if !enable {
		status := d.readl(virtIntrStatus(ch))
		if status&bit == bit {
			clr := uint32(dmaChStatusClrTx)
			if dir == DmaChRxIntr {
				clr = dmaChStatusClrRx
			}
			r := d.ops.regs()
			d.writel(r.at(ch, r.status), clr)
			d.writel(virtIntrStatus(ch), bit)
		}
	}

	if tries, err := d.intrRetry(virtIntrCtrl(ch), bit, enable); err != nil {
		d.logger.Error("interrupt control not applied",
			zap.Uint32("chan", ch), zap.Uint32("dir", dir), zap.Bool("enable", enable), zap.Int("tries", tries))
		return err
	}
	return nil
}

// GlobalDmaStatus returns the global DMA interrupt status registers:
// one word, or three on T26x.
func (d *Dma) GlobalDmaStatus() ([]uint32, error) {
	if !d.initDone {
		return nil, ErrNotInitialized
	}
	n := d.ops.globalStatusCount()
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.readl(globalDmaStatus + 4*uint32(i))
	}
	return out, nil
}
