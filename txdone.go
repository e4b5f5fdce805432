package ethdma

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func ptpTwoStepOrSlave(flag uint32) bool {
	return flag&PtpSyncSlave != 0 || flag&PtpSyncTwoStep != 0
}

// txDoneTimestamp extracts the timestamp the legacy MAC writes back into the last descriptor.
func txDoneTimestamp(desc Desc, done *TxDoneContext) {
	if desc[3]&Tdes3LD != 0 && desc[3]&Tdes3CTXT == 0 && desc[3]&Tdes3TTSS != 0 {
		sec := (uint64(desc[1]) * nsecPerSec) & 0x7FFFFFFFFFFFFFFF
		done.Flags |= TxDoneCxTS
		done.NS = uint64(desc[0]) + sec
	}
}

// ProcessTxCompletions reclaims Tx descriptors the DMA of channel ch has released.
//
// Parameters:
// - ch: DMA channel.
// - budget: maximum number of packets to reclaim.
//
// Returns:
// - The number of packets reclaimed. A packet is counted at its last descriptor.
// - An error for an invalid channel or a channel without Tx ring.
//
// TransmitComplete is called once for every reclaimed slot, context slots included.
func (d *Dma) ProcessTxCompletions(ch uint32, budget int) (int, error) {
	if err := d.validateChan(ch); err != nil {
		return 0, err
	}
	ring := d.cfg.TxRings[ch]
	if ring == nil {
		d.logger.Error("Tx ring not attached", zap.Uint32("chan", ch))
		return 0, fmt.Errorf("%w: channel %d has no Tx ring", unix.EFAULT, ch)
	}

	mac := d.cfg.MacType
	processed := 0
	entry := ring.CleanIdx

	if !d.stripped {
		d.stats.update(func(s *DmaStats) {
			s.TxCleanN[ch] = updateStatsCounter(s.TxCleanN[ch], 1)
		})
	}

	for entry != ring.CurTxIdx && entry < ring.Size && processed < budget {
		done := &ring.doneCx
		*done = TxDoneContext{}

		desc := ring.Load(entry)
		if desc[3]&Tdes3OWN != 0 {
			break
		}
		swcx := &ring.Swcx[entry]

		if desc[3]&Tdes3LD != 0 {
			if mac == MacEQOS && desc[3]&Tdes3ESBits != 0 {
				done.Flags |= TxDoneCxError
				if !d.stripped {
					d.stats.update(func(s *DmaStats) { updateTxErrStats(desc[3], &s.Err) })
				}
			} else if !d.stripped {
				d.stats.update(func(s *DmaStats) {
					s.QTxPktN[ch] = updateStatsCounter(s.QTxPktN[ch], 1)
					s.TxPktN = updateStatsCounter(s.TxPktN, 1)
				})
			}
			processed++
		}

		if mac == MacEQOS {
			txDoneTimestamp(desc, done)
		} else if swcx.Flags&PktCxPTP != 0 && ptpTwoStepOrSlave(d.cfg.PtpFlag) && desc[3]&Tdes3CTXT == 0 {
			done.PktID = swcx.PktID
			if mac == MacMGBET26x {
				done.VdmaID = swcx.VdmaID
			}
			done.Flags |= TxDoneCxTSDelayed
		}

		if swcx.Flags&PktCxPagedBuf != 0 {
			done.Flags |= TxDoneCxPagedBuf
		}
		// context slot: no payload bytes
		if swcx.Len == invalidValue {
			swcx.Len = 0
		}

		if d.cfg.Ops.TransmitComplete != nil {
			d.cfg.Ops.TransmitComplete(ch, swcx, done)
		}

		ring.Clear(entry)
		*swcx = TxSwcx{}
		entry = incrIdx(entry, ring.Size)
		ring.CleanIdx = entry
	}
	return processed, nil
}
