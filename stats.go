package ethdma

import (
	"sync"
)

// updateStatsCounter adds incr to last. A sum that overflows restarts the counter at zero.
func updateStatsCounter(last, incr uint64) uint64 {
	sum := last + incr
	if sum < last {
		return 0
	}
	return sum
}

// PktErrStats counts per-packet hardware errors.
type PktErrStats struct {
	TxIPHeaderErr  uint64 `yaml:"tx_ip_header_err"`
	TxUnderflowErr uint64 `yaml:"tx_underflow_err"`
	TxExcDefErr    uint64 `yaml:"tx_exc_def_err"`
	TxExcColErr    uint64 `yaml:"tx_exc_col_err"`
	TxLateColErr   uint64 `yaml:"tx_late_col_err"`
	TxNoCarrierErr uint64 `yaml:"tx_no_carrier_err"`
	TxLossCarrErr  uint64 `yaml:"tx_loss_carrier_err"`
	TxPLChkSumErr  uint64 `yaml:"tx_payload_cs_err"`
	TxPktFlushErr  uint64 `yaml:"tx_pkt_flush_err"`
	TxJabberTOErr  uint64 `yaml:"tx_jabber_timeout_err"`

	RxCrcError    uint64 `yaml:"rx_crc_error"`
	RxFrameError  uint64 `yaml:"rx_frame_error"`
	FrpParsed     uint64 `yaml:"frp_parsed"`
	FrpDropped    uint64 `yaml:"frp_dropped"`
	FrpErr        uint64 `yaml:"frp_err"`
	FrpIncomplete uint64 `yaml:"frp_incomplete"`

	ClearTxErr uint64 `yaml:"clear_tx_err"`
	ClearRxErr uint64 `yaml:"clear_rx_err"`
}

// DmaStats holds the packet counters of an instance.
type DmaStats struct {
	TxPktN        uint64 `yaml:"tx_pkt_n"`
	RxPktN        uint64 `yaml:"rx_pkt_n"`
	TxVlanPktN    uint64 `yaml:"tx_vlan_pkt_n"`
	TxTSOPktN     uint64 `yaml:"tx_tso_pkt_n"`
	RxBufReallocN uint64 `yaml:"rx_buf_realloc_n"`

	TxCleanN   [MaxDmaChans]uint64 `yaml:"-"`
	QTxPktN    [MaxDmaChans]uint64 `yaml:"-"`
	QRxPktN    [MaxDmaChans]uint64 `yaml:"-"`
	ChanRxPktN [MaxDmaChans]uint64 `yaml:"-"`

	Err PktErrStats `yaml:"err"`
}

// ChanStats is the per-channel slice of DmaStats.
// Its layout is the value format of StatsMap.
type ChanStats struct {
	TxCleanN   uint64 `yaml:"tx_clean_n"`
	QTxPktN    uint64 `yaml:"q_tx_pkt_n"`
	QRxPktN    uint64 `yaml:"q_rx_pkt_n"`
	ChanRxPktN uint64 `yaml:"chan_rx_pkt_n"`
}

// statsBlock guards DmaStats. Tx and Rx paths of different channels update
// it concurrently.
type statsBlock struct {
	mu sync.Mutex
	s  DmaStats
}

func (b *statsBlock) update(fn func(s *DmaStats)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (d *Dma) Stats() DmaStats {
	d.stats.mu.Lock()
	defer d.stats.mu.Unlock()
	return d.stats.s
}

// ChanStats returns the counters of one channel.
func (d *Dma) ChanStats(ch uint32) ChanStats {
	if ch >= MaxDmaChans {
		return ChanStats{}
	}
	s := d.Stats()
	return ChanStats{
		TxCleanN:   s.TxCleanN[ch],
		QTxPktN:    s.QTxPktN[ch],
		QRxPktN:    s.QRxPktN[ch],
		ChanRxPktN: s.ChanRxPktN[ch],
	}
}

// ClearTxErrStats zeroes the Tx error counters and counts the clear.
func (d *Dma) ClearTxErrStats() {
	d.stats.update(func(s *DmaStats) {
		e := &s.Err
		e.TxIPHeaderErr, e.TxUnderflowErr, e.TxExcDefErr = 0, 0, 0
		e.TxExcColErr, e.TxLateColErr, e.TxNoCarrierErr = 0, 0, 0
		e.TxLossCarrErr, e.TxPLChkSumErr, e.TxPktFlushErr = 0, 0, 0
		e.TxJabberTOErr = 0
		e.ClearTxErr = updateStatsCounter(e.ClearTxErr, 1)
	})
}

// ClearRxErrStats zeroes the Rx CRC counter and counts the clear.
func (d *Dma) ClearRxErrStats() {
	d.stats.update(func(s *DmaStats) {
		s.Err.RxCrcError = 0
		s.Err.ClearRxErr = updateStatsCounter(s.Err.ClearRxErr, 1)
	})
}

// updateTxErrStats decodes the legacy MAC Tx write-back error bits of tdes3.
func updateTxErrStats(tdes3 uint32, e *PktErrStats) {
	bits := []struct {
		mask uint32
		cnt  *uint64
	}{
		{Tdes3IPHeaderErr, &e.TxIPHeaderErr},
		{Tdes3JabberTOErr, &e.TxJabberTOErr},
		{Tdes3PktFlushErr, &e.TxPktFlushErr},
		{Tdes3PLChkSumErr, &e.TxPLChkSumErr},
		{Tdes3LossCarrErr, &e.TxLossCarrErr},
		{Tdes3NoCarrierErr, &e.TxNoCarrierErr},
		{Tdes3LateColErr, &e.TxLateColErr},
		{Tdes3ExcColErr, &e.TxExcColErr},
		{Tdes3ExcDefErr, &e.TxExcDefErr},
		{Tdes3UnderflowErr, &e.TxUnderflowErr},
	}
	for _, b := range bits {
		if tdes3&b.mask != 0 {
			*b.cnt = updateStatsCounter(*b.cnt, 1)
		}
	}
}
