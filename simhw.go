package ethdma

import (
	"encoding/binary"
	"sync"
)

// simRegsSize covers the per-channel blocks of 48 channels and the virtual
// interrupt and global status registers.
const simRegsSize = 0x10000

// simMacVersion is the MAC_VERSION a SimHW reports for each MAC type.
var simMacVersion = [macTypeMax]uint32{EqosMac530, MgbeMac310, MgbeMac420}

// SimHW is a software model of the MAC DMA. It owns a register window and
// completes descriptors when Step is called. Transmitted frames are either
// kept for Sent or, with Loopback, written into the Rx ring of the same
// channel. Rings and buffers must live in the arena given to NewSimHW.
type SimHW struct {
	Regs *MemIO
	// Loopback feeds transmitted frames into the Rx ring of the same channel.
	Loopback bool

	mu    sync.Mutex
	mac   MacType
	cfg   *DmaConfig
	arena *Arena
	txIdx [MaxDmaChans]uint32
	rxIdx [MaxDmaChans]uint32
	sent  [][]byte
	clock uint64

	TxFrames  uint64
	RxFrames  uint64
	RxDropped uint64
}

// NewSimHW returns a model of mac whose descriptors and buffers are in arena.
func NewSimHW(mac MacType, arena *Arena) *SimHW {
	s := &SimHW{Regs: NewMemIO(simRegsSize), mac: mac % macTypeMax, arena: arena}
	s.Regs.Poke(macVersionReg, simMacVersion[s.mac])
	return s
}

// Attach points cfg at the model registers and resets the hardware ring
// positions. On T26x an empty PdmaMap is filled with a single PDMA serving
// every configured channel.
func (s *SimHW) Attach(cfg *DmaConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Base = s.Regs
	if s.mac == MacMGBET26x && len(cfg.PdmaMap) == 0 {
		cfg.PdmaMap = []PdmaMap{{Pdma: 0, Vdmas: append([]uint32(nil), cfg.DmaChans...)}}
	}
	s.cfg = cfg
	s.txIdx = [MaxDmaChans]uint32{}
	s.rxIdx = [MaxDmaChans]uint32{}
}

func (s *SimHW) buf(phys uint64, n uint32) []byte {
	off, ok := s.arena.Offset(phys)
	if !ok || uint64(off)+uint64(n) > uint64(len(s.arena.mappedIO)) {
		return nil
	}
	return s.arena.Bytes(off, n)
}

// Step completes every Tx descriptor of channel ch that is owned by the
// model and returns the number of packets sent and received.
func (s *SimHW) Step(ch uint32) (tx, rx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil || ch >= MaxDmaChans || s.cfg.TxRings[ch] == nil {
		return 0, 0
	}

	ring := s.cfg.TxRings[ch]
	var frame []byte
	var tstamp bool
	for {
		i := s.txIdx[ch]
		d := ring.Load(i)
		if d[3]&Tdes3OWN == 0 {
			break
		}
		s.txIdx[ch] = incrIdx(i, ring.Size)

		// context descriptor: nothing to send
		if d[3]&Tdes3CTXT != 0 {
			ring.SetWord(i, 3, d[3]&^Tdes3OWN)
			continue
		}
		if d[3]&Tdes3FD != 0 {
			frame = frame[:0]
			tstamp = d[2]&Tdes2TTSE != 0
		}
		n := d[2] & Tdes2LenMask
		if b := s.buf(uint64(d[0])|uint64(d[1])<<32, n); b != nil {
			frame = append(frame, b...)
		}

		wb := d[3] & (Tdes3FD | Tdes3LD)
		if d[3]&Tdes3LD != 0 {
			s.clock += 1000
			if tstamp && s.mac == MacEQOS {
				ring.SetWord(i, 0, uint32(s.clock%nsecPerSec))
				ring.SetWord(i, 1, uint32(s.clock/nsecPerSec))
				wb |= Tdes3TTSS
			}
			s.TxFrames++
			tx++
			out := append([]byte(nil), frame...)
			if s.Loopback {
				if s.inject(ch, out) {
					rx++
				}
			} else {
				s.sent = append(s.sent, out)
			}
		}
		ring.SetWord(i, 3, wb)
	}
	return tx, rx
}

// Inject writes frame into the next Rx descriptor of channel ch as if it
// had arrived from the wire. It returns false when software owns that descriptor.
func (s *SimHW) Inject(ch uint32, frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inject(ch, frame)
}

func (s *SimHW) inject(ch uint32, frame []byte) bool {
	if s.cfg == nil || ch >= MaxDmaChans || s.cfg.RxRings[ch] == nil {
		return false
	}
	ring := s.cfg.RxRings[ch]
	i := s.rxIdx[ch]
	d := ring.Load(i)
	if d[3]&Rdes3OWN == 0 {
		s.RxDropped++
		return false
	}
	b := s.buf(uint64(d[0])|uint64(d[1])<<32, s.cfg.RxBufLen)
	if b == nil {
		s.RxDropped++
		return false
	}
	n := uint32(copy(b, frame))

	wb := Desc{0, 0, 0, Rdes3FD | Rdes3LD | n&Rdes3PktLen}
	s.markChecksum(frame, &wb)

	last := i
	ctxIdx := incrIdx(i, ring.Size)
	if isPTPFrame(frame) && ring.Word(ctxIdx, 3)&Rdes3OWN != 0 {
		// the timestamp goes out before the packet it belongs to
		s.clock += 1000
		ctx := Desc{uint32(s.clock % nsecPerSec), uint32(s.clock / nsecPerSec), 0, Rdes3CTXT}
		if s.mac == MacEQOS {
			wb[1] |= Rdes1TSA
			wb[3] |= Rdes3RS1V
		} else {
			wb[3] |= Rdes3CDA
			ctx[3] |= Rdes3TSA
		}
		ring.Store(ctxIdx, ctx)
		last = ctxIdx
	}
	ring.Store(i, wb)

	s.rxIdx[ch] = incrIdx(last, ring.Size)
	if s.mac == MacMGBET26x {
		s.Regs.Poke(mgbeRegs.at(ch, mgbeDmaChRxDescWrRngOff), last<<16)
	}
	s.RxFrames++
	return true
}

// isPTPFrame matches PTP over Ethernet and PTP over UDP/IPv4 event and general ports.
func isPTPFrame(frame []byte) bool {
	if len(frame) < ethHdrLen {
		return false
	}
	switch binary.BigEndian.Uint16(frame[12:]) {
	case uint16(ethTypePTP):
		return true
	case 0x0800:
		if len(frame) < ethHdrLen+20 {
			return false
		}
		ihl := int(frame[ethHdrLen]&0xF) * 4
		l4 := ethHdrLen + ihl
		if ihl < 20 || len(frame) < l4+4 || frame[ethHdrLen+9] != 17 {
			return false
		}
		port := binary.BigEndian.Uint16(frame[l4+2:])
		return port == ptpEventPort || port == ptpGeneralPort
	}
	return false
}

// markChecksum reports a validated checksum for IPv4 TCP and UDP frames.
func (s *SimHW) markChecksum(frame []byte, wb *Desc) {
	if len(frame) < ethHdrLen+20 || binary.BigEndian.Uint16(frame[12:]) != 0x0800 {
		return
	}
	proto := frame[ethHdrLen+9]
	if s.mac == MacEQOS {
		switch proto {
		case 6:
			wb[1] = Rdes1IPV4 | Rdes1PTTCP
		case 17:
			wb[1] = Rdes1IPV4 | Rdes1PTUDP
		default:
			return
		}
		wb[3] |= Rdes3RS1V
		return
	}
	switch proto {
	case 6:
		wb[3] |= Rdes3PTIPv4TCP
	case 17:
		wb[3] |= Rdes3PTIPv4UDP
	}
}

// Sent returns and forgets the frames transmitted without Loopback.
func (s *SimHW) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}
