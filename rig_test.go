package ethdma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rigTxPhys  = 0x10000000
	rigRxPhys  = 0x20000000
	rigBufPhys = 0x30000000
	rigPktPhys = 0x40000000
	rigBufLen  = 2048
)

func makeAR(t *testing.T) (*assert.Assertions, *require.Assertions) {
	return assert.New(t), require.New(t)
}

// rig is a Dma instance over MemIO register and descriptor windows, with
// callbacks that record what the engine reports.
type rig struct {
	regs *MemIO
	mem  *MemIO
	cfg  *DmaConfig
	d    *Dma

	txDone  []TxDoneContext
	txSlots []TxSwcx
	rxCx    []RxPktContext
	// holdBuf lists Rx buffers that stay with the caller after delivery.
	holdBuf  map[uint64]bool
	reallocs int
	delays   int
	onDelay  func(n int)
}

var rigMacVersion = map[MacType]uint32{
	MacEQOS:     EqosMac530,
	MacMGBE:     MgbeMac310,
	MacMGBET26x: MgbeMac420,
}

// newRigConfig builds rings for chans and a configuration, without a Dma.
func newRigConfig(mac MacType, size uint32, chans ...uint32) *rig {
	if len(chans) == 0 {
		chans = []uint32{0}
	}
	r := &rig{regs: NewMemIO(simRegsSize), holdBuf: map[uint64]bool{}}
	r.regs.Poke(macVersionReg, rigMacVersion[mac])
	r.mem = NewMemIO(int(2*size*DescSize) * len(chans))

	cfg := DefaultDmaConfig(mac)
	cfg.Base = r.regs
	cfg.DmaChans = chans
	cfg.TxRingSize, cfg.RxRingSize = size, size
	cfg.PdmaMap = []PdmaMap{{Pdma: 1, Vdmas: chans}}
	for i, ch := range chans {
		off := uint32(i) * 2 * size * DescSize
		cfg.TxRings[ch] = NewTxRing(r.mem, off, rigTxPhys+uint64(off), size)
		rx := NewRxRing(r.mem, off+size*DescSize, rigRxPhys+uint64(off), size)
		for j := range rx.Swcx {
			rx.Swcx[j].BufPhysAddr = rigBuf(ch, uint32(j))
			rx.Swcx[j].Len = rigBufLen
		}
		cfg.RxRings[ch] = rx
	}
	cfg.Ops = OsdOps{
		TransmitComplete: r.transmitComplete,
		ReceivePacket:    r.receivePacket,
		ReallocBuf:       r.reallocBuf,
		Udelay:           r.udelay,
	}
	r.cfg = cfg
	return r
}

// newRig returns an initialized instance. setup, if not nil, adjusts the
// configuration before InitHardware.
func newRig(t *testing.T, mac MacType, size uint32, setup func(cfg *DmaConfig), chans ...uint32) *rig {
	t.Helper()
	r := newRigConfig(mac, size, chans...)
	if setup != nil {
		setup(r.cfg)
	}
	r.d = acquireForTest(t)
	require.NoError(t, r.d.InitHardware(r.cfg))
	return r
}

func acquireForTest(t *testing.T) *Dma {
	t.Helper()
	d, err := Acquire()
	require.NoError(t, err)
	t.Cleanup(func() { Release(d) })
	return d
}

func rigBuf(ch, idx uint32) uint64 {
	return rigBufPhys + uint64(ch)<<24 + uint64(idx)*rigBufLen
}

func (r *rig) transmitComplete(ch uint32, swcx *TxSwcx, done *TxDoneContext) {
	r.txDone = append(r.txDone, *done)
	r.txSlots = append(r.txSlots, *swcx)
}

func (r *rig) receivePacket(ring *RxRing, ch uint32, rxBufLen uint32, cx *RxPktContext, swcx *RxSwcx) {
	r.rxCx = append(r.rxCx, *cx)
	if !r.holdBuf[swcx.BufPhysAddr] {
		swcx.Flags |= RxSwcxBufValid
	}
}

func (r *rig) reallocBuf(ring *RxRing, ch uint32) {
	r.reallocs++
	swcx := &ring.Swcx[decrIdx(ring.CurRxIdx, ring.Size)]
	swcx.BufPhysAddr = rigBufPhys + 0xFFF000
	swcx.Flags |= RxSwcxBufValid
}

func (r *rig) udelay(usec uint64) {
	r.delays++
	if r.onDelay != nil {
		r.onDelay(r.delays)
	}
}

// queue fills the Swcx entries at CurTxIdx, one per length, and sets PktCx.
// A length of invalidValue marks a context slot.
func (r *rig) queue(ch uint32, cx TxPktContext, lens ...uint32) {
	ring := r.cfg.TxRings[ch]
	idx := ring.CurTxIdx
	for i, l := range lens {
		ring.Swcx[idx] = TxSwcx{Len: l}
		if l != invalidValue {
			ring.Swcx[idx].BufPhysAddr = rigPktPhys + uint64(i)*0x1000
		}
		idx = incrIdx(idx, ring.Size)
	}
	cx.DescCnt = uint32(len(lens))
	ring.PktCx = cx
}

// hwStore writes a descriptor the way hardware does: untraced.
func (r *rig) hwStore(ring *DescRing, idx uint32, d Desc) {
	for w := range d {
		r.mem.Poke(ring.wordOff(idx, w), d[w])
	}
}

// releaseTx clears OWN on every Tx descriptor of ch.
func (r *rig) releaseTx(ch uint32) {
	ring := r.cfg.TxRings[ch]
	for i := uint32(0); i < ring.Size; i++ {
		off := ring.wordOff(i, 3)
		r.mem.Poke(off, r.mem.Peek(off)&^Tdes3OWN)
	}
}

// rxWriteBack completes Rx slot idx of ch with a single-buffer packet of n bytes.
func (r *rig) rxWriteBack(ch, idx, n uint32, extra Desc) {
	d := extra
	d[3] |= Rdes3FD | Rdes3LD | n&Rdes3PktLen
	r.hwStore(&r.cfg.RxRings[ch].DescRing, idx, d)
}

// descWrites keeps the writes that hit ring.
func descWrites(writes []Access, ring *DescRing) []Access {
	var out []Access
	for _, w := range writes {
		if w.Off >= ring.Off && w.Off < ring.Off+ring.Size*DescSize {
			out = append(out, w)
		}
	}
	return out
}

func slotOf(ring *DescRing, off uint32) uint32 {
	return (off - ring.Off) / DescSize
}

// assertOwnLast checks that in every slot written, the final write is the
// one setting OWN in word 3 and no earlier write set it.
func assertOwnLast(t *testing.T, writes []Access, ring *DescRing) {
	t.Helper()
	writes = descWrites(writes, ring)
	last := map[uint32]int{}
	for i, w := range writes {
		last[slotOf(ring, w.Off)] = i
	}
	for slot, i := range last {
		w := writes[i]
		assert.Equal(t, ring.wordOff(slot, 3), w.Off, "slot %d: last write is not word 3", slot)
		assert.NotZero(t, w.Val&Tdes3OWN, "slot %d: last write does not set OWN", slot)
		for _, prev := range writes[:i] {
			if prev.Off == w.Off {
				assert.Zero(t, prev.Val&Tdes3OWN, "slot %d: OWN set before the final write", slot)
			}
		}
	}
}

// ownWriteIndex returns the trace position of the write setting OWN on slot.
func ownWriteIndex(writes []Access, ring *DescRing, slot uint32) int {
	for i, w := range writes {
		if w.Off == ring.wordOff(slot, 3) && w.Val&Tdes3OWN != 0 {
			return i
		}
	}
	return -1
}

func countWrites(writes []Access, off uint32) int {
	n := 0
	for _, w := range writes {
		if w.Off == off {
			n++
		}
	}
	return n
}
