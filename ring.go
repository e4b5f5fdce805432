package ethdma

// DescRing is a contiguous array of hardware descriptors.
type DescRing struct {
	// Mem holds the descriptors, descriptor 0 at offset Off.
	Mem IO32
	Off uint32
	// PhysAddr is the bus address of descriptor 0.
	PhysAddr uint64
	Size     uint32
}

func (r *DescRing) wordOff(idx uint32, word int) uint32 {
	return r.Off + (idx&(r.Size-1))*DescSize + uint32(word)*4
}

// Load reads all four words of descriptor idx.
func (r *DescRing) Load(idx uint32) (d Desc) {
	for w := range d {
		d[w] = r.Mem.Read32(r.wordOff(idx, w))
	}
	return d
}

// Word reads one word of descriptor idx.
func (r *DescRing) Word(idx uint32, word int) uint32 {
	return r.Mem.Read32(r.wordOff(idx, word))
}

// SetWord writes one word of descriptor idx.
func (r *DescRing) SetWord(idx uint32, word int, val uint32) {
	r.Mem.Write32(r.wordOff(idx, word), val)
}

// Store writes words 0..2 and then word 3 of descriptor idx.
// Word 3 carries the ownership bit, so it always goes last.
func (r *DescRing) Store(idx uint32, d Desc) {
	r.SetWord(idx, 0, d[0])
	r.SetWord(idx, 1, d[1])
	r.SetWord(idx, 2, d[2])
	r.SetWord(idx, 3, d[3])
}

// Clear zeroes descriptor idx.
func (r *DescRing) Clear(idx uint32) {
	r.Store(idx, Desc{})
}

// descPhys returns the bus address of descriptor idx; idx may equal Size.
func (r *DescRing) descPhys(idx uint32) uint64 {
	return r.PhysAddr + uint64(idx)*DescSize
}

// TxRing is the transmit ring of one channel.
type TxRing struct {
	DescRing
	Swcx []TxSwcx
	// CurTxIdx is the next slot software populates.
	CurTxIdx uint32
	// CleanIdx is the next slot to reclaim.
	CleanIdx uint32

	SlotCheck  bool
	SlotNumber uint32
	DescCnt    uint32
	FrameCnt   uint32
	// SkipDmb skips the store barrier before the doorbell.
	SkipDmb bool

	// PktCx describes the packet for the next Transmit call.
	PktCx  TxPktContext
	doneCx TxDoneContext
}

// RxRing is the receive ring of one channel.
type RxRing struct {
	DescRing
	Swcx []RxSwcx
	// CurRxIdx is the next slot inspected for a completed receive.
	CurRxIdx uint32
	// RefillIdx is the next slot to hand back to hardware.
	RefillIdx uint32

	PktCx RxPktContext
}

// NewTxRing wraps size descriptors at mem[off:] with bus address phys.
func NewTxRing(mem IO32, off uint32, phys uint64, size uint32) *TxRing {
	return &TxRing{
		DescRing: DescRing{Mem: mem, Off: off, PhysAddr: phys, Size: size},
		Swcx:     make([]TxSwcx, size),
	}
}

// NewRxRing wraps size descriptors at mem[off:] with bus address phys.
func NewRxRing(mem IO32, off uint32, phys uint64, size uint32) *RxRing {
	return &RxRing{
		DescRing: DescRing{Mem: mem, Off: off, PhysAddr: phys, Size: size},
		Swcx:     make([]RxSwcx, size),
	}
}

func incrIdx(idx, size uint32) uint32 {
	return (idx + 1) & (size - 1)
}

func decrIdx(idx, size uint32) uint32 {
	return (idx - 1) & (size - 1)
}

// ringDistance returns (to - from) mod size.
func ringDistance(from, to, size uint32) uint32 {
	return (to - from) & (size - 1)
}

func lower32(v uint64) uint32 {
	return uint32(v)
}

func upper32(v uint64) uint32 {
	return uint32(v >> 32)
}
