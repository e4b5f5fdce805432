package ethdma

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// ArenaDefaultSize fits the rings and buffers of one EQOS channel at default sizes.
	ArenaDefaultSize = 8 << 20
	// DescRingAlign is the alignment of a descriptor ring in bus address space.
	DescRingAlign = 64
)

// Arena is DMA-able memory handed out by a bump allocator.
// Every allocation is returned as an offset into the arena, which doubles as
// the IO32 offset, and as a bus address.
type Arena struct {
	mappedIO
	mu      sync.Mutex
	busBase uint64
	next    uint32
	owned   bool
}

// NewArena maps size bytes of anonymous, locked memory.
//
// Parameters:
//   - size: arena length in bytes, rounded up to the page size.
//   - busBase: bus address of the first byte, as programmed by the IOMMU or
//     reported by the platform.
//
// Returns:
//   - *Arena: the mapped arena.
//   - error: mapping or locking failed.
func NewArena(size int, busBase uint64) (*Arena, error) {
	if size <= 0 {
		return nil, unix.EINVAL
	}
	page := unix.Getpagesize()
	size = (size + page - 1) &^ (page - 1)

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap failed: %w", err)
	}
	if err = unix.Mlock(mem); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("unix.Mlock failed: %w", err)
	}
	logger.Debug("arena mapped", zap.Int("size", size), zap.Uint64("bus", busBase))
	return &Arena{mappedIO: mem, busBase: busBase, owned: true}, nil
}

// NewMemArena returns an arena over ordinary Go memory. It is not DMA-able;
// it backs rings and buffers of a software device model such as SimHW.
func NewMemArena(size int, busBase uint64) *Arena {
	return &Arena{mappedIO: make([]byte, size), busBase: busBase}
}

// ArenaFromWindow carves allocations out of an already mapped DMA region,
// such as a UIO memory map. The window keeps ownership of the mapping.
func ArenaFromWindow(w *Window, busBase uint64) *Arena {
	return &Arena{mappedIO: w.mappedIO, busBase: busBase}
}

// Alloc reserves size bytes aligned to align, which must be a power of two.
//
// Returns:
//   - off: offset of the allocation in the arena.
//   - phys: bus address of the allocation.
//   - error: unix.ENOMEM when the arena is exhausted.
func (a *Arena) Alloc(size, align uint32) (off uint32, phys uint64, err error) {
	if size == 0 || !isPowerOfTwo(align) {
		return 0, 0, unix.EINVAL
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	off = (a.next + align - 1) &^ (align - 1)
	if uint64(off)+uint64(size) > uint64(len(a.mappedIO)) {
		return 0, 0, unix.ENOMEM
	}
	a.next = off + size
	return off, a.busBase + uint64(off), nil
}

// Bytes returns the n bytes at off.
func (a *Arena) Bytes(off, n uint32) []byte {
	return a.mappedIO[off : off+n : off+n]
}

// BusAddr returns the bus address of arena offset off.
func (a *Arena) BusAddr(off uint32) uint64 {
	return a.busBase + uint64(off)
}

// Offset converts a bus address back to an arena offset.
func (a *Arena) Offset(phys uint64) (uint32, bool) {
	if phys < a.busBase || phys-a.busBase >= uint64(len(a.mappedIO)) {
		return 0, false
	}
	return uint32(phys - a.busBase), true
}

// Free returns the number of unallocated bytes.
func (a *Arena) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mappedIO) - int(a.next)
}

// AllocTxRing allocates and zeroes a Tx ring of size descriptors.
func (a *Arena) AllocTxRing(size uint32) (*TxRing, error) {
	off, phys, err := a.Alloc(size*DescSize, DescRingAlign)
	if err != nil {
		return nil, err
	}
	clear(a.Bytes(off, size*DescSize))
	return NewTxRing(a, off, phys, size), nil
}

// AllocRxRing allocates and zeroes an Rx ring of size descriptors.
func (a *Arena) AllocRxRing(size uint32) (*RxRing, error) {
	off, phys, err := a.Alloc(size*DescSize, DescRingAlign)
	if err != nil {
		return nil, err
	}
	clear(a.Bytes(off, size*DescSize))
	return NewRxRing(a, off, phys, size), nil
}

// Close unmaps an arena created by NewArena.
func (a *Arena) Close() error {
	if a == nil || a.mappedIO == nil {
		return nil
	}
	var err error
	if a.owned {
		err = unix.Munmap(a.mappedIO)
	}
	a.mappedIO = nil
	return err
}
