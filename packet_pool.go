package ethdma

import (
	"errors"
	"sync"
)

// ErrNoBuffer is returned when a BufferPool has no free buffer.
var ErrNoBuffer = errors.New("no free DMA buffer")

// FramePool recycles Frames handed out by Device.Receive.
type FramePool struct {
	pool *sync.Pool
}

func NewFramePool() *FramePool {
	return &FramePool{
		pool: &sync.Pool{
			New: func() interface{} {
				return &Frame{}
			},
		},
	}
}

func (p *FramePool) Get() *Frame {
	return p.pool.Get().(*Frame)
}

func (p *FramePool) Put(f *Frame) {
	p.pool.Put(f)
}

// Buffer is one fixed-size DMA buffer carved from an Arena.
type Buffer struct {
	Off  uint32
	Phys uint64
}

// BufferPool hands out fixed-size buffers of an Arena.
type BufferPool struct {
	mu      sync.Mutex
	arena   *Arena
	bufSize uint32
	free    []Buffer
}

// NewBufferPool allocates n buffers of bufSize bytes from arena.
// Buffers are aligned to the bus width.
func NewBufferPool(arena *Arena, n int, bufSize uint32) (*BufferPool, error) {
	p := &BufferPool{arena: arena, bufSize: bufSize, free: make([]Buffer, 0, n)}
	for i := 0; i < n; i++ {
		off, phys, err := arena.Alloc(bufSize, axiBusWidth)
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, Buffer{Off: off, Phys: phys})
	}
	return p, nil
}

// Get takes a free buffer.
func (p *BufferPool) Get() (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return Buffer{}, ErrNoBuffer
	}
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return b, nil
}

// Put returns a buffer taken with Get.
func (p *BufferPool) Put(b Buffer) {
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Len returns the number of free buffers.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// BufSize returns the size of every buffer of the pool.
func (p *BufferPool) BufSize() uint32 {
	return p.bufSize
}

// Bytes returns the memory of b.
func (p *BufferPool) Bytes(b Buffer) []byte {
	return p.arena.Bytes(b.Off, p.bufSize)
}
