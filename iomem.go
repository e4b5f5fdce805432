package ethdma

import (
	"encoding/binary"
	"sync"
)

// IO32 is a 32-bit little-endian access window.
// Both the MMIO register aperture and descriptor memory are reached through it.
type IO32 interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// AccessKind tells reads from writes in a MemIO trace.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
)

// Access is one recorded MemIO access.
type Access struct {
	Kind AccessKind
	Off  uint32
	Val  uint32
}

// MemIO is an IO32 over ordinary memory.
// It serves as a register file for device models and tests, and can record every access.
type MemIO struct {
	mu    sync.Mutex
	buf   []byte
	trace []Access
	// Tracing enables access recording.
	Tracing bool
	// ReadHook, if set, is consulted on every read and may replace the stored value.
	ReadHook func(off uint32, val uint32) uint32
	// WriteHook, if set, is consulted on every write and may replace the value to store.
	WriteHook func(off uint32, val uint32) uint32
}

// NewMemIO allocates a zeroed window of size bytes.
func NewMemIO(size int) *MemIO {
	return &MemIO{buf: make([]byte, size)}
}

// Read32 implements IO32.
func (m *MemIO) Read32(off uint32) uint32 {
	m.mu.Lock()
	val := binary.LittleEndian.Uint32(m.buf[off:])
	m.mu.Unlock()
	if m.ReadHook != nil {
		val = m.ReadHook(off, val)
	}
	m.record(AccessRead, off, val)
	return val
}

// Write32 implements IO32.
func (m *MemIO) Write32(off uint32, val uint32) {
	if m.WriteHook != nil {
		val = m.WriteHook(off, val)
	}
	m.mu.Lock()
	binary.LittleEndian.PutUint32(m.buf[off:], val)
	m.mu.Unlock()
	m.record(AccessWrite, off, val)
}

func (m *MemIO) record(kind AccessKind, off uint32, val uint32) {
	if !m.Tracing {
		return
	}
	m.mu.Lock()
	m.trace = append(m.trace, Access{Kind: kind, Off: off, Val: val})
	m.mu.Unlock()
}

// Poke stores a value without tracing or hooks.
func (m *MemIO) Poke(off uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binary.LittleEndian.PutUint32(m.buf[off:], val)
}

// Peek loads a value without tracing or hooks.
func (m *MemIO) Peek(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return binary.LittleEndian.Uint32(m.buf[off:])
}

// Trace returns a copy of the recorded accesses.
func (m *MemIO) Trace() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Access(nil), m.trace...)
}

// Writes returns the recorded writes only.
func (m *MemIO) Writes() (writes []Access) {
	for _, a := range m.Trace() {
		if a.Kind == AccessWrite {
			writes = append(writes, a)
		}
	}
	return writes
}

// ResetTrace drops the recorded accesses.
func (m *MemIO) ResetTrace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = nil
}

// Bytes exposes the backing memory.
func (m *MemIO) Bytes() []byte {
	return m.buf
}
