package ethdma

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// mappedIO is an IO32 over mmap'd memory.
// Every access is a single aligned 32-bit load or store.
type mappedIO []byte

func (m mappedIO) Read32(off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m[off])))
}

func (m mappedIO) Write32(off uint32, val uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m[off])), val)
}

// Window is an MMIO register aperture mapped from a device file.
type Window struct {
	mappedIO
	path string
	file *os.File
	lock *os.File
}

// OpenWindow maps a register range of a device file (/dev/mem, /dev/uioN, ...) into user space.
// A device file can be mapped by one process at a time; this is enforced with flock.
//
// Parameters:
//   - path: device file path.
//   - offset: start of the mapping, page aligned. For a UIO device, offset = N * pagesize selects map N.
//   - size: length of the mapping in bytes.
//
// Returns:
//   - *Window: the mapped register window.
//   - error: locking, opening or mapping failed.
func OpenWindow(path string, offset int64, size int) (w *Window, err error) {
	if size <= 0 || offset%int64(unix.Getpagesize()) != 0 {
		return nil, unix.EINVAL
	}

	w = &Window{path: path}
	if w.lock, err = deviceLockAcquire(path); err != nil {
		return nil, err
	}

	w.file, err = os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		err = fmt.Errorf("open %s: %w", path, err)
		goto outLock
	}

	w.mappedIO, err = unix.Mmap(int(w.file.Fd()), offset, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		err = fmt.Errorf("unix.Mmap %s: %w", path, err)
		goto outFile
	}
	logger.Debug("register window mapped",
		zap.String("path", path),
		zap.Int64("offset", offset),
		zap.Int("size", size),
	)
	return w, nil

outFile:
	w.file.Close()
outLock:
	deviceLockRelease(w.lock)
	return nil, err
}

// Fd returns the device file descriptor.
// For a UIO device, reading it blocks until the next interrupt.
func (w *Window) Fd() int {
	return int(w.file.Fd())
}

// Close unmaps the window and releases the device lock.
func (w *Window) Close() error {
	if w == nil || w.mappedIO == nil {
		return nil
	}
	err := unix.Munmap(w.mappedIO)
	w.mappedIO = nil
	return multierr.Combine(err, w.file.Close(), deviceLockRelease(w.lock))
}
