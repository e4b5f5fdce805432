package ethdma

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrInvalidArg is wrapped by argument validation failures.
var ErrInvalidArg = unix.EINVAL

var (
	ErrPoolExhausted      = errors.New("no free DMA instance")
	ErrStaleHandle        = errors.New("DMA instance handle is not live")
	ErrAlreadyInitialized = errors.New("DMA instance already initialized")
	ErrNotInitialized     = errors.New("DMA instance not initialized")
	ErrRingSize           = errors.New("invalid ring size")
	ErrMacVersion         = errors.New("unsupported MAC version")
	ErrIntrNotApplied     = errors.New("interrupt register write did not take effect")
	ErrTxContext          = errors.New("Tx packet context exceeds descriptor field width")
	ErrNoContextDesc      = errors.New("no Rx context descriptor")
	ErrTimestampTimeout   = errors.New("Rx timestamp not written by hardware")
	ErrTxRingFull         = errors.New("no free Tx descriptors")
)
