package ethdma

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrPollerRunning is returned by Start when the channel already has a poller.
var ErrPollerRunning = errors.New("poller already running on this channel")

// PollerConfig controls one channel poller.
type PollerConfig struct {
	// Budget is the packet budget of one Rx and one Tx pass.
	Budget int
	// IrqFd is a UIO device fd; reading it blocks until the next interrupt.
	// Without it the poller waits PollTimeout between idle passes.
	IrqFd int
	// PollTimeout is the unix.Poll timeout in milliseconds, -1 blocks.
	PollTimeout int
	// ChanBuffSize is the buffer size of the returned frame channel.
	ChanBuffSize int
}

// DefaultPollerConfig returns a poller config without interrupt fd.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Budget: 64, IrqFd: -1, PollTimeout: 1, ChanBuffSize: 256}
}

// Poller drives the completion paths of a Device, one goroutine per channel.
type Poller struct {
	dev *Device

	mu      sync.Mutex
	running map[uint32]*pollLoop
}

type pollLoop struct {
	stopR, stopW int
	done         chan struct{}
}

// NewPoller returns a poller for dev.
func NewPoller(dev *Device) *Poller {
	return &Poller{dev: dev, running: make(map[uint32]*pollLoop)}
}

func (p *Poller) waitIrq(cfg *PollerConfig, stopFd int) (stop bool) {
	pollFds := []unix.PollFd{{
		Fd:     int32(stopFd),
		Events: unix.POLLIN,
	}}
	if cfg.IrqFd >= 0 {
		pollFds = append(pollFds, unix.PollFd{Fd: int32(cfg.IrqFd), Events: unix.POLLIN})
	}
	if _, err := unix.Poll(pollFds, cfg.PollTimeout); err != nil && err != unix.EINTR {
		p.dev.logger.Warn("poll failed", zap.Error(err))
	}
	if pollFds[0].Revents&unix.POLLIN != 0 {
		return true
	}
	if len(pollFds) > 1 && pollFds[1].Revents&unix.POLLIN != 0 {
		// UIO: reading the 32-bit interrupt count acknowledges it
		var cnt [4]byte
		unix.Read(cfg.IrqFd, cnt[:])
		unix.Write(cfg.IrqFd, []byte{1, 0, 0, 0})
	}
	return false
}

// Start runs the completion loop of channel ch in a new goroutine.
// It returns a channel carrying the received frames; the channel is closed
// by Stop. Return frames to the device with PutFrame.
//
// The loop:
// 1. Delivers Rx completions and refills the Rx ring.
// 2. Reclaims Tx completions.
// 3. When neither path reported more work, waits for an interrupt, the
//    poll timeout or a stop request.
func (p *Poller) Start(ch uint32, cfg PollerConfig) (<-chan *Frame, error) {
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("%w: budget %d", ErrInvalidArg, cfg.Budget)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.running[ch]; ok {
		return nil, ErrPollerRunning
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("unix.Pipe2 failed: %w", err)
	}
	l := &pollLoop{stopR: fds[0], stopW: fds[1], done: make(chan struct{})}
	p.running[ch] = l

	out := make(chan *Frame, cfg.ChanBuffSize)
	go func() {
		defer close(l.done)
		defer close(out)
		defer unix.Close(l.stopR)
		for {
			frames, more, err := p.dev.Receive(ch, cfg.Budget)
			if err != nil {
				p.dev.logger.Error("Rx completion failed", zap.Uint32("chan", ch), zap.Error(err))
				return
			}
			for _, f := range frames {
				out <- f
			}

			n, err := p.dev.Reclaim(ch, cfg.Budget)
			if err != nil {
				p.dev.logger.Error("Tx completion failed", zap.Uint32("chan", ch), zap.Error(err))
				return
			}
			if more || n >= cfg.Budget {
				continue
			}
			if p.waitIrq(&cfg, l.stopR) {
				return
			}
		}
	}()
	return out, nil
}

// Stop ends the loop of channel ch and waits for it to exit.
// A loop blocked on a full frame channel exits once the channel is drained.
func (p *Poller) Stop(ch uint32) {
	p.mu.Lock()
	l, ok := p.running[ch]
	delete(p.running, ch)
	p.mu.Unlock()
	if !ok {
		return
	}
	unix.Write(l.stopW, []byte{1})
	<-l.done
	unix.Close(l.stopW)
}

// StopAll stops every running loop.
func (p *Poller) StopAll() {
	p.mu.Lock()
	chans := make([]uint32, 0, len(p.running))
	for ch := range p.running {
		chans = append(chans, ch)
	}
	p.mu.Unlock()
	for _, ch := range chans {
		p.Stop(ch)
	}
}
