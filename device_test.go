package ethdma

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simBusBase = 0x80000000

// newSimDevice starts a Device on a SimHW model with Loopback enabled.
func newSimDevice(t *testing.T, mac MacType, size uint32, chans ...uint32) (*Device, *SimHW) {
	t.Helper()
	cfg := DefaultDmaConfig(mac)
	if len(chans) > 0 {
		cfg.DmaChans = chans
	}
	cfg.TxRingSize, cfg.RxRingSize = size, size
	arena := NewMemArena(1<<20, simBusBase)
	sim := NewSimHW(mac, arena)
	sim.Loopback = true
	sim.Attach(cfg)

	dev, err := NewDevice(cfg, arena)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, dev.Close()) })
	return dev, sim
}

var allMacs = []MacType{MacEQOS, MacMGBE, MacMGBET26x}

func TestDeviceLoopback(t *testing.T) {
	for _, mac := range allMacs {
		t.Run(mac.String(), func(t *testing.T) {
			assert, require := makeAR(t)
			dev, sim := newSimDevice(t, mac, 16)

			// more frames than slots: the rings wrap
			for i := 0; i < 40; i++ {
				frame := udpFrame(t, 9, 64+i, byte(i))
				require.NoError(dev.Send(0, frame, TxOptions{}))
				tx, rx := sim.Step(0)
				require.Equal(1, tx)
				require.Equal(1, rx)

				frames, more, err := dev.Receive(0, 64)
				require.NoError(err)
				assert.False(more)
				require.Len(frames, 1, "frame %d", i)
				f := frames[0]
				assert.Equal(frame, f.Data())
				assert.True(f.Valid())
				assert.Zero(f.Chan)
				assert.NotZero(f.Csum & ChecksumUDPv4)
				assert.Zero(f.Flags & PktCxPTP)
				dev.PutFrame(f)

				n, err := dev.Reclaim(0, 64)
				require.NoError(err)
				assert.Equal(1, n)
			}

			assert.Equal(16, dev.txBufs.Len(), "every Tx buffer returned")
			assert.Zero(dev.rxBufs.Len(), "every Rx buffer attached")
			st := dev.Dma().ChanStats(0)
			assert.EqualValues(40, st.QTxPktN)
			assert.EqualValues(40, st.QRxPktN)
			assert.EqualValues(40, sim.TxFrames)
			assert.EqualValues(40, sim.RxFrames)
			assert.Zero(sim.RxDropped)
		})
	}
}

func TestDeviceLoopbackPtp(t *testing.T) {
	for _, mac := range allMacs {
		t.Run(mac.String(), func(t *testing.T) {
			assert, require := makeAR(t)
			dev, sim := newSimDevice(t, mac, 16)
			ring := dev.cfg.RxRings[0]

			// every frame uses a context slot on Rx; the slots are recycled
			for i := 0; i < 40; i++ {
				frame := udpFrame(t, ptpEventPort, 44, byte(i))
				require.NoError(dev.Send(0, frame, TxOptions{}))
				_, rx := sim.Step(0)
				require.Equal(1, rx)

				frames, _, err := dev.Receive(0, 64)
				require.NoError(err)
				require.Len(frames, 1, "frame %d", i)
				f := frames[0]
				assert.Equal(frame, f.Data())
				assert.NotZero(f.Flags&PktCxPTP, "frame %d", i)
				// one clock tick for the Tx completion and one for the receive
				assert.Equal(uint64(2000*(i+1)), f.NS)
				dev.PutFrame(f)
				assert.Equal(ring.CurRxIdx, ring.RefillIdx, "context slot refilled")

				_, err = dev.Reclaim(0, 64)
				require.NoError(err)
			}
			assert.EqualValues(40, sim.RxFrames)
			assert.Equal(16, dev.txBufs.Len())
		})
	}
}

func TestDeviceOffloads(t *testing.T) {
	for _, mac := range []MacType{MacEQOS, MacMGBE} {
		t.Run(mac.String(), func(t *testing.T) {
			assert, require := makeAR(t)
			dev, sim := newSimDevice(t, mac, 16)

			// the model assembles header and payload slots into one frame
			tso := tcpFrame(t, 500, 3)
			require.NoError(dev.Send(0, tso, TxOptions{MSS: 100}))
			vlan := udpFrame(t, 9, 100, 4)
			require.NoError(dev.Send(0, vlan, TxOptions{VlanTag: 42}))

			tx, rx := sim.Step(0)
			assert.Equal(2, tx)
			assert.Equal(2, rx)
			frames, _, err := dev.Receive(0, 64)
			require.NoError(err)
			require.Len(frames, 2)
			assert.Equal(tso, frames[0].Data())
			assert.NotZero(frames[0].Csum & ChecksumTCPv4)
			assert.Equal(vlan, frames[1].Data())

			n, err := dev.Reclaim(0, 64)
			require.NoError(err)
			assert.Equal(2, n)
			assert.Equal(16, dev.txBufs.Len())

			st := dev.Dma().Stats()
			assert.EqualValues(1, st.TxTSOPktN)
			assert.EqualValues(1, st.TxVlanPktN)
		})
	}
}

func TestDeviceSendErrors(t *testing.T) {
	assert, _ := makeAR(t)
	dev, _ := newSimDevice(t, MacMGBE, 8)

	assert.ErrorIs(dev.Send(0, make([]byte, 1553), TxOptions{}), ErrFrameTooLarge)
	assert.ErrorIs(dev.Send(3, udpFrame(t, 9, 10, 0), TxOptions{}), ErrInvalidArg)
	assert.ErrorIs(dev.Send(MaxDmaChans, udpFrame(t, 9, 10, 0), TxOptions{}), ErrInvalidArg)
	assert.ErrorIs(dev.Send(0, udpFrame(t, 9, 500, 0), TxOptions{MSS: 100}), ErrInvalidArg)
	assert.Error(dev.Send(0, []byte{1, 2, 3}, TxOptions{}))

	_, _, err := dev.Receive(MaxDmaChans, 1)
	assert.ErrorIs(err, ErrInvalidArg)
	_, err = dev.Reclaim(MaxDmaChans, 1)
	assert.ErrorIs(err, ErrInvalidArg)

	ring := dev.cfg.TxRings[0]
	assert.Zero(ring.CurTxIdx, "nothing queued")
	assert.Equal(8, dev.txBufs.Len())
}

func TestDeviceTxRingFull(t *testing.T) {
	assert, require := makeAR(t)
	dev, sim := newSimDevice(t, MacEQOS, 8)
	sim.Loopback = false

	var sent [][]byte
	for i := 0; i < 7; i++ {
		frame := udpFrame(t, 9, 32, byte(i))
		require.NoError(dev.Send(0, frame, TxOptions{}))
		sent = append(sent, frame)
	}
	assert.ErrorIs(dev.Send(0, udpFrame(t, 9, 32, 0), TxOptions{}), ErrTxRingFull)

	tx, rx := sim.Step(0)
	assert.Equal(7, tx)
	assert.Zero(rx)
	assert.Equal(sent, sim.Sent())
	assert.Empty(sim.Sent())

	// Send reclaims completed slots when the ring is full
	require.NoError(dev.Send(0, udpFrame(t, 9, 32, 7), TxOptions{}))
	assert.Equal(7, dev.txBufs.Len())
}

func TestDeviceInject(t *testing.T) {
	assert, require := makeAR(t)
	dev, sim := newSimDevice(t, MacMGBE, 8)
	sim.Loopback = false

	var frames [][]byte
	for i := 0; i < 8; i++ {
		frame := udpFrame(t, 9, 32, byte(i))
		require.True(sim.Inject(0, frame), "frame %d", i)
		frames = append(frames, frame)
	}
	assert.False(sim.Inject(0, udpFrame(t, 9, 32, 8)), "ring full")
	assert.EqualValues(1, sim.RxDropped)
	assert.False(sim.Inject(5, frames[0]), "channel not configured")

	got, more, err := dev.Receive(0, 7)
	require.NoError(err)
	assert.True(more)
	require.Len(got, 7)
	for i, f := range got {
		assert.Equal(frames[i], f.Data())
		dev.PutFrame(f)
	}

	got, more, err = dev.Receive(0, 7)
	require.NoError(err)
	assert.False(more)
	require.Len(got, 1)
	assert.Equal(frames[7], got[0].Data())

	ring := dev.cfg.RxRings[0]
	for i := uint32(0); i < ring.Size; i++ {
		assert.NotZero(ring.Word(i, 3)&Rdes3OWN, "slot %d back with hardware", i)
	}
	assert.True(sim.Inject(0, frames[0]))
}

func TestDeviceMultiChannel(t *testing.T) {
	assert, require := makeAR(t)
	dev, sim := newSimDevice(t, MacMGBET26x, 8, 2, 5)

	for _, ch := range []uint32{2, 5} {
		frame := udpFrame(t, 9, 40, byte(ch))
		require.NoError(dev.Send(ch, frame, TxOptions{}))
		tx, rx := sim.Step(ch)
		require.Equal(1, tx)
		require.Equal(1, rx)
		frames, _, err := dev.Receive(ch, 8)
		require.NoError(err)
		require.Len(frames, 1)
		assert.Equal(ch, frames[0].Chan)
		assert.Equal(frame, frames[0].Data())
	}
	tx, rx := sim.Step(0)
	assert.Zero(tx + rx)
}

func TestNewDeviceErrors(t *testing.T) {
	assert, _ := makeAR(t)

	_, err := NewDevice(nil, NewMemArena(16, 0))
	assert.ErrorIs(err, ErrInvalidArg)

	cfg := DefaultDmaConfig(MacEQOS)
	cfg.TxRingSize = 6
	_, err = NewDevice(cfg, NewMemArena(1<<20, simBusBase))
	assert.ErrorIs(err, ErrRingSize)

	// too small for the buffers
	cfg = DefaultDmaConfig(MacEQOS)
	arena := NewMemArena(4096, simBusBase)
	NewSimHW(MacEQOS, arena).Attach(cfg)
	_, err = NewDevice(cfg, arena)
	assert.Error(err)
}

func TestDeviceClose(t *testing.T) {
	assert, require := makeAR(t)
	cfg := DefaultDmaConfig(MacMGBE)
	cfg.TxRingSize, cfg.RxRingSize = 8, 8
	arena := NewMemArena(1<<20, simBusBase)
	sim := NewSimHW(MacMGBE, arena)
	sim.Attach(cfg)

	dev, err := NewDevice(cfg, arena)
	require.NoError(err)
	d := dev.Dma()
	require.NoError(dev.Close())
	assert.NoError(dev.Close())
	assert.ErrorIs(d.Transmit(0), ErrNotInitialized)
	assert.ErrorIs(Release(d), ErrStaleHandle)

	var nilDev *Device
	assert.NoError(nilDev.Close())
}

func ExampleDevice() {
	cfg := DefaultDmaConfig(MacMGBE)
	cfg.TxRingSize, cfg.RxRingSize = 16, 16
	arena := NewMemArena(1<<20, simBusBase)
	sim := NewSimHW(MacMGBE, arena)
	sim.Loopback = true
	sim.Attach(cfg)

	dev, err := NewDevice(cfg, arena)
	if err != nil {
		panic(err)
	}
	defer dev.Close()

	frame := make([]byte, 64)
	copy(frame, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 2, 0, 0, 0, 0, 1, 0x88, 0xb5})
	if err = dev.Send(0, frame, TxOptions{}); err != nil {
		panic(err)
	}
	sim.Step(0)
	frames, _, _ := dev.Receive(0, 16)
	for _, f := range frames {
		fmt.Println(f.Len(), f.Valid())
		dev.PutFrame(f)
	}
	// Output: 64 true
}
