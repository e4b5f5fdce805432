package ethdma

import (
	"testing"
)

func TestSetInterrupt(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacMGBE, 8, nil, 0, 3)

	assert.Equal(uint32(0x3), r.regs.Peek(virtIntrCtrl(0)))
	assert.Equal(uint32(0x3), r.regs.Peek(virtIntrCtrl(3)))

	r.regs.Tracing = true
	require.NoError(r.d.SetInterrupt(3, DmaChRxIntr, false))
	assert.Equal(uint32(0x1), r.regs.Peek(virtIntrCtrl(3)))
	assert.Equal(1, countWrites(r.regs.Writes(), virtIntrCtrl(3)))
	assert.Zero(countWrites(r.regs.Writes(), virtIntrStatus(3)), "nothing pending")

	require.NoError(r.d.SetInterrupt(3, DmaChRxIntr, true))
	assert.Equal(uint32(0x3), r.regs.Peek(virtIntrCtrl(3)))

	assert.ErrorIs(r.d.SetInterrupt(3, 2, true), ErrInvalidArg)
	assert.ErrorIs(r.d.SetInterrupt(MgbeT23xMaxChans, DmaChTxIntr, true), ErrInvalidArg)
}

func TestSetInterruptAcksPending(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 8, nil)
	r.regs.Poke(virtIntrStatus(0), 0x2)
	r.regs.Tracing = true

	require.NoError(r.d.SetInterrupt(0, DmaChRxIntr, false))
	writes := r.regs.Writes()
	require.Len(writes, 3)
	assert.Equal(Access{AccessWrite, eqosRegs.at(0, eqosDmaChStatus), dmaChStatusClrRx}, writes[0])
	assert.Equal(Access{AccessWrite, virtIntrStatus(0), 0x2}, writes[1])
	assert.Equal(Access{AccessWrite, virtIntrCtrl(0), 0x1}, writes[2])

	r.regs.ResetTrace()
	r.regs.Poke(virtIntrStatus(0), 0x1)
	require.NoError(r.d.SetInterrupt(0, DmaChTxIntr, false))
	assert.Equal(uint32(dmaChStatusClrTx), r.regs.Writes()[0].Val)
}

func TestSetInterruptRetries(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 8, nil)
	ctrl := virtIntrCtrl(0)
	r.regs.Poke(ctrl, 0)

	r.regs.WriteHook = func(off, val uint32) uint32 {
		if off == ctrl {
			return 0
		}
		return val
	}
	r.regs.Tracing = true
	err := r.d.SetInterrupt(0, DmaChTxIntr, true)
	assert.ErrorIs(err, ErrIntrNotApplied)
	assert.Equal(intrRetryCount, countWrites(r.regs.Writes(), ctrl))

	// the write lands on the third attempt
	tries := 0
	r.regs.WriteHook = func(off, val uint32) uint32 {
		if off == ctrl {
			tries++
			if tries < 3 {
				return 0
			}
		}
		return val
	}
	r.regs.ResetTrace()
	require.NoError(r.d.SetInterrupt(0, DmaChTxIntr, true))
	assert.Equal(3, countWrites(r.regs.Writes(), ctrl))
	assert.Equal(uint32(0x1), r.regs.Peek(ctrl))
}

func TestInitHardwareInterruptFailure(t *testing.T) {
	assert, _ := makeAR(t)
	r := newRigConfig(MacEQOS, 8)
	r.regs.WriteHook = func(off, val uint32) uint32 {
		if off == virtIntrCtrl(0) {
			return 0
		}
		return val
	}
	d := acquireForTest(t)
	assert.ErrorIs(d.InitHardware(r.cfg), ErrIntrNotApplied)
	_, err := d.GlobalDmaStatus()
	assert.ErrorIs(err, ErrNotInitialized)
}

func TestGlobalDmaStatus(t *testing.T) {
	assert, require := makeAR(t)
	for mac, n := range map[MacType]int{MacEQOS: 1, MacMGBE: 1, MacMGBET26x: 3} {
		r := newRig(t, mac, 8, nil)
		for i := 0; i < 3; i++ {
			r.regs.Poke(globalDmaStatus+4*uint32(i), uint32(0x10+i))
		}
		st, err := r.d.GlobalDmaStatus()
		require.NoError(err)
		require.Len(st, n, "%s", mac)
		for i, v := range st {
			assert.Equal(uint32(0x10+i), v)
		}
	}
}
