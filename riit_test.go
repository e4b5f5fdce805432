package ethdma

import (
	"math"
	"testing"
)

func TestRiitToItw(t *testing.T) {
	assert, _ := makeAR(t)
	itw, ok := riitToItw(1000)
	assert.True(ok)
	assert.EqualValues(1, itw)

	itw, ok = riitToItw(2000)
	assert.True(ok)
	assert.EqualValues(3, itw)

	itw, ok = riitToItw(8000000)
	assert.True(ok)
	assert.LessOrEqual(itw, uint32(mgbeItwMax))

	_, ok = riitToItw(math.MaxUint32)
	assert.False(ok)
}

func TestSetRxRIIT(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacMGBET26x, 8, func(cfg *DmaConfig) {
		cfg.UseRIIT = true
		cfg.RxRIIT = []RIITEntry{{Speed: 10000, RIIT: 2000}, {Speed: 25000, RIIT: 1000}}
	}, 0, 5)
	wdt := func(ch uint32) uint32 { return r.regs.Peek(mgbeRegs.at(ch, mgbeDmaChRxWdt)) }
	r.regs.Poke(mgbeRegs.at(5, mgbeDmaChRxWdt), 0xFF)

	require.NoError(r.d.SetRxRIIT(10000))
	assert.Equal(uint32(3<<mgbeItwShift), wdt(0))
	assert.Equal(uint32(3<<mgbeItwShift|0xFF), wdt(5))

	require.NoError(r.d.Ioctl(&IoctlData{Cmd: IoctlRxRIITConfig, Arg: 25000}))
	assert.Equal(uint32(1<<mgbeItwShift), wdt(0))

	// unknown speed: 1us default
	require.NoError(r.d.SetRxRIIT(100))
	assert.Equal(uint32(1<<mgbeItwShift), wdt(0))

	assert.ErrorIs(r.d.Ioctl(&IoctlData{Cmd: 99}), ErrInvalidArg)
	assert.ErrorIs(r.d.Ioctl(nil), ErrInvalidArg)
}

func TestSetRxRIITIgnored(t *testing.T) {
	assert, require := makeAR(t)
	for _, mac := range []MacType{MacEQOS, MacMGBE} {
		r := newRig(t, mac, 8, func(cfg *DmaConfig) { cfg.UseRIIT = true })
		r.regs.Tracing = true
		require.NoError(r.d.SetRxRIIT(10000))
		assert.Empty(r.regs.Writes(), "%s", mac)
	}

	r := newRig(t, MacMGBET26x, 8, nil)
	r.regs.Tracing = true
	require.NoError(r.d.SetRxRIIT(10000))
	assert.Empty(r.regs.Writes())

	d := acquireForTest(t)
	assert.ErrorIs(d.SetRxRIIT(10000), ErrNotInitialized)
}
