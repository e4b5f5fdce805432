package ethdma

import (
	"math/rand"
	"testing"
)

func TestTransmitSingleDescriptor(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 4, nil)
	ring := r.cfg.TxRings[0]

	r.queue(0, TxPktContext{Flags: PktCxCSUM}, 60)
	r.mem.Tracing, r.regs.Tracing = true, true
	require.NoError(r.d.Transmit(0))

	d := ring.Load(0)
	assert.Equal(uint32(rigPktPhys), d[0])
	assert.Zero(d[1])
	assert.Equal(uint32(60|Tdes2IOC), d[2])
	assert.Equal(uint32(Tdes3OWN|Tdes3FD|Tdes3LD|Tdes3HwCicAll), d[3])
	for i := uint32(1); i < ring.Size; i++ {
		assert.Equal(Desc{}, ring.Load(i))
	}

	writes := r.mem.Writes()
	assert.Len(writes, 5)
	assertOwnLast(t, writes, &ring.DescRing)

	regw := r.regs.Writes()
	require.Len(regw, 1)
	assert.Equal(eqosRegs.at(0, eqosDmaChTDTP), regw[0].Off)
	assert.Equal(uint32(rigTxPhys+DescSize), regw[0].Val)
	assert.EqualValues(1, ring.CurTxIdx)
	assert.False(r.d.TxRingEmpty(0))
}

func TestTransmitTSO(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacMGBE, 8, nil)
	ring := r.cfg.TxRings[0]

	r.queue(0, TxPktContext{
		Flags:        PktCxTSO,
		MSS:          1448,
		TCPUDPHdrLen: 20,
		TotalHdrLen:  54,
		PayloadLen:   4000,
	}, invalidValue, 54, 4000)
	r.mem.Tracing = true
	require.NoError(r.d.Transmit(0))

	ctx := ring.Load(0)
	assert.Equal(uint32(1448), ctx[2])
	assert.Equal(uint32(Tdes3OWN|Tdes3CTXT|Tdes3TCMSSV), ctx[3])

	first := ring.Load(1)
	assert.Equal(uint32(rigPktPhys+0x1000), first[0])
	assert.Equal(uint32(54), first[2])
	assert.Equal(uint32(Tdes3OWN|Tdes3FD|Tdes3TSE|5<<Tdes3THLShift|4000), first[3])

	last := ring.Load(2)
	assert.Equal(uint32(4000|Tdes2IOC), last[2])
	assert.Equal(uint32(Tdes3OWN|Tdes3LD), last[3])

	writes := r.mem.Writes()
	assertOwnLast(t, writes, &ring.DescRing)
	ownLast := ownWriteIndex(writes, &ring.DescRing, 2)
	ownFirst := ownWriteIndex(writes, &ring.DescRing, 1)
	ownCtx := ownWriteIndex(writes, &ring.DescRing, 0)
	assert.Less(ownLast, ownFirst)
	assert.Less(ownFirst, ownCtx)
	assert.Equal(len(writes)-1, ownCtx)

	assert.EqualValues(3, ring.CurTxIdx)
	assert.EqualValues(1, r.d.Stats().TxTSOPktN)
	assert.Equal(uint32(rigTxPhys+3*DescSize), r.regs.Peek(mgbeRegs.at(0, mgbeDmaChTDTLP)))
}

func TestTransmitRejectsOversizedFields(t *testing.T) {
	cases := map[string]TxPktContext{
		"mss":        {Flags: PktCxTSO, MSS: Tdes2MSSMask + 1, TCPUDPHdrLen: 20, PayloadLen: 100},
		"header":     {Flags: PktCxTSO, MSS: 1000, TCPUDPHdrLen: 64, PayloadLen: 100},
		"payload":    {Flags: PktCxTSO, MSS: 1000, TCPUDPHdrLen: 20, PayloadLen: Tdes3TPLMask + 1},
		"frame len":  {Flags: PktCxLen, PayloadLen: Tdes3PLMask + 1},
		"vlan tag":   {Flags: PktCxVLAN, VTagID: 0x10000},
		"vlan field": {VTagID: 0x10000},
	}
	for name, cx := range cases {
		t.Run(name, func(t *testing.T) {
			assert, require := makeAR(t)
			r := newRig(t, MacMGBE, 8, nil)
			r.queue(0, cx, invalidValue, 54, 100)
			r.mem.Tracing, r.regs.Tracing = true, true

			require.ErrorIs(r.d.Transmit(0), ErrTxContext)
			assert.Empty(r.mem.Writes())
			assert.Empty(r.regs.Writes())
			assert.Zero(r.cfg.TxRings[0].CurTxIdx)
			assert.Zero(r.d.Stats().TxTSOPktN)
		})
	}
}

func TestTransmitBadDescCount(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 4, nil)
	ring := r.cfg.TxRings[0]
	r.mem.Tracing = true

	ring.PktCx = TxPktContext{}
	require.ErrorIs(r.d.Transmit(0), ErrInvalidArg)

	ring.PktCx = TxPktContext{DescCnt: 5}
	require.ErrorIs(r.d.Transmit(0), ErrInvalidArg)

	// a context descriptor needs a data descriptor behind it
	r.queue(0, TxPktContext{Flags: PktCxVLAN, VTagID: 5}, invalidValue)
	require.ErrorIs(r.d.Transmit(0), ErrInvalidArg)
	assert.Empty(r.mem.Writes())

	require.ErrorIs(r.d.Transmit(MaxDmaChans), ErrInvalidArg)
}

func TestTransmitVlanContext(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 8, nil)
	ring := r.cfg.TxRings[0]

	cx := TxPktContext{Flags: PktCxVLAN, VTagID: 0x64}
	assert.True(r.d.NeedsContextDesc(&cx))
	r.queue(0, cx, invalidValue, 64)
	r.mem.Tracing = true
	require.NoError(r.d.Transmit(0))

	assert.Equal(uint32(Tdes3OWN|Tdes3CTXT|Tdes3VLTV|0x64), ring.Load(0)[3])
	assert.EqualValues(vlanHdrLen, ring.Swcx[0].Len)
	assert.NotZero(ring.Load(1)[2] & Tdes2VTIR)
	assert.EqualValues(1, r.d.Stats().TxVlanPktN)
	assertOwnLast(t, r.mem.Writes(), &ring.DescRing)
}

func TestTransmitPtp(t *testing.T) {
	t.Run("eqos two-step", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacEQOS, 8, nil)
		cx := TxPktContext{Flags: PktCxPTP}
		assert.False(r.d.NeedsContextDesc(&cx))

		r.queue(0, cx, 90)
		require.NoError(r.d.Transmit(0))
		d := r.cfg.TxRings[0].Load(0)
		assert.NotZero(d[2] & Tdes2TTSE)
		assert.Equal(uint32(Tdes3OWN|Tdes3FD|Tdes3LD), d[3])
	})

	t.Run("eqos one-step master", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacEQOS, 8, func(cfg *DmaConfig) {
			cfg.PtpFlag = PtpSyncMaster | PtpSyncOneStep
		})
		r.queue(0, TxPktContext{Flags: PktCxPTP}, invalidValue, 90)
		require.NoError(r.d.Transmit(0))
		ring := r.cfg.TxRings[0]
		assert.Equal(uint32(Tdes3OWN|Tdes3CTXT|Tdes3OSTC), ring.Load(0)[3])
		assert.Zero(ring.Load(1)[2] & Tdes2TTSE)
	})

	t.Run("mgbe packet id", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacMGBE, 8, nil)
		ring := r.cfg.TxRings[0]
		for i := uint32(1); i <= 2; i++ {
			r.queue(0, TxPktContext{Flags: PktCxPTP}, invalidValue, 90)
			require.NoError(r.d.Transmit(0))
			ctxIdx := (i - 1) * 2
			want := i | 1<<pktIDChanShift
			ctx := ring.Load(ctxIdx)
			assert.Equal(want, ctx[0])
			assert.Equal(uint32(Tdes3OWN|Tdes3CTXT|Tdes3PIDV), ctx[3])
			swcx := ring.Swcx[ctxIdx+1]
			assert.EqualValues(PktCxPTP, swcx.Flags)
			assert.Equal(want, swcx.PktID)
			assert.NotZero(ring.Load(ctxIdx+1)[2] & Tdes2TTSE)
		}
	})

	t.Run("t26x vdma id", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacMGBET26x, 8, nil, 2)
		ring := r.cfg.TxRings[2]
		r.queue(2, TxPktContext{Flags: PktCxPTP}, invalidValue, 90)
		require.NoError(r.d.Transmit(2))
		assert.Equal(uint32(2<<ptpVdmaShift|1), ring.Load(0)[0])
		assert.EqualValues(1, ring.Swcx[1].PktID)
		assert.EqualValues(2, ring.Swcx[1].VdmaID)
	})
}

func TestTransmitCoalescing(t *testing.T) {
	t.Run("frames", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacEQOS, 8, func(cfg *DmaConfig) {
			cfg.UseTxUsecs, cfg.UseTxFrames, cfg.TxFrames = true, true, 2
		})
		ring := r.cfg.TxRings[0]
		for i := uint32(0); i < 4; i++ {
			r.queue(0, TxPktContext{}, 60)
			require.NoError(r.d.Transmit(0))
			ioc := ring.Load(i)[2]&Tdes2IOC != 0
			assert.Equal(i%2 == 1, ioc, "packet %d", i)
		}
	})

	t.Run("descriptors", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacEQOS, 8, func(cfg *DmaConfig) {
			cfg.UseTxUsecs, cfg.UseTxDescs, cfg.IntrDescCount = true, true, 3
		})
		ring := r.cfg.TxRings[0]
		for i := uint32(0); i < 6; i++ {
			r.queue(0, TxPktContext{}, 60)
			require.NoError(r.d.Transmit(0))
			ioc := ring.Load(i)[2]&Tdes2IOC != 0
			assert.Equal(i%3 == 2, ioc, "packet %d", i)
		}
	})

	t.Run("ptp bypasses descriptor coalescing", func(t *testing.T) {
		assert, require := makeAR(t)
		r := newRig(t, MacEQOS, 8, func(cfg *DmaConfig) {
			cfg.UseTxUsecs, cfg.UseTxDescs, cfg.IntrDescCount = true, true, 100
		})
		r.queue(0, TxPktContext{Flags: PktCxPTP}, 60)
		require.NoError(r.d.Transmit(0))
		assert.NotZero(r.cfg.TxRings[0].Load(0)[2] & Tdes2IOC)
		assert.Zero(r.cfg.TxRings[0].DescCnt)
	})
}

func TestTxRingIndexInvariant(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 8, nil)
	ring := r.cfg.TxRings[0]
	rng := rand.New(rand.NewSource(1))

	for step := 0; step < 500; step++ {
		free := ring.Size - ringDistance(ring.CleanIdx, ring.CurTxIdx, ring.Size) - 1
		if free > 0 && rng.Intn(3) != 0 {
			r.queue(0, TxPktContext{}, 60)
			require.NoError(r.d.Transmit(0))
		} else {
			if rng.Intn(2) == 0 {
				r.releaseTx(0)
			}
			_, err := r.d.ProcessTxCompletions(0, 1+rng.Intn(4))
			require.NoError(err)
		}
		assert.Less(ringDistance(ring.CleanIdx, ring.CurTxIdx, ring.Size), ring.Size)
		assert.Equal(ring.CleanIdx == ring.CurTxIdx, r.d.TxRingEmpty(0))
	}

	r.releaseTx(0)
	_, err := r.d.ProcessTxCompletions(0, int(ring.Size))
	require.NoError(err)
	assert.True(r.d.TxRingEmpty(0))
}

func TestTransmitSlotNumber(t *testing.T) {
	assert, require := makeAR(t)
	r := newRig(t, MacEQOS, 32, func(cfg *DmaConfig) {
		cfg.Slots = []SlotConfig{{Chan: 1, Interval: 125}}
	}, 0, 1)
	require.NoError(r.d.ConfigSlotFunction(true))
	ring := r.cfg.TxRings[1]
	assert.True(ring.SlotCheck)
	assert.False(r.cfg.TxRings[0].SlotCheck)

	for i := uint32(0); i < slotNumMax+1; i++ {
		r.queue(1, TxPktContext{}, 60)
		require.NoError(r.d.Transmit(1))
		assert.Equal((i%slotNumMax)<<Tdes3THLShift, ring.Load(i)[3]&(0xF<<Tdes3THLShift), "packet %d", i)
	}
}

func TestNextPktIDWraps(t *testing.T) {
	assert, _ := makeAR(t)
	r := newRig(t, MacMGBE, 8, nil)
	r.d.pktID.Store(0xFFFFFFFF)
	id, vdma := r.d.nextPktID(3)
	assert.Equal(uint32(4<<pktIDChanShift), id)
	assert.Zero(vdma)
	id, _ = r.d.nextPktID(3)
	assert.Equal(uint32(1|4<<pktIDChanShift), id)

	t26x := newRig(t, MacMGBET26x, 8, nil)
	t26x.d.pktID.Store(pktIDCntT26x - 1)
	id, vdma = t26x.d.nextPktID(5)
	assert.Zero(id)
	assert.EqualValues(5, vdma)
}
