package ethdma

// MacType selects the hardware generation driven by a Dma instance.
type MacType uint32

const (
	MacEQOS     MacType = 0 // legacy EQOS MAC
	MacMGBE     MacType = 1 // MGBE as found on T23x
	MacMGBET26x MacType = 2 // MGBE with VDMA/PDMA fabric, T26x
	macTypeMax  MacType = 3
)

func (m MacType) String() string {
	switch m {
	case MacEQOS:
		return "eqos"
	case MacMGBE:
		return "mgbe"
	case MacMGBET26x:
		return "mgbe-t26x"
	}
	return "unknown"
}

// Channel and instance limits.
const (
	EqosMaxChans     = 8
	EqosXPMaxChans   = 4
	MgbeT23xMaxChans = 10
	MgbeMaxChans     = 48
	MaxDmaChans      = MgbeMaxChans
	// MaxDmaInstances is the capacity of the process-wide instance pool.
	MaxDmaInstances = MgbeMaxChans
)

// Ring sizes.
const (
	HwMinRingSize       = 4
	EqosDefaultRingSize = 1024
	EqosMaxRingSize     = 1024
	MgbeDefaultRingSize = 4096
	MgbeMaxRingSize     = 16384

	// DescSize is the size in bytes of one hardware descriptor.
	DescSize = 16
)

// MAC versions reported by MAC_VERSION[6:0].
const (
	macVersionReg    = 0x110
	macVersionMask   = 0x7F
	EqosMac500       = 0x50
	EqosMac530       = 0x53
	EqosMac540       = 0x54
	MgbeMac310       = 0x31
	MgbeMac320       = 0x32
	MgbeMac400       = 0x40
	MgbeMac420       = 0x42
	macCoreEqos      = 0
	macCoreEqos530   = 1
	macCoreMgbe      = 2
	invalidValue     = 0xFFFFFFFF
	nsecPerSec       = 1000000000
	ethHdrLen        = 14
	vlanHdrLen       = 4
	maxMtuSize       = 16383
	rxBufHeadroom    = 30
	axiBusWidth      = 16
	ptpRetryCount    = 10
	intrRetryCount   = 10
	delay1us         = 1
	slotIntvlMax     = 4095
	slotIntvlDefault = 125
	slotNumMax       = 16
)

// Tx descriptor bits, read format and context format.
const (
	Tdes2IOC     = 1 << 31
	Tdes2TTSE    = 1 << 30
	Tdes2VTIR    = 0x2 << 14
	Tdes2MSSMask = 0x3FFF
	Tdes2LenMask = 0x3FFF

	Tdes3OWN          = 1 << 31
	Tdes3CTXT         = 1 << 30
	Tdes3FD           = 1 << 29
	Tdes3LD           = 1 << 28
	Tdes3OSTC         = 1 << 27
	Tdes3TCMSSV       = 1 << 26
	Tdes3PIDV         = 1 << 25
	Tdes3TSE          = 1 << 18
	Tdes3TTSS         = 1 << 17
	Tdes3VLTV         = 1 << 16
	Tdes3HwCicAll     = 0x3 << 16
	Tdes3HwCicIPOnly  = 0x1 << 16
	Tdes3THLShift     = 19
	Tdes3THLMask      = 0xF
	Tdes3TPLMask      = 0x3FFFF
	Tdes3PLMask       = 0x7FFF
	Tdes3VTMask       = 0xFFFF
	Tdes3IPHeaderErr  = 1 << 0
	Tdes3UnderflowErr = 1 << 2
	Tdes3ExcDefErr    = 1 << 3
	Tdes3ExcColErr    = 1 << 8
	Tdes3LateColErr   = 1 << 9
	Tdes3NoCarrierErr = 1 << 10
	Tdes3LossCarrErr  = 1 << 11
	Tdes3PLChkSumErr  = 1 << 12
	Tdes3PktFlushErr  = 1 << 13
	Tdes3JabberTOErr  = 1 << 14
	Tdes3ESBits       = Tdes3IPHeaderErr | Tdes3UnderflowErr | Tdes3ExcDefErr |
		Tdes3ExcColErr | Tdes3LateColErr | Tdes3NoCarrierErr | Tdes3LossCarrErr |
		Tdes3PLChkSumErr | Tdes3PktFlushErr | Tdes3JabberTOErr
)

// Rx descriptor bits shared by both generations.
const (
	Rdes3OWN    = 1 << 31
	Rdes3CTXT   = 1 << 30
	Rdes3IOC    = 1 << 30
	Rdes3FD     = 1 << 29
	Rdes3LD     = 1 << 28
	Rdes3CDA    = 1 << 27
	Rdes3RS1V   = 1 << 26
	Rdes3RSV    = 1 << 26
	Rdes3RS0V   = 1 << 25
	Rdes3B1V    = 1 << 24
	Rdes3ES     = 1 << 15
	Rdes3PktLen = 0x7FFF
	Rdes3TSA    = 1 << 4
	Rdes3TSD    = 1 << 6
	Rdes0OVT    = 0xFFFF
)

// Legacy MAC Rx write-back bits.
const (
	Rdes3ErrCRC  = 1 << 24
	Rdes3ErrGP   = 1 << 23
	Rdes3ErrWD   = 1 << 22
	Rdes3ErrORun = 1 << 21
	Rdes3ErrRE   = 1 << 20
	Rdes3ErrDrib = 1 << 19
	Rdes3ESBits  = Rdes3ErrCRC | Rdes3ErrGP | Rdes3ErrWD | Rdes3ErrORun | Rdes3ErrRE | Rdes3ErrDrib
	Rdes3LT      = 0x7 << 16
	Rdes3LTVT    = 0x4 << 16
	Rdes3LTDVT   = 0x5 << 16
	Rdes1IPCE    = 1 << 7
	Rdes1IPCB    = 1 << 6
	Rdes1IPV6    = 1 << 5
	Rdes1IPV4    = 1 << 4
	Rdes1IPHE    = 1 << 3
	Rdes1PTMask  = 0x7
	Rdes1PTUDP   = 0x1
	Rdes1PTTCP   = 0x2
	Rdes1TSA     = 1 << 14
	Rdes1TD      = 1 << 15
)

// MGBE Rx write-back bits.
const (
	Rdes3ELLT        = 0xF << 16
	Rdes3ELLTCRC     = 0x3 << 16
	Rdes3ELLTIPHE    = 0x5 << 16
	Rdes3ELLTCsumErr = 0x6 << 16
	Rdes3ELLTCVLAN   = 0x9 << 16
	Rdes3L34T        = 0xF << 20
	Rdes3L34TIPv4TCP = 0x1 << 20
	Rdes3L34TIPv4UDP = 0x2 << 20
	Rdes3L34TIPv6TCP = 0x9 << 20
	Rdes3L34TIPv6UDP = 0xA << 20
	Rdes3FRPSL       = 1 << 14
	Rdes2FRPSM       = 1 << 10
	Rdes3PTMask      = 0x7 << 20
	Rdes3PTIPv4TCP   = 0x1 << 20
	Rdes3PTIPv4UDP   = 0x2 << 20
	Rdes3PTIPv6TCP   = 0x5 << 20
	Rdes3PTIPv6UDP   = 0x6 << 20
)

// Legacy MAC per-channel DMA registers, base + 0x80 * chan.
const (
	eqosDmaChBase     = 0x1100
	eqosDmaChCtrl     = 0x00
	eqosDmaChTxCtrl   = 0x04
	eqosDmaChRxCtrl   = 0x08
	eqosDmaChTDLH     = 0x10
	eqosDmaChTDLA     = 0x14
	eqosDmaChRDLH     = 0x18
	eqosDmaChRDLA     = 0x1C
	eqosDmaChTDTP     = 0x20
	eqosDmaChRDTP     = 0x28
	eqosDmaChTDRL     = 0x2C
	eqosDmaChRDRL     = 0x30
	eqosDmaChIntrEna  = 0x34
	eqosDmaChRxWdt    = 0x38
	eqosDmaChSlotCtrl = 0x3C
	eqosDmaChCARD     = 0x4C
	eqosDmaChStatus   = 0x60

	eqosDmaDebugStatus0 = 0x100C
	eqosDmaDebugStatus1 = 0x1010
	eqosDmaDebugStatus2 = 0x1014
	eqosRPSxMask        = 0xF
	eqosRPSxRunCRD      = 0x5

	eqosMacSTSR  = 0xB08
	eqosMacSTNSR = 0xB0C

	eqosAxiClkFreq     = 125000000
	eqosRingLenMask    = 0x3FF
	eqosTxPBLRecommend = 0x200000
	eqosRxPBLRecommend = 0xC0000
	eqosTxCtrlOSF      = 1 << 4
	eqosTxCtrlTSE      = 1 << 12
	eqosRBSZShift      = 1
	eqosRBSZMask       = 0x7FFE
	eqosRwtMask        = 0xFF
	eqosRwtuMask       = 0x30000
	eqosRwtu512Cycle   = 0x10000
	eqosRwtu           = 512
	eqosSlotSIVMask    = 0xFFF
	eqosSlotSIVShift   = 4
	eqosSlotESC        = 0x1
)

// MGBE per-channel DMA registers, base + 0x80 * chan.
const (
	mgbeDmaChBase           = 0x3100
	mgbeDmaChCtrl           = 0x00
	mgbeDmaChTxCtrl         = 0x04
	mgbeDmaChRxCtrl         = 0x08
	mgbeDmaChTDLH           = 0x10
	mgbeDmaChTDLA           = 0x14
	mgbeDmaChRDLH           = 0x18
	mgbeDmaChRDLA           = 0x1C
	mgbeDmaChTDTLP          = 0x24
	mgbeDmaChTxCntrl2       = 0x28
	mgbeDmaChRDTLP          = 0x2C
	mgbeDmaChRxCntrl2       = 0x30
	mgbeDmaChIntrEna        = 0x38
	mgbeDmaChRxWdt          = 0x3C
	mgbeDmaChStatus         = 0x60
	mgbeDmaChRxDescWrRngOff = 0x7C

	mgbeMacSTSR  = 0xD08
	mgbeMacSTNSR = 0xD0C

	mgbeAxiClkFreq       = 480000000
	mgbeRingLenMask      = 0x3FFF
	mgbeTxPBLRecommend   = 0x200000
	mgbeTxCtrlOSP        = 1 << 4
	mgbeTxCtrlTSE        = 1 << 12
	mgbeRBSZShift        = 1
	mgbeRBSZMask         = 0x7FFE
	mgbeRwtMask          = 0xFF
	mgbeRwtuMask         = 0x3000
	mgbeRwtu2048Cycle    = 0x3000
	mgbeRwtu             = 2048
	mgbeItwShift         = 16
	mgbeItwMask          = 0xFFF << 16
	mgbeItwMax           = 0xFFF
	mgbeItcu             = 256
	mgbeRiitDefault      = 1000 // ns
	mgbeOrrqRecommended  = 64
	mgbeOrrqShift        = 24
	mgbeOwrqSChan        = 32
	mgbeOwrqMChan        = 64
	mgbeOwrqShift        = 24
	mgbeRwdcShift        = 16
	mgbeTxVdmaTCShift    = 16
	mgbeTxVdmaTCMask     = 0x7 << 16
	mgbeRxVdmaTCShift    = 16
	mgbeRxVdmaTCMask     = 0x7 << 16
	mgbeT26xGlobalStatus = 3
	mgbeRxPBLShift       = 16
	mgbeRxqSize          = 65536
	mgbeMaxQueues        = 10
)

// Registers shared by both generations.
const (
	dmaChCtrlPBLx8   = 1 << 16
	dmaChIntrTIE     = 1 << 0
	dmaChIntrRIE     = 1 << 6
	dmaChStatusTI    = 1 << 0
	dmaChStatusRI    = 1 << 6
	dmaChStatusNIS   = 1 << 15
	dmaChStatusClrTx = dmaChStatusTI | dmaChStatusNIS
	dmaChStatusClrRx = dmaChStatusRI | dmaChStatusNIS
	dmaChStart       = 1 << 0
	dmaChRxCtrlRPF   = 1 << 31
	virtIntrChCtrl   = 0x8600
	virtIntrChStatus = 0x8604
	virtIntrChStride = 8
	globalDmaStatus  = 0x8700
	macSTNSRTSSSMask = 0x7FFFFFFF
	ptpVdmaShift     = 10
	pktIDChanShift   = 6
	pktIDCnt         = 1 << 6
	pktIDCntT26x     = 1 << 10
)
