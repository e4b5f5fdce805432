package ethdma

import (
	"fmt"
	"math/bits"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// DmaConfig is the caller-visible configuration of a Dma instance.
type DmaConfig struct {
	MacType MacType `yaml:"mac"`
	// Base is the MMIO register window of the MAC block.
	Base IO32 `yaml:"-"`

	DmaChans   []uint32 `yaml:"chans"`
	TxRingSize uint32   `yaml:"tx_ring_size"`
	RxRingSize uint32   `yaml:"rx_ring_size"`
	RxBufLen   uint32   `yaml:"rx_buf_len"`
	Mtu        uint32   `yaml:"mtu"`

	// Rx watchdog coalescing; RxRIWT is in microseconds.
	UseRIWT     bool   `yaml:"use_riwt"`
	RxRIWT      uint32 `yaml:"rx_riwt"`
	UseRxFrames bool   `yaml:"use_rx_frames"`
	RxFrames    uint32 `yaml:"rx_frames"`

	// Tx software coalescing.
	UseTxUsecs    bool   `yaml:"use_tx_usecs"`
	TxUsecs       uint32 `yaml:"tx_usecs"`
	UseTxFrames   bool   `yaml:"use_tx_frames"`
	TxFrames      uint32 `yaml:"tx_frames"`
	UseTxDescs    bool   `yaml:"use_tx_descs"`
	IntrDescCount uint32 `yaml:"intr_desc_count"`

	// Rx interrupt idle timer, T26x only.
	UseRIIT bool        `yaml:"use_riit"`
	RxRIIT  []RIITEntry `yaml:"rx_riit"`

	PtpFlag uint32       `yaml:"ptp_flag"`
	Slots   []SlotConfig `yaml:"slots"`
	PdmaMap []PdmaMap    `yaml:"pdma_map"`

	// Stripped drops reserved-buffer handling, VLAN/RSS decode, statistics,
	// moreDataAvailable and callback validation.
	Stripped bool `yaml:"stripped"`

	// ResvBufPhysAddr identifies the placeholder Rx buffer used under backpressure.
	ResvBufPhysAddr uint64 `yaml:"-"`

	TxRings [MaxDmaChans]*TxRing `yaml:"-"`
	RxRings [MaxDmaChans]*RxRing `yaml:"-"`
	Ops     OsdOps               `yaml:"-"`
}

// DefaultDmaConfig returns a single channel configuration with hardware default ring sizes.
func DefaultDmaConfig(mac MacType) *DmaConfig {
	cfg := &DmaConfig{MacType: mac}
	setDmaConfigDefaults(cfg)
	return cfg
}

func setDmaConfigDefaults(cfg *DmaConfig) {
	if len(cfg.DmaChans) == 0 {
		cfg.DmaChans = []uint32{0}
	}
	def := uint32(EqosDefaultRingSize)
	if cfg.MacType != MacEQOS {
		def = MgbeDefaultRingSize
	}
	if cfg.TxRingSize == 0 {
		cfg.TxRingSize = def
	}
	if cfg.RxRingSize == 0 {
		cfg.RxRingSize = def
	}
	if cfg.Mtu == 0 {
		cfg.Mtu = 1500
	}
	if cfg.RxBufLen == 0 {
		cfg.RxBufLen, _ = RxBufLenForMtu(cfg.Mtu)
	}
	if cfg.PtpFlag == 0 {
		cfg.PtpFlag = PtpSyncSlave | PtpSyncTwoStep
	}
}

// LoadConfig reads a YAML DmaConfig and fills unset fields with defaults.
func LoadConfig(path string) (*DmaConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &DmaConfig{}
	if err = yaml.Unmarshal(body, cfg); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal %s: %w", path, err)
	}
	setDmaConfigDefaults(cfg)
	return cfg, nil
}

// UnmarshalYAML accepts a MAC type by name.
func (m *MacType) UnmarshalYAML(node *yaml.Node) error {
	switch node.Value {
	case "eqos", "0":
		*m = MacEQOS
	case "mgbe", "1":
		*m = MacMGBE
	case "mgbe-t26x", "2":
		*m = MacMGBET26x
	default:
		return fmt.Errorf("unknown MAC type %q", node.Value)
	}
	return nil
}

// MarshalYAML writes a MAC type by name.
func (m MacType) MarshalYAML() (any, error) {
	return m.String(), nil
}

// ParseMacType converts a name such as "eqos" into a MacType.
func ParseMacType(name string) (m MacType, err error) {
	err = m.UnmarshalYAML(&yaml.Node{Value: name})
	return m, err
}

// SetRxBufLen sets Mtu and the matching RxBufLen.
func (cfg *DmaConfig) SetRxBufLen(mtu uint32) error {
	l, err := RxBufLenForMtu(mtu)
	if err != nil {
		return err
	}
	cfg.Mtu, cfg.RxBufLen = mtu, l
	return nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && bits.OnesCount32(v) == 1
}

// maxRingSize returns the largest ring a MAC generation accepts.
func maxRingSize(mac MacType) uint32 {
	if mac == MacEQOS {
		return EqosMaxRingSize
	}
	return MgbeMaxRingSize
}

func validateRingSize(mac MacType, size uint32) error {
	if !isPowerOfTwo(size) || size < HwMinRingSize || size > maxRingSize(mac) {
		return fmt.Errorf("%w: %d for %s", ErrRingSize, size, mac)
	}
	return nil
}

// Validate checks the static parts of the configuration.
// Hardware dependent checks, such as the channel limit of the MAC version, happen in InitHardware.
func (cfg *DmaConfig) Validate() error {
	var errs []error
	if cfg.MacType >= macTypeMax {
		errs = append(errs, fmt.Errorf("%w: MAC type %d", ErrInvalidArg, cfg.MacType))
	} else {
		errs = append(errs,
			validateRingSize(cfg.MacType, cfg.TxRingSize),
			validateRingSize(cfg.MacType, cfg.RxRingSize),
		)
	}
	if len(cfg.DmaChans) == 0 || len(cfg.DmaChans) > MaxDmaChans {
		errs = append(errs, fmt.Errorf("%w: %d channels", ErrInvalidArg, len(cfg.DmaChans)))
	}
	for _, ch := range cfg.DmaChans {
		if ch >= MaxDmaChans {
			errs = append(errs, fmt.Errorf("%w: channel %d", ErrInvalidArg, ch))
		}
	}
	if cfg.Mtu > maxMtuSize {
		errs = append(errs, fmt.Errorf("%w: MTU %d", ErrInvalidArg, cfg.Mtu))
	}
	if cfg.UseRxFrames && !cfg.UseRIWT {
		errs = append(errs, fmt.Errorf("%w: rx_frames requires use_riwt", ErrInvalidArg))
	}
	if cfg.UseTxFrames && !cfg.UseTxUsecs {
		errs = append(errs, fmt.Errorf("%w: tx_frames requires use_tx_usecs", ErrInvalidArg))
	}
	if cfg.UseTxDescs && !cfg.UseTxUsecs {
		errs = append(errs, fmt.Errorf("%w: use_tx_descs requires use_tx_usecs", ErrInvalidArg))
	}
	if (cfg.UseRxFrames && cfg.RxFrames == 0) || (cfg.UseTxFrames && cfg.TxFrames == 0) ||
		(cfg.UseTxDescs && cfg.IntrDescCount == 0) {
		errs = append(errs, fmt.Errorf("%w: zero coalescing threshold", ErrInvalidArg))
	}
	for _, s := range cfg.Slots {
		if s.Interval > slotIntvlMax {
			errs = append(errs, fmt.Errorf("%w: slot interval %d on channel %d", ErrInvalidArg, s.Interval, s.Chan))
		}
	}
	return multierr.Combine(errs...)
}
