package ethdma

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StatsMap exports per-channel counters through a BPF array map keyed by
// channel number, so that other processes can read them from bpffs.
type StatsMap struct {
	m    *ebpf.Map
	path string
}

// NewStatsMap creates the BPF map, one ChanStats entry per DMA channel.
func NewStatsMap(name string) (*StatsMap, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("rlimit.RemoveMemlock failed: %w", err)
	}
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       name,
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  32,
		MaxEntries: MaxDmaChans,
	})
	if err != nil {
		return nil, fmt.Errorf("ebpf.NewMap %s: %w", name, err)
	}
	return &StatsMap{m: m}, nil
}

// OpenStatsMap opens a map pinned by another process with Pin.
func OpenStatsMap(name string) (*StatsMap, error) {
	dir, err := getBpffsDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, fmt.Errorf("ebpf.LoadPinnedMap %s: %w", path, err)
	}
	return &StatsMap{m: m, path: path}, nil
}

// Pin pins the map as <bpffs>/ethdma/<name>, replacing a stale pin.
func (s *StatsMap) Pin(name string) error {
	dir, err := getBpffsDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err = s.m.Pin(path); err != nil {
		return fmt.Errorf("pin %s: %w", path, err)
	}
	s.path = path
	logger.Debug("stats map pinned", zap.String("path", path))
	return nil
}

// Update copies the counters of every configured channel of d into the map.
func (s *StatsMap) Update(d *Dma) error {
	cfg := d.Config()
	if cfg == nil {
		return ErrNotInitialized
	}
	for _, ch := range cfg.DmaChans {
		st := d.ChanStats(ch)
		if err := s.m.Put(ch, &st); err != nil {
			return fmt.Errorf("update channel %d: %w", ch, err)
		}
	}
	return nil
}

// Lookup reads the counters of channel ch.
func (s *StatsMap) Lookup(ch uint32) (ChanStats, error) {
	var st ChanStats
	err := s.m.Lookup(ch, &st)
	return st, err
}

// Unpin removes the bpffs pin. The map lives on until every fd is closed.
func (s *StatsMap) Unpin() error {
	if err := s.m.Unpin(); err != nil {
		return fmt.Errorf("unpin %s: %w", s.path, err)
	}
	s.path = ""
	return nil
}

// Close closes the map fd. A pinned map stays readable through OpenStatsMap.
func (s *StatsMap) Close() error {
	if s == nil || s.m == nil {
		return nil
	}
	err := s.m.Close()
	s.m = nil
	return err
}

// CloseAndUnpin removes the pin, if any, and closes the map.
func (s *StatsMap) CloseAndUnpin() error {
	if s == nil || s.m == nil {
		return nil
	}
	var err error
	if s.path != "" {
		err = s.Unpin()
	}
	return multierr.Append(err, s.Close())
}
