// Package memdev implements the Subsystem Collaborator Façade entirely
// in memory, grounded on the teacher's backend/mem.go in-memory ublk
// backend: no real storage device is touched, every operation completes
// against plain Go slices and maps, and every asynchronous collaborator
// method still honors its callback shape so the engine's core-thread
// dispatch logic is exercised identically to a real backend.
package memdev

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// ErrNotOpen is returned by block-device operations issued before Open.
var ErrNotOpen = errors.New("memdev: block device not open")

// Device is a complete collab.Provider backed by in-memory state. It is
// safe to construct directly with New; the zero value is not usable.
type Device struct {
	mu sync.Mutex

	ctx context.Context

	base  *BlockDevice
	cache *BlockDevice

	sb    *SuperBlock
	bands *Bands
	zones *Zones
	l2p   *L2P
	p2l   *P2L
	nv    *NVCache
	reloc *Relocation
	ioch  *IOChannel
	trim  *Trim
	self  *SelfTest

	dirty bool
	mode  collab.StartupMode
}

// Config sizes the in-memory device at construction.
type Config struct {
	BaseBlockCount  int64
	BaseBlockSize   int
	BaseZoned       bool
	CacheBlockCount int64
	CacheBlockSize  int
	HasCache        bool
	Mode            collab.StartupMode
}

// New constructs a Device with fresh, empty collaborator state.
func New(ctx context.Context, cfg Config) *Device {
	if ctx == nil {
		ctx = context.Background()
	}
	base := newBlockDevice(cfg.BaseBlockCount, cfg.BaseBlockSize, cfg.BaseZoned)
	var cache *BlockDevice
	if cfg.HasCache {
		cache = newBlockDevice(cfg.CacheBlockCount, cfg.CacheBlockSize, false)
	}
	d := &Device{
		ctx:   ctx,
		mode:  cfg.Mode,
		base:  base,
		cache: cache,
		sb:    &SuperBlock{},
		bands: &Bands{},
		zones: &Zones{dev: base},
		l2p:   newL2P(cfg.BaseBlockCount),
		p2l:   newP2L(),
		nv:    &NVCache{},
		reloc: &Relocation{},
		ioch:  &IOChannel{},
		trim:  &Trim{},
	}
	d.self = &SelfTest{base: base, cache: cache, l2p: d.l2p}
	return d
}

func (d *Device) BlockDevice() collab.BlockDevice { return d.base }
func (d *Device) CacheDevice() collab.BlockDevice {
	if d.cache == nil {
		return nil
	}
	return d.cache
}
func (d *Device) SuperBlock() collab.SuperBlock   { return d.sb }
func (d *Device) Bands() collab.Bands             { return d.bands }
func (d *Device) Zones() collab.Zones             { return d.zones }
func (d *Device) L2P() collab.L2P                 { return d.l2p }
func (d *Device) P2L() collab.P2L                 { return d.p2l }
func (d *Device) NVCache() collab.NVCache         { return d.nv }
func (d *Device) Relocation() collab.Relocation   { return d.reloc }
func (d *Device) IOChannel() collab.IOChannel     { return d.ioch }
func (d *Device) Trim() collab.Trim               { return d.trim }
func (d *Device) SelfTest() collab.SelfTest       { return d.self }
func (d *Device) Context() context.Context        { return d.ctx }
func (d *Device) StartupMode() collab.StartupMode { return d.mode }

func (d *Device) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *Device) SetDirty(v bool) {
	d.mu.Lock()
	d.dirty = v
	d.mu.Unlock()
}

var _ collab.Provider = (*Device)(nil)
