// Package collab defines the Subsystem Collaborator Façade: a table of
// thin adapters, each shaped like a mngt.StepFn, that each call exactly
// one operation on a named subsystem collaborator and terminate by
// calling h.NextStep, h.SkipStep, or h.FailStep — spec.md §4.3.
//
// The façade interfaces here are intentionally narrow and synchronous or
// callback-shaped to match what a single adapter function needs; see
// collab/memdev and collab/uringdev for concrete implementations.
package collab

import (
	"context"
)

// Provider is implemented by the top-level device type. It exposes one
// accessor per collaborator so adapter functions can reach the concrete
// backend without the collab package importing the root package (which
// constructs a Provider) — the same interface-segregation the teacher
// uses in internal/interfaces/backend.go to avoid circular imports
// between its root package and internal packages.
type Provider interface {
	BlockDevice() BlockDevice
	CacheDevice() BlockDevice
	SuperBlock() SuperBlock
	Bands() Bands
	Zones() Zones
	L2P() L2P
	P2L() P2L
	NVCache() NVCache
	Relocation() Relocation
	IOChannel() IOChannel
	Trim() Trim
	SelfTest() SelfTest

	Dirty() bool
	SetDirty(bool)
	Context() context.Context

	// StartupMode reports whether this device should be brought up via
	// First-Start or via Restore, grounded on ftl_mngt_select_startup_mode's
	// conf.mode&FTL_MODE_CREATE branch — lifted here to a Provider method
	// since the engine never parses configuration itself (spec.md §1).
	StartupMode() StartupMode
}

// StartupMode selects between the Create and Restore startup branches.
type StartupMode int

const (
	ModeCreate StartupMode = iota
	ModeRestore
)

// Zone describes one zone reported by Zones.Enumerate.
type Zone struct {
	Start uint64
	Capacity uint64
	State ZoneState
}

// ZoneState mirrors the minimal zone states the engine's zone-init step
// needs to distinguish.
type ZoneState int

const (
	ZoneStateEmpty ZoneState = iota
	ZoneStateFull
	ZoneStateOffline
)

// BlockDevice is the façade's "Block device" collaborator: open, close,
// query geometry, submit read/write/zone-append, queue-wait on
// back-pressure (spec.md §4.3 table).
type BlockDevice interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	BlockSize() int
	BlockCount() int64
	Zoned() bool
	SupportsAppend() bool

	SubmitRead(ctx context.Context, lba int64, buf []byte, done func(error))
	SubmitWrite(ctx context.Context, lba int64, buf []byte, done func(error))
	SubmitZoneAppend(ctx context.Context, zoneStart int64, buf []byte, done func(writtenLBA int64, err error))

	// QueueWait blocks the caller until the device's submission queue
	// has room, used by steps that must apply back-pressure rather than
	// fail outright.
	QueueWait(ctx context.Context) error
}

// SuperBlock is the on-media header collaborator: init default, load,
// validate, and persist synchronously on the core thread.
type SuperBlock interface {
	InitDefault()
	Load(ctx context.Context) error
	Validate() error
	Persist(ctx context.Context) error
	Clean() bool
	SetClean(bool)
	LayoutVersion(region string) int
	SetLayoutVersion(region string, version int)
}

// Bands is the band-metadata collaborator.
type Bands interface {
	Allocate(n int) error
	InitMD(ctx context.Context, done func(error))
	Decorate()
	FinalizeInit() error
	Deinit()
	Persist(ctx context.Context, done func(error))
}

// Zones is the zone-layer collaborator.
type Zones interface {
	Enumerate(ctx context.Context, batchSize int, done func([]Zone, error))
	Mark(start uint64, state ZoneState) error
	SynthesizeForNonZoned() error
}

// L2P is the logical-to-physical map collaborator.
type L2P interface {
	Init() error
	Deinit()
	Clear()
	Persist(ctx context.Context, done func(error))
	Restore(ctx context.Context, done func(error))
	Update(lba uint64, addr uint64)
	Pin(lbaStart, lbaCount uint64)
	Unpin(lbaStart, lbaCount uint64)
	Get(lba uint64) (addr uint64, valid bool)
}

// P2L is the physical-to-logical checkpoint collaborator.
type P2L interface {
	InitCkpt() error
	DeinitCkpt()
	Wipe(ctx context.Context, region int, done func(error))
	FreeBufs(region int)
	RestoreCkpt(ctx context.Context, region int, done func(error))
}

// NVCache is the non-volatile cache collaborator.
type NVCache interface {
	Scrub(ctx context.Context, done func(error))
	Persist(ctx context.Context, done func(error))
	Metadata() map[string]any
}

// Relocation is the relocation-engine collaborator.
type Relocation interface {
	Init() error
	Deinit()
}

// IOChannel is the per-worker I/O channel collaborator.
type IOChannel interface {
	Register(ctx context.Context) error
	Deregister()
	Count() int
}

// Trim is the unmap/trim collaborator.
type Trim interface {
	Init() error
	Deinit()
	Clear(ctx context.Context, done func(error))
	Unmap(ctx context.Context, lba, numBlocks uint64, done func(error))
}

// SelfTest exposes exactly what the consistency walk in spec.md §4.5
// needs: L2P lookups and the authoritative valid-map, without exposing
// the full L2P/NVCache collaborator surface.
type SelfTest interface {
	BaseBlockCount() uint64
	CacheBlockCount() uint64
	L2PGet(lba uint64) (addr uint64, valid bool)
	ValidMapTest(addr uint64) bool
	ValidMapPopcount() uint64
}
