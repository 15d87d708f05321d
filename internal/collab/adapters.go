package collab

import (
	"errors"
	"syscall"

	"github.com/ehrlich-b/ftlmngt/internal/logging"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

// isTransient reports whether err is the one error class spec.md treats
// as a legal, retryable failure for Unmap: -EAGAIN (the device's
// submission queue is momentarily full).
func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN)
}

// provider extracts the Provider from a handle's device reference. Every
// adapter in this file starts with it; a device that fails the type
// assertion is a wiring bug in the caller, so we fail the step loudly
// rather than panic — actions run on the core thread and a panic there
// would take the whole device down.
func provider(h *mngt.Handle) (Provider, bool) {
	p, ok := h.GetDevice().(Provider)
	return p, ok
}

func fail(h *mngt.Handle, err error) {
	logging.Default().Debugf("collab: step failed: %v", err)
	h.FailStep(-1)
}

// --- Block device -----------------------------------------------------

// OpenBaseBdev opens the base block device. Grounded on
// ftl_mngt_open_base_bdev (ftl_mngt_bdev.c).
func OpenBaseBdev(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.BlockDevice().Open(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// CloseBaseBdev closes the base block device. Grounded on
// ftl_mngt_close_base_bdev.
func CloseBaseBdev(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.BlockDevice().Close(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// OpenCacheBdev opens the NV-cache block device. Grounded on
// ftl_mngt_open_cache_bdev. A device with no configured cache treats
// this as a no-op success, matching the source's optional-cache path.
func OpenCacheBdev(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	cache := p.CacheDevice()
	if cache == nil {
		h.SkipStep()
		return
	}
	if err := cache.Open(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// CloseCacheBdev closes the NV-cache block device. Grounded on
// ftl_mngt_close_cache_bdev.
func CloseCacheBdev(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	cache := p.CacheDevice()
	if cache == nil {
		h.SkipStep()
		return
	}
	if err := cache.Close(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// --- Super-block --------------------------------------------------------

// InitSuperBlock initializes a default super-block in memory on a
// first-ever start. On a restore, the persisted super-block (clean flag,
// layout versions) must survive untouched into select_restore_mode, so
// this step only clears it down to defaults for ModeCreate.
func InitSuperBlock(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if p.StartupMode() == ModeCreate {
		p.SuperBlock().InitDefault()
	}
	h.NextStep()
}

// LoadSuperBlock loads and validates the persisted super-block.
func LoadSuperBlock(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	sb := p.SuperBlock()
	if err := sb.Load(p.Context()); err != nil {
		fail(h, err)
		return
	}
	if err := sb.Validate(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// PersistSuperBlock commits the super-block synchronously on the core
// thread, as spec.md §4.3 requires for this collaborator specifically.
func PersistSuperBlock(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.SuperBlock().Persist(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// SetDirty flips the super-block's clean flag to dirty.
func SetDirty(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.SuperBlock().SetClean(false)
	p.SetDirty(true)
	h.NextStep()
}

// SetClean flips the super-block's clean flag to clean.
func SetClean(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.SuperBlock().SetClean(true)
	p.SetDirty(false)
	h.NextStep()
}

// --- Bands --------------------------------------------------------------

// RestoreMD reloads and validates the persisted super-block at the
// start of the Clean-Start/Recover compositions, distinct from the
// Startup-wide InitSuperBlock (which only initializes defaults).
func RestoreMD(h *mngt.Handle) {
	LoadSuperBlock(h)
}

// InitBands allocates the in-memory band array. Grounded on
// ftl_mngt_init_bands.
func InitBands(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	bandCount := int(p.BlockDevice().BlockCount() / int64(defaultBandBlocks))
	if bandCount == 0 {
		bandCount = 1
	}
	if err := p.Bands().Allocate(bandCount); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// InitBandsMD initializes the per-band metadata buffer. Grounded on
// ftl_mngt_init_bands_md.
func InitBandsMD(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Bands().InitMD(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// DecorateBands assigns physical grouping metadata to each band.
// Grounded on ftl_mngt_decorate_bands.
func DecorateBands(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Bands().Decorate()
	h.NextStep()
}

// FinalizeInitBands splits bands into open/full/free sets. Grounded on
// ftl_mngt_finalize_init_bands.
func FinalizeInitBands(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.Bands().FinalizeInit(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// DeinitBands releases the band array. Grounded on
// ftl_mngt_deinit_bands.
func DeinitBands(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Bands().Deinit()
	h.NextStep()
}

// PersistBandInfo persists band metadata to the base device.
func PersistBandInfo(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Bands().Persist(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// --- Zones ----------------------------------------------------------------

// InitZone enumerates the base device's zones in bounded batches and
// marks each empty/full/offline, synthesizing zones for non-zoned media.
// Grounded on ftl_mngt_init_zone.
func InitZone(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if !p.BlockDevice().Zoned() {
		if err := p.Zones().SynthesizeForNonZoned(); err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
		return
	}
	const batchSize = 256
	p.Zones().Enumerate(p.Context(), batchSize, func(zones []Zone, err error) {
		if err != nil {
			fail(h, err)
			return
		}
		for _, z := range zones {
			if mErr := p.Zones().Mark(z.Start, z.State); mErr != nil {
				fail(h, mErr)
				return
			}
		}
		h.NextStep()
	})
}

// --- L2P --------------------------------------------------------------

// InitL2P allocates the logical-to-physical map. Grounded on
// ftl_mngt_init_l2p.
func InitL2P(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.L2P().Init(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// DeinitL2P releases the L2P map. Grounded on ftl_mngt_deinit_l2p.
func DeinitL2P(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.L2P().Deinit()
	h.NextStep()
}

// ClearL2P resets the L2P map to all-invalid. Grounded on
// ftl_mngt_clear_l2p.
func ClearL2P(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.L2P().Clear()
	h.NextStep()
}

// PersistL2P flushes the L2P map to media. Grounded on
// ftl_mngt_persist_l2p.
func PersistL2P(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.L2P().Persist(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// RestoreL2P loads the L2P map from media. Grounded on
// ftl_mngt_restore_l2p.
func RestoreL2P(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.L2P().Restore(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// --- P2L ----------------------------------------------------------------

// P2LInit allocates the P2L checkpoint buffers. Grounded on
// ftl_mngt_p2l_init_ckpt.
func P2LInit(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.P2L().InitCkpt(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// P2LDeinit releases the P2L checkpoint buffers. Grounded on
// ftl_mngt_p2l_deinit_ckpt.
func P2LDeinit(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.P2L().DeinitCkpt()
	h.NextStep()
}

// P2LWipe wipes region 0's checkpoint; checkpoints of other regions are
// left as they are. Grounded on ftl_mngt_p2l_wipe.
func P2LWipe(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.P2L().Wipe(p.Context(), 0, func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// P2LFreeBufs frees the per-region P2L buffers. Grounded on
// ftl_mngt_p2l_free_bufs.
func P2LFreeBufs(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.P2L().FreeBufs(0)
	h.NextStep()
}

// P2LRestoreCkpt restores the P2L checkpoint from media. Grounded on
// ftl_mngt_p2l_restore_ckpt and its async ftl_mngt_p2l_restore_ckpt_cb.
func P2LRestoreCkpt(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.P2L().RestoreCkpt(p.Context(), 0, func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// --- NV cache -----------------------------------------------------------

// InitNVCache confirms the NV-cache collaborator is reachable during
// Startup, preceding the First-Start-only ScrubNVCache/
// PersistNVCacheMetadata pair.
func InitNVCache(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	_ = p.NVCache().Metadata()
	h.NextStep()
}

// ScrubNVCache scrubs the NV cache at first-start. Named in spec.md's
// First-Start composition.
func ScrubNVCache(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.NVCache().Scrub(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// PersistNVCacheMetadata persists NV-cache metadata at first-start.
func PersistNVCacheMetadata(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.NVCache().Persist(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// --- Relocation -----------------------------------------------------------

// InitRelocation initializes the relocation engine.
func InitRelocation(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.Relocation().Init(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// RelocationRecover re-initializes the relocation engine as a recovery
// pass inserted into processes.Recover between finalize-init-bands and
// self-test (SPEC_FULL.md §4.6's Recover supplement), giving any bands
// left mid-relocation by an unclean shutdown a chance to resume.
func RelocationRecover(h *mngt.Handle) {
	InitRelocation(h)
}

// DeinitRelocation tears down the relocation engine; used as a Cleanup.
func DeinitRelocation(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Relocation().Deinit()
	h.NextStep()
}

// --- I/O channel ----------------------------------------------------------

// InitIOChannel registers the per-worker I/O channel. Grounded on
// ftl_mngt_init_io_channel.
func InitIOChannel(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.IOChannel().Register(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// DeinitIOChannel deregisters the I/O channel. Grounded on
// ftl_mngt_deinit_io_channel.
func DeinitIOChannel(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.IOChannel().Deregister()
	h.NextStep()
}

// --- Trim -------------------------------------------------------------

// InitTrim initializes the trim/unmap collaborator.
func InitTrim(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.Trim().Init(); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// DeinitTrim tears down the trim/unmap collaborator.
func DeinitTrim(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Trim().Deinit()
	h.NextStep()
}

// Unmap invokes the trim collaborator's unmap on lba/numBlocks,
// re-entering on a transient error and failing on any other error.
// Grounded on spec.md §4.6's Trim composition: "a completion that either
// advances or, on transient error, re-enters."
func Unmap(h *mngt.Handle, lba, numBlocks uint64) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Trim().Unmap(p.Context(), lba, numBlocks, func(err error) {
		if err == nil {
			h.NextStep()
			return
		}
		if isTransient(err) {
			h.ContinueStep()
			return
		}
		fail(h, err)
	})
}

// ClearTrim clears any pending trim state.
func ClearTrim(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.Trim().Clear(p.Context(), func(err error) {
		if err != nil {
			fail(h, err)
			return
		}
		h.NextStep()
	})
}

// --- Misc ---------------------------------------------------------------

// DumpStats is the statistics-dump step of the shutdown composition.
// Spec.md leaves its exact content unspecified beyond "stats section is
// non-empty"; here it simply confirms the collaborators are reachable.
func DumpStats(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	_ = p.NVCache().Metadata()
	h.NextStep()
}

// RollbackDevice is installed as the error_handler for Startup, where it
// clears the handle's device reference once every other cleanup has run,
// and as the final step of both shutdown processes; mirrors
// ftl_mngt_rollback_device.
func RollbackDevice(h *mngt.Handle) {
	h.ClearDevice()
	h.NextStep()
}

// --- Startup scaffolding steps with no dedicated subsystem of their
// own (memory-pool, layout, metadata, valid-map, task-core, finalize) --

// InitMemoryPool allocates nothing: step context buffers come from
// internal/stepctx on demand, so this step only confirms the device is
// reachable.
func InitMemoryPool(h *mngt.Handle) {
	if _, ok := provider(h); !ok {
		fail(h, errNoProvider)
		return
	}
	h.NextStep()
}

// InitLayout seeds the super-block's "p2l" layout version to 0 if it is
// not already recorded, so a later LayoutUpgrade has a well-defined
// starting point.
func InitLayout(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	sb := p.SuperBlock()
	sb.SetLayoutVersion("p2l", sb.LayoutVersion("p2l"))
	h.NextStep()
}

// InitMetadata is a placeholder scaffolding step preceding NV-cache and
// valid-map initialization in the Startup composition; the in-memory
// backend has no separate metadata region to allocate.
func InitMetadata(h *mngt.Handle) {
	h.NextStep()
}

// InitValidMap is a no-op: the valid-map bitmap collab.SelfTest reads is
// allocated by the backend's constructor (memdev.New) and changed only
// through its SetValid method, so there is nothing to allocate here.
func InitValidMap(h *mngt.Handle) {
	h.NextStep()
}

// StartTaskCore marks the I/O channel registered and ready to accept
// application I/O; grounded on ftl_mngt_start_core's enabling of the
// per-core poller.
func StartTaskCore(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.IOChannel().Register(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// StopTaskCore is the shutdown-side counterpart of StartTaskCore.
func StopTaskCore(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	p.IOChannel().Deregister()
	h.NextStep()
}

// FastPersistMD persists only the super-block header, skipping the
// rest of on-media metadata a normal shutdown would flush. Grounded on
// ftl_mngt_shutdown.c's fast_shdn branch.
func FastPersistMD(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	if err := p.SuperBlock().Persist(p.Context()); err != nil {
		fail(h, err)
		return
	}
	h.NextStep()
}

// SetShmClean marks the device's shared-memory clean flag. The
// in-memory backend has no real shared-memory segment, so this reuses
// the super-block's clean flag as the equivalent signal.
func SetShmClean(h *mngt.Handle) {
	SetClean(h)
}

// FinalizeInit marks the whole Startup composition (or a First-Start/
// Clean-Start/Recover child) as having reached a consistent, ready
// state. Grounded on the trailing no-op step every desc_* table in
// ftl_mngt_startup.c ends with.
func FinalizeInit(h *mngt.Handle) {
	h.NextStep()
}

// SelectStartupMode dispatches to the First-Start child process when the
// device's configured mode is Create, or to the Restore child otherwise,
// grounded on ftl_mngt_select_startup_mode. firstStart and restore are
// injected rather than imported directly to avoid a dependency from
// collab (used by processes) back onto processes itself.
func SelectStartupMode(firstStart, restore *mngt.ProcessDesc) mngt.StepFn {
	return func(h *mngt.Handle) {
		p, ok := provider(h)
		if !ok {
			fail(h, errNoProvider)
			return
		}
		if p.StartupMode() == ModeCreate {
			h.Call(firstStart)
			return
		}
		h.Call(restore)
	}
}

// SelectRestoreMode dispatches to Clean-Start when the persisted
// super-block is clean, or to Recover otherwise, grounded on
// ftl_mngt_select_restore_mode.
func SelectRestoreMode(cleanStart, recoverProc *mngt.ProcessDesc) mngt.StepFn {
	return func(h *mngt.Handle) {
		p, ok := provider(h)
		if !ok {
			fail(h, errNoProvider)
			return
		}
		if p.SuperBlock().Clean() {
			h.Call(cleanStart)
			return
		}
		h.Call(recoverProc)
	}
}

const defaultBandBlocks = 1 << 14

var errNoProvider = fail0{}

// fail0 is a trivial error used when a handle's device does not
// implement Provider — a wiring bug, not a runtime collaborator failure.
type fail0 struct{}

func (fail0) Error() string { return "collab: device does not implement Provider" }
