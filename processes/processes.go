// Package processes holds the concrete ProcessDesc tables for every
// device lifecycle operation: Startup, First-Start, Restore, Clean-Start,
// Recover, Shutdown (normal and fast), and Trim. Each table is grounded
// on the literal desc_* tables in
// original_source/lib/ftl/mngt/ftl_mngt_startup.c and
// ftl_mngt_shutdown.c, with steps built from internal/collab's adapter
// functions.
package processes

import (
	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

func step(name string, action mngt.StepFn) mngt.StepDesc {
	return mngt.StepDesc{Name: name, Action: action}
}

func stepC(name string, action, cleanup mngt.StepFn) mngt.StepDesc {
	return mngt.StepDesc{Name: name, Action: action, Cleanup: cleanup}
}

// FirstStart is run the first time a device is ever started (mode =
// ModeCreate), populating an empty layout from scratch.
var FirstStart = &mngt.ProcessDesc{
	Name: "first_start",
	Steps: []mngt.StepDesc{
		step("init_l2p", collab.InitL2P),
		step("clear_l2p", collab.ClearL2P),
		step("scrub_nv_cache", collab.ScrubNVCache),
		step("finalize_init_bands", collab.FinalizeInitBands),
		step("persist_band_info", collab.PersistBandInfo),
		step("persist_nv_cache_metadata", collab.PersistNVCacheMetadata),
		step("p2l_init", collab.P2LInit),
		step("p2l_wipe", collab.P2LWipe),
		step("trim_clear", collab.ClearTrim),
		step("free_p2l_bufs", collab.P2LFreeBufs),
		step("set_dirty", collab.SetDirty),
		step("start_task_core", collab.StartTaskCore),
		step("finalize_init", collab.FinalizeInit),
	},
}

// cleanStartSteps is the shared step list Clean-Start and Recover (via
// composition, not duplication) both build on, per SPEC_FULL.md §4.6.
func cleanStartSteps() []mngt.StepDesc {
	return []mngt.StepDesc{
		step("restore_md", collab.RestoreMD),
		step("p2l_init", collab.P2LInit),
		step("p2l_restore_ckpt", collab.P2LRestoreCkpt),
		step("init_l2p", collab.InitL2P),
		step("restore_l2p", collab.RestoreL2P),
		step("finalize_init_bands", collab.FinalizeInitBands),
	}
}

// CleanStart runs when the persisted super-block's clean flag is set.
var CleanStart = &mngt.ProcessDesc{
	Name:  "clean_start",
	Steps: append(cleanStartSteps(),
		step("free_p2l_bufs", collab.P2LFreeBufs),
		step("start_task_core", collab.StartTaskCore),
		step("self_test", collab.SelfTestWalk),
		step("set_dirty", collab.SetDirty),
		step("finalize_init", collab.FinalizeInit),
	),
}

// Recover runs when the persisted super-block's clean flag is clear,
// inserting a relocation-recovery pass between finalize-init-bands and
// self-test (SPEC_FULL.md §4.6's supplemented composition).
var Recover = &mngt.ProcessDesc{
	Name: "recover",
	Steps: func() []mngt.StepDesc {
		base := cleanStartSteps()
		steps := make([]mngt.StepDesc, 0, len(base)+5)
		steps = append(steps, base...)
		steps = append(steps,
			step("relocation_recover", collab.RelocationRecover),
			step("free_p2l_bufs", collab.P2LFreeBufs),
			step("start_task_core", collab.StartTaskCore),
			step("self_test", collab.SelfTestWalk),
			step("set_dirty", collab.SetDirty),
			step("finalize_init", collab.FinalizeInit),
		)
		return steps
	}(),
}

// Restore dispatches to Clean-Start or Recover depending on the
// persisted super-block's clean flag (ftl_mngt_select_restore_mode).
var Restore = &mngt.ProcessDesc{
	Name: "restore",
	Steps: []mngt.StepDesc{
		step("select_restore_mode", collab.SelectRestoreMode(CleanStart, Recover)),
	},
}

// Startup is the top-level device bring-up composition. Its
// error_handler runs rollback_device once every other cleanup has
// completed, per spec.md §4.6.
var Startup = &mngt.ProcessDesc{
	Name:         "startup",
	ErrorHandler: collab.RollbackDevice,
	Steps: []mngt.StepDesc{
		stepC("open_base_bdev", collab.OpenBaseBdev, collab.CloseBaseBdev),
		stepC("open_cache_bdev", collab.OpenCacheBdev, collab.CloseCacheBdev),
		step("super_block_init", collab.InitSuperBlock),
		step("memory_pool_init", collab.InitMemoryPool),
		stepC("init_bands", collab.InitBands, collab.DeinitBands),
		stepC("init_io_channel", collab.InitIOChannel, collab.DeinitIOChannel),
		step("init_zones", collab.InitZone),
		step("decorate_bands", collab.DecorateBands),
		step("init_layout", collab.InitLayout),
		step("init_metadata", collab.InitMetadata),
		step("init_nv_cache", collab.InitNVCache),
		step("init_valid_map", collab.InitValidMap),
		stepC("init_trim", collab.InitTrim, collab.DeinitTrim),
		step("init_band_md", collab.InitBandsMD),
		stepC("init_relocation", collab.InitRelocation, collab.DeinitRelocation),
		step("select_startup_mode", collab.SelectStartupMode(FirstStart, Restore)),
	},
}

// ShutdownNormal flushes every in-memory structure to media before
// marking the device clean.
var ShutdownNormal = &mngt.ProcessDesc{
	Name: "shutdown",
	Steps: []mngt.StepDesc{
		step("stop_task_core", collab.StopTaskCore),
		step("persist_l2p", collab.PersistL2P),
		step("persist_md", collab.PersistSuperBlock),
		step("set_clean", collab.SetClean),
		step("dump_stats", collab.DumpStats),
		step("deinit_l2p", collab.DeinitL2P),
		step("p2l_deinit", collab.P2LDeinit),
		step("rollback_device", collab.RollbackDevice),
	},
}

// ShutdownFast persists only the super-block header, skipping the full
// metadata flush a normal shutdown performs (ftl_mngt_shutdown.c's
// fast_shdn branch).
var ShutdownFast = &mngt.ProcessDesc{
	Name: "shutdown_fast",
	Steps: []mngt.StepDesc{
		step("stop_task_core", collab.StopTaskCore),
		step("fast_persist_md", collab.FastPersistMD),
		step("set_shm_clean", collab.SetShmClean),
		step("dump_stats", collab.DumpStats),
		step("deinit_l2p", collab.DeinitL2P),
		step("p2l_deinit", collab.P2LDeinit),
		step("rollback_device", collab.RollbackDevice),
	},
}

// TrimCtx is the per-process context for Trim, carrying the lba/count
// pair the single unmap step acts on.
type TrimCtx struct {
	LBA       uint64
	NumBlocks uint64
}

// NewTrim builds a single-step Trim process bound to a fixed lba/count
// pair. Unlike the other compositions, Trim is built per-invocation
// rather than kept as a package-level var, since each trim call targets
// a different range.
func NewTrim(lba, numBlocks uint64) *mngt.ProcessDesc {
	return &mngt.ProcessDesc{
		Name: "trim",
		Steps: []mngt.StepDesc{
			step("unmap", func(h *mngt.Handle) {
				collab.Unmap(h, lba, numBlocks)
			}),
		},
	}
}
