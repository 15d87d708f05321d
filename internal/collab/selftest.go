package collab

import (
	"github.com/ehrlich-b/ftlmngt/internal/constants"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

// selfTestWalkCtx is the per-step context allocated once via
// h.AllocStepCtx and reused across every ContinueStep re-entry, mirroring
// ftl_mngt_test_valid_map's ftl_mngt_alloc_step_ctx-once pattern.
type selfTestWalkCtx struct {
	nextLBA        uint64
	totalLBAs      uint64
	mismatches     uint64
	doubleRefs     uint64
	seenValidSoFar uint64
	// seenAddrs spans the whole walk, not just the current chunk, so a
	// physical address referenced by two LBAs in different chunks is
	// still caught as a double reference (spec.md §4.5).
	seenAddrs map[uint64]bool
}

const selfTestWalkCtxSize = 1

// walkCtxTable keys live step-context state by the address of the
// marker byte slice AllocStepCtx returns, since the engine's step
// context is an opaque []byte and the walk needs a richer Go struct
// alongside it. Steps only ever run on the single core thread (SPEC_FULL
// §5), so no locking is required here.
var walkCtxTable = map[*byte]*selfTestWalkCtx{}

func ctxKey(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

// SelfTestWalk performs the bitmap consistency walk of spec.md §4.5: in
// chunks of constants.SelfTestChunkLBAs logical addresses, it compares
// each L2P entry against the independently maintained valid-map bit,
// flagging any mismatch or any physical address referenced by two
// different LBAs (a double reference). On completion it verifies the
// valid-map's total popcount equals the number of valid L2P entries
// observed during the walk. Grounded on ftl_mngt_self_test.c's
// ftl_mngt_test_valid_map.
func SelfTestWalk(h *mngt.Handle) {
	p, ok := provider(h)
	if !ok {
		fail(h, errNoProvider)
		return
	}
	st := p.SelfTest()

	raw := h.GetStepCtx()
	var wc *selfTestWalkCtx
	if raw == nil {
		raw = h.AllocStepCtx(selfTestWalkCtxSize)
		wc = &selfTestWalkCtx{
			totalLBAs: st.BaseBlockCount() + st.CacheBlockCount(),
			seenAddrs: make(map[uint64]bool),
		}
		walkCtxTable[ctxKey(raw)] = wc
	} else {
		wc = walkCtxTable[ctxKey(raw)]
	}

	start := wc.nextLBA
	if start >= wc.totalLBAs {
		delete(walkCtxTable, ctxKey(raw))
		if wc.mismatches > 0 || wc.doubleRefs > 0 {
			fail(h, errSelfTestInconsistent)
			return
		}
		if st.ValidMapPopcount() != wc.seenValidSoFar {
			fail(h, errSelfTestInconsistent)
			return
		}
		h.NextStep()
		return
	}

	end := start + constants.SelfTestChunkLBAs
	if end > wc.totalLBAs {
		end = wc.totalLBAs
	}

	for lba := start; lba < end; lba++ {
		addr, valid := st.L2PGet(lba)
		if !valid {
			continue
		}
		wc.seenValidSoFar++
		if wc.seenAddrs[addr] {
			wc.doubleRefs++
		}
		wc.seenAddrs[addr] = true
		if !st.ValidMapTest(addr) {
			wc.mismatches++
		}
	}
	wc.nextLBA = end
	h.ContinueStep()
}

var errSelfTestInconsistent = selfTestErr{}

type selfTestErr struct{}

func (selfTestErr) Error() string { return "collab: self-test found L2P/valid-map inconsistency" }
