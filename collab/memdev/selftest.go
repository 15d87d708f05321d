package memdev

import (
	"math/bits"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// SelfTest exposes exactly the read surface the self-test walk needs:
// L2P lookups plus an independently maintained valid-map bitmap, so the
// walk can detect the double-reference and stale-mapping inconsistencies
// spec.md's self-test scenario describes. Grounded on ftl_mngt_self_test.c's
// comparison between the L2P map and ftl_valid_map.
type SelfTest struct {
	mu       sync.Mutex
	base     *BlockDevice
	cache    *BlockDevice
	l2p      *L2P
	validMap []uint64
}

func (s *SelfTest) BaseBlockCount() uint64 {
	return uint64(s.base.BlockCount())
}

func (s *SelfTest) CacheBlockCount() uint64 {
	if s.cache == nil {
		return 0
	}
	return uint64(s.cache.BlockCount())
}

func (s *SelfTest) L2PGet(lba uint64) (uint64, bool) {
	return s.l2p.Get(lba)
}

func (s *SelfTest) ValidMapTest(addr uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	word, bit := addr/64, addr%64
	if int(word) >= len(s.validMap) {
		return false
	}
	return s.validMap[word]&(1<<bit) != 0
}

func (s *SelfTest) ValidMapPopcount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for _, w := range s.validMap {
		n += uint64(bits.OnesCount64(w))
	}
	return n
}

// SetValid marks addr valid in the independent valid-map, growing the
// bitmap as needed. Used by tests (and by a real relocation/write path,
// out of this module's scope) to seed or mutate ground truth.
func (s *SelfTest) SetValid(addr uint64, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	word, bit := addr/64, addr%64
	for uint64(len(s.validMap)) <= word {
		s.validMap = append(s.validMap, 0)
	}
	if valid {
		s.validMap[word] |= 1 << bit
	} else {
		s.validMap[word] &^= 1 << bit
	}
}

var _ collab.SelfTest = (*SelfTest)(nil)
