package memdev

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// ErrSuperBlockNotPersisted is returned by Load when no super-block has
// ever been persisted, distinguishing "never written" from a corrupt
// header (spec.md's First-Start vs. Restore mode selection).
var ErrSuperBlockNotPersisted = errors.New("memdev: no super-block persisted")

// SuperBlock is the in-memory stand-in for the on-media super-block
// header: version stamps per upgradeable region, plus the clean/dirty
// flag that drives startup mode selection.
type SuperBlock struct {
	mu sync.Mutex

	initialized bool
	persisted   bool
	clean       bool
	versions    map[string]int
}

func (s *SuperBlock) InitDefault() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.clean = true
	s.versions = map[string]int{}
}

func (s *SuperBlock) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.persisted {
		return ErrSuperBlockNotPersisted
	}
	s.initialized = true
	return nil
}

func (s *SuperBlock) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("memdev: super-block not initialized")
	}
	return nil
}

func (s *SuperBlock) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("memdev: cannot persist uninitialized super-block")
	}
	s.persisted = true
	return nil
}

func (s *SuperBlock) Clean() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clean
}

func (s *SuperBlock) SetClean(v bool) {
	s.mu.Lock()
	s.clean = v
	s.mu.Unlock()
}

func (s *SuperBlock) LayoutVersion(region string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions == nil {
		return 0
	}
	return s.versions[region]
}

func (s *SuperBlock) SetLayoutVersion(region string, version int) {
	s.mu.Lock()
	if s.versions == nil {
		s.versions = map[string]int{}
	}
	s.versions[region] = version
	s.mu.Unlock()
}

var _ collab.SuperBlock = (*SuperBlock)(nil)
