package memdev

import (
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// Relocation is the in-memory relocation-engine collaborator. It tracks
// only whether the engine is initialized; the actual band-relocation
// work is outside this module's scope (spec.md Non-goals).
type Relocation struct {
	mu   sync.Mutex
	init bool
}

func (r *Relocation) Init() error {
	r.mu.Lock()
	r.init = true
	r.mu.Unlock()
	return nil
}

func (r *Relocation) Deinit() {
	r.mu.Lock()
	r.init = false
	r.mu.Unlock()
}

var _ collab.Relocation = (*Relocation)(nil)
