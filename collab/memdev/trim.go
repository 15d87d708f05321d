package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// Trim is the in-memory unmap/trim collaborator. Unmapped ranges are
// tracked only as a count, since the L2P map itself (not this
// collaborator) holds the authoritative valid/invalid state per lba.
type Trim struct {
	mu      sync.Mutex
	init    bool
	unmapped uint64
}

func (t *Trim) Init() error {
	t.mu.Lock()
	t.init = true
	t.mu.Unlock()
	return nil
}

func (t *Trim) Deinit() {
	t.mu.Lock()
	t.init = false
	t.mu.Unlock()
}

func (t *Trim) Clear(ctx context.Context, done func(error)) {
	t.mu.Lock()
	t.unmapped = 0
	t.mu.Unlock()
	done(nil)
}

func (t *Trim) Unmap(ctx context.Context, lba, numBlocks uint64, done func(error)) {
	t.mu.Lock()
	t.unmapped += numBlocks
	t.mu.Unlock()
	done(nil)
}

// Unmapped returns the cumulative number of blocks passed to Unmap,
// exposed for tests asserting Trim process behavior end to end.
func (t *Trim) Unmapped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unmapped
}

var _ collab.Trim = (*Trim)(nil)
