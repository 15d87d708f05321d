package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// IOChannel is the in-memory per-worker I/O channel collaborator. It
// only tracks a registration count since this backend has no real
// per-core queue pairs to allocate.
type IOChannel struct {
	mu    sync.Mutex
	count int
}

func (c *IOChannel) Register(ctx context.Context) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func (c *IOChannel) Deregister() {
	c.mu.Lock()
	if c.count > 0 {
		c.count--
	}
	c.mu.Unlock()
}

func (c *IOChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

var _ collab.IOChannel = (*IOChannel)(nil)
