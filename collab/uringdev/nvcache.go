package uringdev

import (
	"context"
	"sync"
)

// NVCache scrubs and persists metadata for the non-volatile cache tier,
// backed by the same BlockDevice submission path as the base device: a
// scrub is a sequence of zero-fill writes over the cache's block range,
// and Persist writes one zero-filled block to block 0 of the cache
// device; the in-memory metadata map is not written to the device (the
// façade never reads block 0 back directly; restore is driven by
// SuperBlock.Load instead, per spec.md §4.2).
type NVCache struct {
	dev *BlockDevice

	mu       sync.Mutex
	scrubbed bool
	meta     map[string]any
}

// NewNVCache wraps dev, the cache-tier BlockDevice, as the façade's
// NVCache collaborator.
func NewNVCache(dev *BlockDevice) *NVCache {
	return &NVCache{dev: dev, meta: make(map[string]any)}
}

func (c *NVCache) Scrub(ctx context.Context, done func(error)) {
	zero := make([]byte, c.dev.BlockSize())
	var scrubOne func(lba int64)
	scrubOne = func(lba int64) {
		if lba >= c.dev.BlockCount() {
			c.mu.Lock()
			c.scrubbed = true
			c.mu.Unlock()
			done(nil)
			return
		}
		c.dev.SubmitWrite(ctx, lba, zero, func(err error) {
			if err != nil {
				done(err)
				return
			}
			scrubOne(lba + 1)
		})
	}
	scrubOne(0)
}

func (c *NVCache) Persist(ctx context.Context, done func(error)) {
	buf := make([]byte, c.dev.BlockSize())
	c.dev.SubmitWrite(ctx, 0, buf, done)
}

func (c *NVCache) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	out["scrubbed"] = c.scrubbed
	return out
}
