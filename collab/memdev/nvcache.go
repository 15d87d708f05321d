package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// NVCache is the in-memory NV-cache collaborator. Scrub/Persist are
// no-ops beyond bookkeeping since there is no real cache media behind
// this backend.
type NVCache struct {
	mu       sync.Mutex
	scrubbed bool
	meta     map[string]any
}

func (n *NVCache) Scrub(ctx context.Context, done func(error)) {
	n.mu.Lock()
	n.scrubbed = true
	n.mu.Unlock()
	done(nil)
}

func (n *NVCache) Persist(ctx context.Context, done func(error)) {
	n.mu.Lock()
	if n.meta == nil {
		n.meta = map[string]any{}
	}
	n.meta["scrubbed"] = n.scrubbed
	n.mu.Unlock()
	done(nil)
}

func (n *NVCache) Metadata() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]any, len(n.meta))
	for k, v := range n.meta {
		out[k] = v
	}
	return out
}

var _ collab.NVCache = (*NVCache)(nil)
