package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// Zones is the in-memory zone-layer collaborator. For a non-zoned base
// device (the common case in this in-memory backend) it synthesizes a
// single logical zone spanning the whole capacity, matching the
// source's non-zoned fallback path.
type Zones struct {
	mu    sync.Mutex
	dev   *BlockDevice
	zones []collab.Zone
}

func (z *Zones) Enumerate(ctx context.Context, batchSize int, done func([]collab.Zone, error)) {
	z.mu.Lock()
	zones := append([]collab.Zone(nil), z.zones...)
	z.mu.Unlock()
	done(zones, nil)
}

func (z *Zones) Mark(start uint64, state collab.ZoneState) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	for i := range z.zones {
		if z.zones[i].Start == start {
			z.zones[i].State = state
			return nil
		}
	}
	return nil
}

func (z *Zones) SynthesizeForNonZoned() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.zones = []collab.Zone{{
		Start:    0,
		Capacity: uint64(z.dev.BlockCount()),
		State:    collab.ZoneStateEmpty,
	}}
	return nil
}

var _ collab.Zones = (*Zones)(nil)
