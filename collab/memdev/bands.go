package memdev

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// band is the in-memory record for one band, mirroring the subset of
// ftl_band state the management process cares about: whether it holds
// valid metadata and which logical group it belongs to.
type band struct {
	group    int
	finalized bool
}

// Bands is the in-memory band-metadata collaborator.
type Bands struct {
	mu    sync.Mutex
	bands []band
	mdInit bool
}

func (b *Bands) Allocate(n int) error {
	if n <= 0 {
		return errors.New("memdev: band count must be positive")
	}
	b.mu.Lock()
	b.bands = make([]band, n)
	b.mu.Unlock()
	return nil
}

func (b *Bands) InitMD(ctx context.Context, done func(error)) {
	b.mu.Lock()
	if b.bands == nil {
		b.mu.Unlock()
		done(errors.New("memdev: bands not allocated"))
		return
	}
	b.mdInit = true
	b.mu.Unlock()
	done(nil)
}

// Decorate assigns each band a group number in round-robin fashion, a
// simplified stand-in for the source's physical-placement decoration.
func (b *Bands) Decorate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.bands {
		b.bands[i].group = i % 4
	}
}

func (b *Bands) FinalizeInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mdInit {
		return errors.New("memdev: band metadata not initialized")
	}
	for i := range b.bands {
		b.bands[i].finalized = true
	}
	return nil
}

func (b *Bands) Deinit() {
	b.mu.Lock()
	b.bands = nil
	b.mdInit = false
	b.mu.Unlock()
}

func (b *Bands) Persist(ctx context.Context, done func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bands == nil {
		done(errors.New("memdev: no bands to persist"))
		return
	}
	done(nil)
}

var _ collab.Bands = (*Bands)(nil)
