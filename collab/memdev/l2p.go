package memdev

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// L2P is an in-memory logical-to-physical map backed by a flat slice;
// the all-ones address (l2pUnmapped) means "unmapped", mirroring the
// source's FTL_ADDR_INVALID sentinel.
type L2P struct {
	mu    sync.RWMutex
	table []uint64
	pins  map[uint64]uint64 // lba -> pin refcount, keyed by range start
	init  bool
}

const l2pUnmapped = ^uint64(0)

func newL2P(lbaCount int64) *L2P {
	t := make([]uint64, lbaCount)
	for i := range t {
		t[i] = l2pUnmapped
	}
	return &L2P{table: t, pins: map[uint64]uint64{}}
}

func (l *L2P) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table == nil {
		return errors.New("memdev: l2p has no backing table")
	}
	l.init = true
	return nil
}

func (l *L2P) Deinit() {
	l.mu.Lock()
	l.init = false
	l.mu.Unlock()
}

func (l *L2P) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.table {
		l.table[i] = l2pUnmapped
	}
}

func (l *L2P) Persist(ctx context.Context, done func(error)) {
	l.mu.RLock()
	ok := l.init
	l.mu.RUnlock()
	if !ok {
		done(errors.New("memdev: l2p not initialized"))
		return
	}
	done(nil)
}

func (l *L2P) Restore(ctx context.Context, done func(error)) {
	l.mu.Lock()
	ok := l.init
	l.mu.Unlock()
	if !ok {
		done(errors.New("memdev: l2p not initialized"))
		return
	}
	done(nil)
}

func (l *L2P) Update(lba uint64, addr uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int(lba) >= len(l.table) {
		return
	}
	l.table[lba] = addr
}

func (l *L2P) Pin(lbaStart, lbaCount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pins[lbaStart] += lbaCount
}

func (l *L2P) Unpin(lbaStart, lbaCount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.pins[lbaStart]; ok {
		if v <= lbaCount {
			delete(l.pins, lbaStart)
		} else {
			l.pins[lbaStart] = v - lbaCount
		}
	}
}

func (l *L2P) Get(lba uint64) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if int(lba) >= len(l.table) {
		return 0, false
	}
	addr := l.table[lba]
	return addr, addr != l2pUnmapped
}

var _ collab.L2P = (*L2P)(nil)
