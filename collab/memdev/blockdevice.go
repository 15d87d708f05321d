package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// BlockDevice is a flat in-memory block store. Reads/writes/zone-appends
// complete synchronously but still invoke their done callback, so a
// caller cannot distinguish it from an asynchronous backend.
type BlockDevice struct {
	mu sync.RWMutex

	blockSize  int
	blockCount int64
	zoned      bool
	opened     bool

	data []byte
}

func newBlockDevice(blockCount int64, blockSize int, zoned bool) *BlockDevice {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &BlockDevice{
		blockSize:  blockSize,
		blockCount: blockCount,
		zoned:      zoned,
		data:       make([]byte, blockCount*int64(blockSize)),
	}
}

func (b *BlockDevice) Open(ctx context.Context) error {
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	return nil
}

func (b *BlockDevice) Close(ctx context.Context) error {
	b.mu.Lock()
	b.opened = false
	b.mu.Unlock()
	return nil
}

func (b *BlockDevice) BlockSize() int    { return b.blockSize }
func (b *BlockDevice) BlockCount() int64 { return b.blockCount }
func (b *BlockDevice) Zoned() bool       { return b.zoned }
func (b *BlockDevice) SupportsAppend() bool { return b.zoned }

func (b *BlockDevice) SubmitRead(ctx context.Context, lba int64, buf []byte, done func(error)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.opened {
		done(ErrNotOpen)
		return
	}
	off := lba * int64(b.blockSize)
	if off < 0 || off+int64(len(buf)) > int64(len(b.data)) {
		done(ErrOutOfRange)
		return
	}
	copy(buf, b.data[off:off+int64(len(buf))])
	done(nil)
}

func (b *BlockDevice) SubmitWrite(ctx context.Context, lba int64, buf []byte, done func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		done(ErrNotOpen)
		return
	}
	off := lba * int64(b.blockSize)
	if off < 0 || off+int64(len(buf)) > int64(len(b.data)) {
		done(ErrOutOfRange)
		return
	}
	copy(b.data[off:off+int64(len(buf))], buf)
	done(nil)
}

func (b *BlockDevice) SubmitZoneAppend(ctx context.Context, zoneStart int64, buf []byte, done func(int64, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		done(0, ErrNotOpen)
		return
	}
	off := zoneStart * int64(b.blockSize)
	if off < 0 || off+int64(len(buf)) > int64(len(b.data)) {
		done(0, ErrOutOfRange)
		return
	}
	copy(b.data[off:off+int64(len(buf))], buf)
	done(zoneStart, nil)
}

func (b *BlockDevice) QueueWait(ctx context.Context) error {
	// The in-memory backend has no queue depth limit to wait on.
	return nil
}

var _ collab.BlockDevice = (*BlockDevice)(nil)
