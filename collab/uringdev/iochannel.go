package uringdev

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/logging"
	iouring "github.com/iceber/iouring-go"
)

// IOChannel owns one io_uring instance per registered worker, mirroring
// spdk_ftl's one-ring-per-thread model: each poll group gets its own
// submission/completion pair rather than contending on a shared ring.
// Register/Deregister are steps (internal/collab's init_io_channel /
// deinit_io_channel), so they run on the core thread and only manage the
// ring lifecycle; actual I/O submission happens on BlockDevice.
type IOChannel struct {
	mu      sync.Mutex
	depth   uint
	workers []*iouring.IOURing
	log     *logging.Logger
}

// NewIOChannel constructs an IOChannel that opens rings of the given
// queue depth as workers register.
func NewIOChannel(queueDepth uint) *IOChannel {
	if queueDepth == 0 {
		queueDepth = defaultQueueDepth
	}
	return &IOChannel{
		depth: queueDepth,
		log:   logging.Default().With("component", "uringdev.iochannel"),
	}
}

func (c *IOChannel) Register(ctx context.Context) error {
	ring, err := iouring.New(c.depth)
	if err != nil {
		return fmt.Errorf("uringdev: register io channel: %w", err)
	}
	c.mu.Lock()
	c.workers = append(c.workers, ring)
	c.mu.Unlock()
	c.log.Debug("registered io channel", "count", c.Count())
	return nil
}

func (c *IOChannel) Deregister() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.workers) == 0 {
		return
	}
	last := c.workers[len(c.workers)-1]
	c.workers = c.workers[:len(c.workers)-1]
	last.Close()
}

func (c *IOChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}
