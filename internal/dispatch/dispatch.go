// Package dispatch implements the core-thread dispatcher: a
// single-consumer, FIFO, lossless message loop that all management-step
// bodies run on, mirrored on the teacher's per-queue io_uring completion
// loop (internal/queue/runner.go's ioLoop) but carrying arbitrary
// closures instead of ublk completion entries.
package dispatch

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/ftlmngt/internal/constants"
	"github.com/ehrlich-b/ftlmngt/internal/logging"
)

// Dispatcher owns the device's designated core thread. Public entry
// points may call PostToCore from any goroutine; step bodies always run
// on the pinned goroutine Dispatcher.Start spawns.
type Dispatcher struct {
	mailbox     chan func()
	done        chan struct{}
	stopped     chan struct{}
	cpuAffinity int // -1 means no affinity
	logger      *logging.Logger
}

// Config configures a Dispatcher.
type Config struct {
	// CPUAffinity pins the core-thread goroutine's OS thread to a
	// specific CPU (-1, the zero value's effective meaning, disables
	// pinning). Mirrors the teacher's per-queue CPUAffinity handling in
	// internal/queue/runner.go.
	CPUAffinity int
	Logger      *logging.Logger
	// MailboxDepth overrides the default channel buffer depth.
	MailboxDepth int
}

// New constructs a Dispatcher. Call Start to spawn the core-thread
// goroutine before posting any work.
func New(cfg Config) *Dispatcher {
	depth := cfg.MailboxDepth
	if depth <= 0 {
		depth = constants.CoreThreadMailboxDepth
	}
	aff := cfg.CPUAffinity
	if aff == 0 {
		aff = -1
	}
	return &Dispatcher{
		mailbox:     make(chan func(), depth),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		cpuAffinity: aff,
		logger:      cfg.Logger,
	}
}

// Start spawns the pinned core-thread goroutine. It blocks until the
// goroutine has finished any CPU-affinity setup and is ready to receive
// work, mirroring the teacher's Runner.Start/ioLoop handshake.
func (d *Dispatcher) Start() {
	ready := make(chan struct{})
	go d.loop(ready)
	<-ready
}

// PostToCore enqueues fn to run on the core thread, in FIFO order
// relative to every other PostToCore call. It never blocks the caller
// indefinitely in normal operation (spec.md invariant 6: "the engine
// never blocks the calling thread"); a full mailbox blocks only as a
// backpressure signal that the core thread has fallen behind.
func (d *Dispatcher) PostToCore(fn func()) {
	select {
	case d.mailbox <- fn:
	case <-d.done:
	}
}

// PostToOrigin runs fn immediately on the calling goroutine. Unlike the
// SPDK source (where post_to_origin crosses real OS threads), it does
// not hand fn to another goroutine: when the engine's finish calls it,
// fn runs on the core-thread goroutine, and the goroutine that started
// the process sees the result only through whatever fn hands it (for
// Device's blocking wrappers, a channel). This function exists so
// CallerRecord.Origin has a ready-made value to plug in without every
// caller writing its own no-op.
func PostToOrigin(fn func()) {
	fn()
}

// Stop signals the core-thread goroutine to exit after draining any
// work already queued, and waits for it to do so.
func (d *Dispatcher) Stop() {
	close(d.done)
	<-d.stopped
}

func (d *Dispatcher) loop(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.stopped)

	if d.cpuAffinity >= 0 {
		var mask unix.CPUSet
		mask.Set(d.cpuAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil && d.logger != nil {
			d.logger.Warnf("core thread: failed to set CPU affinity to %d: %v", d.cpuAffinity, err)
		}
	}

	close(ready)

	for {
		select {
		case fn := <-d.mailbox:
			fn()
		case <-d.done:
			// Drain whatever is already buffered before exiting, so a
			// Stop racing with a final PostToCore still delivers it.
			for {
				select {
				case fn := <-d.mailbox:
					fn()
					continue
				default:
				}
				return
			}
		}
	}
}
