package mngt

import (
	"fmt"

	"github.com/ehrlich-b/ftlmngt/internal/stepctx"
)

// Device is the minimal device reference the engine threads through a
// Handle. Collaborators type-assert it to whatever concrete device type
// they need; the engine itself never inspects it.
type Device interface{}

// Handle is the object passed to every step action and cleanup body. It
// is the Management Handle of spec.md §3.
type Handle struct {
	engine *Engine

	dev    Device
	status int

	// rollback is true once the process has entered (or always ran in)
	// the rollback direction; forward progress ceases once it is set.
	rollback bool
	// continuing coalesces repeated ContinueStep calls within the same
	// core-thread turn into exactly one re-dispatch.
	continuing bool
	// silent suppresses the process-summary trace line (not individual
	// step lines, which are controlled per-ExecRecord).
	silent bool

	caller CallerRecord
	proc   *processInstance

	// onChildDone, when non-nil, is the thunk installed by Call/
	// CallRollback; it is invoked with the child's final status when the
	// child process finishes, instead of delivering to caller.Callback.
	onChildDone func(status int)
}

// GetDevice returns the device reference carried by the handle.
func (h *Handle) GetDevice() Device { return h.dev }

// ClearDevice clears the device reference, e.g. once a step has fully
// torn it down during rollback.
func (h *Handle) ClearDevice() { h.dev = nil }

// GetStatus returns the process's current aggregated status.
func (h *Handle) GetStatus() int { return h.status }

// GetProcessCtx returns the per-process context buffer.
func (h *Handle) GetProcessCtx() []byte {
	if h.proc == nil {
		return nil
	}
	return h.proc.ctx
}

// GetCallerCtx exposes the caller's callback as an opaque accessor; the
// engine never needs the caller's context directly (Go closures capture
// it), but this mirrors the source's get_caller_ctx step-facing call for
// steps that want to know whether a caller is present at all.
func (h *Handle) GetCallerCtx() CallerRecord { return h.caller }

// currentStep returns the step instance the engine considers "current":
// the head of action_todo while not rolling back, or the head of
// rollback_todo while rolling back (spec.md invariant 1).
func (h *Handle) currentStep() *stepInstance {
	if h.rollback {
		if len(h.proc.rollbackTodo) == 0 {
			return nil
		}
		return h.proc.rollbackTodo[0]
	}
	if len(h.proc.actionTodo) == 0 {
		return nil
	}
	return h.proc.actionTodo[0]
}

// GetStepCtx returns the current step's per-step context buffer, or nil
// if none has been allocated yet.
func (h *Handle) GetStepCtx() []byte {
	s := h.currentStep()
	if s == nil {
		return nil
	}
	return s.ctx
}

// AllocStepCtx (re)allocates the current step's per-step context buffer,
// discarding any previous buffer. Steps that need to allocate once and
// reuse across ContinueStep re-entries should call GetStepCtx first and
// only AllocStepCtx when it returns nil (see internal/collab's self-test
// walk, grounded on ftl_mngt_test_valid_map's identical pattern).
func (h *Handle) AllocStepCtx(size int) []byte {
	s := h.currentStep()
	if s == nil {
		return nil
	}
	if s.ctx != nil {
		stepctx.Put(s.ctx)
	}
	s.ctx = stepctx.Get(size)
	return s.ctx
}

func (h *Handle) fatalStateErr(op string) {
	panic(fmt.Sprintf("mngt: %s called with no current step (engine state corruption)", op))
}
