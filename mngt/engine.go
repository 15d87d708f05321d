package mngt

import "time"

// CoreDispatcher is the minimal contract the engine needs from the
// device's core-thread dispatcher: a single-consumer, FIFO, lossless
// post primitive. internal/dispatch.Dispatcher satisfies this; tests may
// supply a synchronous stand-in.
type CoreDispatcher interface {
	PostToCore(fn func())
}

// Tracer receives step and process completion events for audit output.
// internal/trace.Tracer satisfies this.
type Tracer interface {
	StepDone(processName string, desc *StepDesc, rec ExecRecord, rollback bool)
	ProcessDone(processName string, status int, dur time.Duration, silent bool)
}

// Observer receives metrics events. Kept structurally compatible with
// the top-level ftlmngt.Observer so Engine can be constructed with
// either without this package importing the root package (which would
// be a cycle, since the root package constructs an Engine).
type Observer interface {
	ObserveProcessComplete(processName string, status int, rolledBack bool, dur time.Duration)
	ObserveStepComplete(processName, stepName string, status int, skipped bool, dur time.Duration)
	ObserveContinuation(processName, stepName string)
}

type noopObserver struct{}

func (noopObserver) ObserveProcessComplete(string, int, bool, time.Duration)      {}
func (noopObserver) ObserveStepComplete(string, string, int, bool, time.Duration) {}
func (noopObserver) ObserveContinuation(string, string)                          {}

type noopTracer struct{}

func (noopTracer) StepDone(string, *StepDesc, ExecRecord, bool)    {}
func (noopTracer) ProcessDone(string, int, time.Duration, bool) {}

// Engine runs process instances to completion on a device's core thread.
// One Engine exists per device; spec.md §4.2 requires that at most one
// process instance own the core thread at a time, which is enforced by
// the active field below rather than by any locking (the engine only
// ever runs on the core thread).
type Engine struct {
	dispatcher CoreDispatcher
	tracer     Tracer
	observer   Observer

	// active is the currently running handle, if any. Checked by Execute
	// to forbid the "direct recursive execute" case (Open Question 1 in
	// DESIGN.md): a step wanting to run a nested process must use Call/
	// CallRollback, which install a proper parent/child relationship.
	active *Handle
}

// NewEngine constructs an Engine bound to the given core-thread
// dispatcher. tracer and observer may be nil, in which case no-op
// implementations are used.
func NewEngine(dispatcher CoreDispatcher, tracer Tracer, observer Observer) *Engine {
	if tracer == nil {
		tracer = noopTracer{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Engine{dispatcher: dispatcher, tracer: tracer, observer: observer}
}

// Execute allocates a Process Instance from desc, builds its
// action_todo in descriptor order, wraps desc.ErrorHandler (if any) into
// a synthetic step instance at the tail of rollback_todo, and schedules
// the first action on the device's core thread. It returns immediately;
// cb is invoked (via caller.Origin) exactly once when the process
// finishes.
func (e *Engine) Execute(dev Device, desc *ProcessDesc, caller CallerRecord) error {
	if e.active != nil {
		return &stateErr{op: "Execute", msg: "a process is already active on this engine"}
	}
	if desc == nil || len(desc.Steps) == 0 {
		return &stateErr{op: "Execute", msg: "process descriptor has no steps"}
	}

	proc := &processInstance{
		desc:       desc,
		actionTodo: buildActionQueue(desc),
		start:      time.Now(),
	}
	if desc.ArgSize > 0 {
		proc.ctx = make([]byte, desc.ArgSize)
	}
	if desc.ErrorHandler != nil {
		sd := StepDesc{Name: desc.Name + ".error_handler", Action: desc.ErrorHandler, Cleanup: desc.ErrorHandler}
		proc.cleanupStep = &stepInstance{desc: &sd}
		pushBack(&proc.rollbackTodo, proc.cleanupStep)
	}

	h := &Handle{engine: e, dev: dev, caller: caller, proc: proc}
	e.active = h
	e.dispatcher.PostToCore(func() { e.actionExecute(h) })
	return nil
}

// Rollback constructs only the steps whose descriptor has a non-nil
// Cleanup, in LIFO descriptor order, stacks them onto rollback_todo,
// puts the handle directly into rollback mode, and schedules the first
// rollback step. Used for standalone rollback invocations (e.g. an
// external caller deciding to tear a device down without having run the
// corresponding forward process in this engine instance).
func (e *Engine) Rollback(dev Device, desc *ProcessDesc, caller CallerRecord) error {
	if e.active != nil {
		return &stateErr{op: "Rollback", msg: "a process is already active on this engine"}
	}

	proc := &processInstance{
		desc:         desc,
		rollbackTodo: buildRollbackOnlyQueue(desc),
		start:        time.Now(),
	}
	if desc.ArgSize > 0 {
		proc.ctx = make([]byte, desc.ArgSize)
	}
	if desc.ErrorHandler != nil {
		sd := StepDesc{Name: desc.Name + ".error_handler", Action: desc.ErrorHandler, Cleanup: desc.ErrorHandler}
		proc.cleanupStep = &stepInstance{desc: &sd}
		pushBack(&proc.rollbackTodo, proc.cleanupStep)
	}

	h := &Handle{engine: e, dev: dev, caller: caller, proc: proc, rollback: true}
	e.active = h
	e.dispatcher.PostToCore(func() { e.rollbackExecute(h) })
	return nil
}

type stateErr struct {
	op  string
	msg string
}

func (s *stateErr) Error() string { return "mngt: " + s.op + ": " + s.msg }

// actionExecute is the forward loop (spec.md §4.1 "Forward loop"). It
// must only ever be invoked on the core thread.
func (e *Engine) actionExecute(h *Handle) {
	h.continuing = false

	if h.rollback {
		e.rollbackExecute(h)
		return
	}

	if len(h.proc.actionTodo) == 0 {
		e.finish(h)
		return
	}

	s := h.proc.actionTodo[0]
	if s.action.Start.IsZero() {
		s.action.Start = time.Now()
	}
	s.desc.Action(h)
}

// actionDone completes the forward pass of the current step: pops it
// from action_todo, pushes it to action_done, and — if it declares a
// Cleanup — prepends it to rollback_todo so rollback order is the
// reverse of successful actions (spec.md invariant 2).
func (e *Engine) actionDone(h *Handle, status int, silent bool) {
	s := popFront(&h.proc.actionTodo)
	if s == nil {
		h.fatalStateErr("actionDone")
	}
	s.action.Stop = time.Now()
	s.action.Status = status
	s.action.Silent = silent

	pushBack(&h.proc.actionDone, s)
	if s.desc.Cleanup != nil {
		pushFront(&h.proc.rollbackTodo, s)
	}

	e.tracer.StepDone(h.proc.desc.Name, s.desc, s.action, false)
	e.observer.ObserveStepComplete(h.proc.desc.Name, s.desc.Name, status, silent && status == 0, s.action.Stop.Sub(s.action.Start))

	e.dispatcher.PostToCore(func() { e.actionExecute(h) })
}

// rollbackExecute is the reverse loop, symmetric to actionExecute.
func (e *Engine) rollbackExecute(h *Handle) {
	h.continuing = false

	if len(h.proc.rollbackTodo) == 0 {
		e.finish(h)
		return
	}

	s := h.proc.rollbackTodo[0]
	if s.rollback.Start.IsZero() {
		s.rollback.Start = time.Now()
	}
	// A step materialized only for rollback (Rollback(), or the
	// synthetic error-handler step) may have no dedicated Cleanup
	// distinct from Action; stepInstance.desc.Cleanup is always the
	// function to run here.
	s.desc.Cleanup(h)
}

// rollbackDone completes the reverse pass of the current step. Unlike
// actionDone, a rollback-step failure is recorded but does not cascade
// (spec.md §4.1 "Failure semantics"): rollback always runs to
// completion.
func (e *Engine) rollbackDone(h *Handle, status int, silent bool) {
	s := popFront(&h.proc.rollbackTodo)
	if s == nil {
		h.fatalStateErr("rollbackDone")
	}
	s.rollback.Stop = time.Now()
	s.rollback.Status = status
	s.rollback.Silent = silent

	pushBack(&h.proc.rollbackDone, s)

	e.tracer.StepDone(h.proc.desc.Name, s.desc, s.rollback, true)
	e.observer.ObserveStepComplete(h.proc.desc.Name, s.desc.Name, status, silent, s.rollback.Stop.Sub(s.rollback.Start))

	e.dispatcher.PostToCore(func() { e.rollbackExecute(h) })
}

// finish marks stop_tick, posts the caller callback to the caller's
// origin, then releases the process instance (spec.md invariant 5: step
// and process context are released exactly once, after the callback
// returns).
func (e *Engine) finish(h *Handle) {
	h.proc.stop = time.Now()
	dur := h.proc.stop.Sub(h.proc.start)

	e.tracer.ProcessDone(h.proc.desc.Name, h.status, dur, h.silent)
	e.observer.ObserveProcessComplete(h.proc.desc.Name, h.status, h.rollback, dur)

	status := h.status
	onChildDone := h.onChildDone
	callback := h.caller.Callback
	origin := h.caller.Origin

	// Only the top-level handle (the one Execute/Rollback registered as
	// active) clears the engine's active slot; a child handle created by
	// Call/CallRollback never occupied it, since nested processes are
	// dispatched directly rather than through Execute/Rollback's guard.
	if e.active == h {
		e.active = nil
	}

	deliver := func() {
		if onChildDone != nil {
			onChildDone(status)
			return
		}
		if callback != nil {
			callback(status)
		}
	}

	if origin != nil {
		origin(deliver)
	} else {
		deliver()
	}

	// Per invariant 5, context buffers are released no earlier than
	// here, after the caller callback has already been delivered and
	// returned — origin (dispatch.PostToOrigin in production) runs
	// deliver synchronously, so this is never reached while the
	// callback is still in flight.
	releaseStepCtxs(h.proc)
}
