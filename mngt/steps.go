package mngt

// Step-facing API: usable only from inside a StepFn body, on the core
// thread. These methods mutate queue state directly (no locking — see
// SPEC_FULL.md §5) and then post the next turn of the relevant loop.

// NextStep marks the current step complete with status 0 and advances.
func (h *Handle) NextStep() {
	h.completeCurrent(0, false)
}

// SkipStep behaves like NextStep but marks the current ExecRecord
// silent, suppressing its trace line. Per spec.md's Open Question 2,
// this toggles the record for whichever direction (action or rollback)
// is currently running — mirrored exactly rather than always the action
// record.
func (h *Handle) SkipStep() {
	h.completeCurrent(0, true)
}

func (h *Handle) completeCurrent(status int, silent bool) {
	if h.rollback {
		h.engine.rollbackDone(h, status, silent)
		return
	}
	h.engine.actionDone(h, status, silent)
}

// ContinueStep requests re-entry of the current step on the next
// core-thread turn. Calling it more than once within the same turn
// coalesces into exactly one re-dispatch (spec.md §4.1).
func (h *Handle) ContinueStep() {
	if h.continuing {
		return
	}
	h.continuing = true
	h.engine.observer.ObserveContinuation(h.proc.desc.Name, h.currentStepName())
	if h.rollback {
		h.engine.dispatcher.PostToCore(func() { h.engine.rollbackExecute(h) })
		return
	}
	h.engine.dispatcher.PostToCore(func() { h.engine.actionExecute(h) })
}

func (h *Handle) currentStepName() string {
	s := h.currentStep()
	if s == nil {
		return ""
	}
	return s.desc.Name
}

// FailStep sets process status to a failure, logs the current record,
// flips the handle into rollback mode (if not already rolling back),
// and schedules the rollback worker. FailStep is idempotent with
// respect to process status: only the first failure is recorded
// (spec.md invariant 6 / Testable Properties #6).
func (h *Handle) FailStep(status int) {
	if status == 0 {
		status = -1
	}
	if h.status == 0 {
		h.status = status
	}

	wasRollback := h.rollback
	h.rollback = true

	if wasRollback {
		// Failure during rollback is recorded per-step but does not
		// cascade into another rollback pass (spec.md §4.1).
		h.engine.rollbackDone(h, status, false)
		return
	}

	// The failing step itself is not placed onto rollback_done; only its
	// successful predecessors (already on rollback_todo from prior
	// actionDone calls) are rolled back (spec.md invariant 4).
	s := popFront(&h.proc.actionTodo)
	if s != nil {
		s.action.Status = status
		h.engine.tracer.StepDone(h.proc.desc.Name, s.desc, s.action, false)
		h.engine.observer.ObserveStepComplete(h.proc.desc.Name, s.desc.Name, status, false, 0)
	}

	h.engine.dispatcher.PostToCore(func() { h.engine.rollbackExecute(h) })
}

// Call ends the current step (marking it silent, since the child
// process produces its own trace) and runs child as a nested process,
// built and posted directly rather than through Execute, with a thunk
// that, on child completion, advances or fails the parent depending on
// the child's final status.
func (h *Handle) Call(child *ProcessDesc) {
	h.callInternal(child, false, false)
}

// CallRollback is the rollback-direction counterpart of Call.
func (h *Handle) CallRollback(child *ProcessDesc) {
	h.callInternal(child, true, false)
}

// CallLoop is like Call, except a successful child re-enters the
// current step via ContinueStep instead of completing it. Used by
// drivers that dispatch one child process per iteration of a walk
// (internal/upgrade's region walk) and need to keep running the same
// step until the walk itself decides to call NextStep or FailStep.
func (h *Handle) CallLoop(child *ProcessDesc) {
	h.callInternal(child, false, true)
}

func (h *Handle) callInternal(child *ProcessDesc, rollbackChild bool, loop bool) {
	parent := h

	onChildDone := func(status int) {
		if status != 0 {
			parent.FailStep(status)
			return
		}
		if loop {
			parent.ContinueStep()
			return
		}
		parent.completeCurrent(0, true)
	}

	// Mark the parent's current record silent before the child runs.
	s := parent.currentStep()
	if s != nil {
		if parent.rollback {
			s.rollback.Silent = true
		} else {
			s.action.Silent = true
		}
	}

	childProc := &processInstance{desc: child}
	if child.ArgSize > 0 {
		childProc.ctx = make([]byte, child.ArgSize)
	}
	if rollbackChild {
		childProc.rollbackTodo = buildRollbackOnlyQueue(child)
	} else {
		childProc.actionTodo = buildActionQueue(child)
	}
	if child.ErrorHandler != nil {
		sd := StepDesc{Name: child.Name + ".error_handler", Action: child.ErrorHandler, Cleanup: child.ErrorHandler}
		childProc.cleanupStep = &stepInstance{desc: &sd}
		pushBack(&childProc.rollbackTodo, childProc.cleanupStep)
	}

	ch := &Handle{
		engine:      parent.engine,
		dev:         parent.dev,
		proc:        childProc,
		rollback:    rollbackChild,
		onChildDone: onChildDone,
	}

	if rollbackChild {
		parent.engine.dispatcher.PostToCore(func() { parent.engine.rollbackExecute(ch) })
	} else {
		parent.engine.dispatcher.PostToCore(func() { parent.engine.actionExecute(ch) })
	}
}
