package mngt

import (
	"time"

	"github.com/ehrlich-b/ftlmngt/internal/stepctx"
)

// processInstance is a live instance of a ProcessDesc. Queues are plain
// slices used head/tail: action_todo/rollback_todo pop from the front
// (reslice), action_done/rollback_done push at the back (append). This
// is the Go-native substitute for the source's intrusive TAILQ where a
// single owned step struct is threaded onto two different queues at
// once — in Go it is simpler to allocate each stepInstance as its own
// heap object and reference it by pointer from whichever queue it
// currently sits on (spec.md §9 design note).
type processInstance struct {
	desc *ProcessDesc
	ctx  []byte

	actionTodo   []*stepInstance
	actionDone   []*stepInstance
	rollbackTodo []*stepInstance
	rollbackDone []*stepInstance

	// cleanupStep holds the synthetic step instance wrapping
	// ProcessDesc.ErrorHandler, if any. It is appended to the tail of
	// rollbackTodo at construction so it always runs last.
	cleanupStep *stepInstance

	start, stop time.Time
	status      int
}

// popFront removes and returns the head of the queue, or nil if empty.
func popFront(q *[]*stepInstance) *stepInstance {
	if len(*q) == 0 {
		return nil
	}
	s := (*q)[0]
	*q = (*q)[1:]
	return s
}

// pushFront prepends a step (used when a completed step's cleanup joins
// the head of rollbackTodo, so rollback runs in reverse of success
// order).
func pushFront(q *[]*stepInstance, s *stepInstance) {
	*q = append([]*stepInstance{s}, *q...)
}

func pushBack(q *[]*stepInstance, s *stepInstance) {
	*q = append(*q, s)
}

// buildActionQueue materializes one stepInstance per StepDesc in the
// process descriptor's order, allocating each step's initial context
// buffer.
func buildActionQueue(desc *ProcessDesc) []*stepInstance {
	steps := make([]*stepInstance, 0, len(desc.Steps))
	for i := range desc.Steps {
		sd := &desc.Steps[i]
		si := &stepInstance{desc: sd}
		if sd.ArgSize > 0 {
			si.ctx = stepctx.Get(sd.ArgSize)
		}
		steps = append(steps, si)
	}
	return steps
}

// buildRollbackOnlyQueue materializes, in LIFO descriptor order, only
// the steps that declare a Cleanup — used by Rollback (as opposed to a
// failure-triggered rollback during Execute, which instead populates
// rollbackTodo incrementally as successful steps complete).
func buildRollbackOnlyQueue(desc *ProcessDesc) []*stepInstance {
	var steps []*stepInstance
	for i := len(desc.Steps) - 1; i >= 0; i-- {
		sd := &desc.Steps[i]
		if sd.Cleanup == nil {
			continue
		}
		si := &stepInstance{desc: sd}
		if sd.ArgSize > 0 {
			si.ctx = stepctx.Get(sd.ArgSize)
		}
		steps = append(steps, si)
	}
	return steps
}

// releaseStepCtxs returns every step-context buffer still attached to
// proc's four queues (plus the synthetic error-handler step, if any)
// to the shared pool. Called once from Engine.finish, after the process
// is fully done and no step body can touch its context again.
func releaseStepCtxs(proc *processInstance) {
	release := func(steps []*stepInstance) {
		for _, s := range steps {
			if s.ctx != nil {
				stepctx.Put(s.ctx)
				s.ctx = nil
			}
		}
	}
	release(proc.actionTodo)
	release(proc.actionDone)
	release(proc.rollbackTodo)
	release(proc.rollbackDone)
	if proc.cleanupStep != nil && proc.cleanupStep.ctx != nil {
		stepctx.Put(proc.cleanupStep.ctx)
		proc.cleanupStep.ctx = nil
	}
}
