// Package mngt implements the management-process engine: a cooperative
// state machine that sequences a device's lifecycle operations (startup,
// shutdown, trim, self-test, layout upgrade) as ordered step sequences
// with forward actions and optional rollback cleanups.
//
// All exported types in this package are driven exclusively on the core
// thread the owning Dispatcher pins; see Engine for the entry points
// callers use from any other goroutine.
package mngt

import "time"

// StepFn is the function shape every step action or cleanup has. It must
// terminate by calling exactly one of Handle.NextStep, Handle.SkipStep,
// or Handle.FailStep, possibly after any number of Handle.ContinueStep
// re-entries, or by invoking Handle.Call/Handle.CallRollback.
type StepFn func(h *Handle)

// StepDesc is an immutable, table-resident description of a single unit
// of management work.
type StepDesc struct {
	// Name is used in trace output and error attribution.
	Name string
	// ArgSize is the number of bytes of per-step context allocated when
	// the process instance is built, before the step is first entered (0
	// if the step needs no context buffer).
	ArgSize int
	// Action is invoked on the forward pass. Required.
	Action StepFn
	// Cleanup is invoked during rollback. A nil Cleanup means the step
	// never appears on the rollback queue, by design (spec.md invariant
	// 2): its presence alone is what qualifies a step for rollback.
	Cleanup StepFn
}

// ProcessDesc is an immutable description of an ordered composition of
// steps plus an optional whole-process error handler.
type ProcessDesc struct {
	Name string
	// ArgSize is the number of bytes of per-process context allocated at
	// process construction.
	ArgSize int
	// ErrorHandler, if non-nil, is wrapped into a synthetic step and
	// placed at the very end of the rollback queue (spec.md's notion of
	// a process-level cleanup that always runs last during rollback).
	ErrorHandler StepFn
	// Steps is the ordered, forward-execution sequence.
	Steps []StepDesc
}

// ExecRecord is the timing and outcome record kept for one execution
// pass (action or rollback) of a step instance.
type ExecRecord struct {
	Start  time.Time
	Stop   time.Time
	Status int
	// Silent suppresses trace emission for this record (set by SkipStep,
	// or by the engine when a parent step's child process will produce
	// its own trace).
	Silent bool
}

// stepInstance is a live instance of a StepDesc within one running
// process.
type stepInstance struct {
	desc     *StepDesc
	ctx      []byte
	action   ExecRecord
	rollback ExecRecord
}

// CallerRecord identifies who to notify, and on which origin, when a
// process finishes.
type CallerRecord struct {
	Callback func(status int)
	Origin   func(fn func())
}
