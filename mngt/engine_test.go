package mngt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syncDispatcher runs posted work immediately on the calling goroutine,
// so tests can assert ordering without spinning up a real core thread.
type syncDispatcher struct{}

func (syncDispatcher) PostToCore(fn func()) { fn() }

type recordedEvent struct {
	name     string
	rollback bool
	status   int
}

type recordingTracer struct {
	events []recordedEvent
}

func (r *recordingTracer) StepDone(processName string, desc *StepDesc, rec ExecRecord, rollback bool) {
	r.events = append(r.events, recordedEvent{name: desc.Name, rollback: rollback, status: rec.Status})
}

func (r *recordingTracer) ProcessDone(processName string, status int, dur time.Duration, silent bool) {
}

func (r *recordingTracer) actionNames() []string {
	var out []string
	for _, e := range r.events {
		if !e.rollback {
			out = append(out, e.name)
		}
	}
	return out
}

func (r *recordingTracer) rollbackNames() []string {
	var out []string
	for _, e := range r.events {
		if e.rollback {
			out = append(out, e.name)
		}
	}
	return out
}

func runSync(t *testing.T, desc *ProcessDesc, tracer Tracer) int {
	t.Helper()
	e := NewEngine(syncDispatcher{}, tracer, nil)
	result := make(chan int, 1)
	err := e.Execute(nil, desc, CallerRecord{
		Callback: func(status int) { result <- status },
		Origin:   func(fn func()) { fn() },
	})
	require.NoError(t, err)
	return <-result
}

func okStep(name string) StepDesc {
	return StepDesc{Name: name, Action: func(h *Handle) { h.NextStep() }}
}

func okStepWithCleanup(name string) StepDesc {
	return StepDesc{
		Name:    name,
		Action:  func(h *Handle) { h.NextStep() },
		Cleanup: func(h *Handle) { h.NextStep() },
	}
}

// Scenario a (spec.md §8): P1 = [A,B,C] with all cleanups; C fails.
func TestScenarioA_FailureUnwindsInReverse(t *testing.T) {
	desc := &ProcessDesc{
		Name: "p1",
		Steps: []StepDesc{
			okStepWithCleanup("A"),
			okStepWithCleanup("B"),
			{Name: "C", Action: func(h *Handle) { h.FailStep(-1) }, Cleanup: func(h *Handle) { h.NextStep() }},
		},
	}
	tracer := &recordingTracer{}
	status := runSync(t, desc, tracer)

	require.Equal(t, -1, status)
	require.Equal(t, []string{"A", "B", "C"}, tracer.actionNames())
	require.Equal(t, []string{"B", "A"}, tracer.rollbackNames())
}

// Scenario b: P2 = [A,B,C], A and C have cleanups, B does not. All succeed.
func TestScenarioB_AllSucceedNoRollback(t *testing.T) {
	desc := &ProcessDesc{
		Name: "p2",
		Steps: []StepDesc{
			okStepWithCleanup("A"),
			okStep("B"),
			okStepWithCleanup("C"),
		},
	}
	tracer := &recordingTracer{}
	status := runSync(t, desc, tracer)

	require.Equal(t, 0, status)
	require.Equal(t, []string{"A", "B", "C"}, tracer.actionNames())
	require.Empty(t, tracer.rollbackNames())
}

// Scenario c: P2 but B fails after A succeeded.
func TestScenarioC_MiddleFailureOnlyUnwindsPredecessor(t *testing.T) {
	desc := &ProcessDesc{
		Name: "p2",
		Steps: []StepDesc{
			okStepWithCleanup("A"),
			{Name: "B", Action: func(h *Handle) { h.FailStep(-1) }},
			okStepWithCleanup("C"),
		},
	}
	tracer := &recordingTracer{}
	status := runSync(t, desc, tracer)

	require.Equal(t, -1, status)
	require.Equal(t, []string{"A", "B"}, tracer.actionNames())
	require.Equal(t, []string{"A"}, tracer.rollbackNames())
}

// Scenario d: nested Call; child's second step fails; parent's calling
// step observes the failure and fails itself, unwinding its own
// predecessor's cleanup.
func TestScenarioD_NestedCallPropagatesFailure(t *testing.T) {
	child := &ProcessDesc{
		Name: "q",
		Steps: []StepDesc{
			okStep("Q1"),
			{Name: "Q2", Action: func(h *Handle) { h.FailStep(-7) }},
		},
	}
	parent := &ProcessDesc{
		Name: "p3",
		Steps: []StepDesc{
			okStepWithCleanup("pre"),
			{Name: "A", Action: func(h *Handle) { h.Call(child) }},
		},
	}
	tracer := &recordingTracer{}
	status := runSync(t, parent, tracer)

	require.Equal(t, -7, status)
	require.Contains(t, tracer.actionNames(), "pre")
	require.Contains(t, tracer.actionNames(), "Q1")
	require.Contains(t, tracer.rollbackNames(), "pre")
}

// Invariant 2: the caller callback fires exactly once.
func TestCallbackFiresExactlyOnce(t *testing.T) {
	desc := &ProcessDesc{Name: "once", Steps: []StepDesc{okStep("A")}}
	e := NewEngine(syncDispatcher{}, nil, nil)
	var calls int
	err := e.Execute(nil, desc, CallerRecord{
		Callback: func(status int) { calls++ },
		Origin:   func(fn func()) { fn() },
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

// Invariant 3: GetStepCtx returns the same buffer across ContinueStep
// re-entries.
func TestContextLifetimeAcrossContinueStep(t *testing.T) {
	var first, second []byte
	entries := 0
	desc := &ProcessDesc{
		Name: "ctx",
		Steps: []StepDesc{
			{
				Name:    "A",
				ArgSize: 16,
				Action: func(h *Handle) {
					entries++
					switch entries {
					case 1:
						first = h.GetStepCtx()
						h.ContinueStep()
					case 2:
						second = h.GetStepCtx()
						h.NextStep()
					}
				},
			},
		},
	}
	runSync(t, desc, nil)
	require.Equal(t, 2, entries)
	require.NotNil(t, first)
	require.Same(t, &first[0], &second[0])
}

// Invariant 6: multiple FailStep calls within one step preserve the
// first failure status.
func TestIdempotentFailure(t *testing.T) {
	desc := &ProcessDesc{
		Name: "idem",
		Steps: []StepDesc{
			{Name: "A", Action: func(h *Handle) {
				h.FailStep(-3)
				h.FailStep(-99)
			}},
		},
	}
	status := runSync(t, desc, nil)
	require.Equal(t, -3, status)
}

// Execute forbids starting a second process while one is active on the
// same engine (Open Question 1 / DESIGN.md).
func TestExecuteRejectsConcurrentProcess(t *testing.T) {
	blocked := make(chan struct{})
	release := make(chan struct{})
	desc := &ProcessDesc{
		Name: "blocker",
		Steps: []StepDesc{
			{Name: "wait", Action: func(h *Handle) {
				close(blocked)
				<-release
				h.NextStep()
			}},
		},
	}

	// Use a dispatcher that runs work on its own goroutine so Execute
	// returns before the blocking step resolves.
	mailbox := make(chan func(), 4)
	go func() {
		for fn := range mailbox {
			fn()
		}
	}()
	disp := mailboxDispatcher{mailbox: mailbox}

	e := NewEngine(disp, nil, nil)
	err := e.Execute(nil, desc, CallerRecord{Callback: func(int) {}, Origin: func(fn func()) { fn() }})
	require.NoError(t, err)

	<-blocked
	err = e.Execute(nil, &ProcessDesc{Name: "second", Steps: []StepDesc{okStep("X")}}, CallerRecord{})
	require.Error(t, err)
	close(release)
}

type mailboxDispatcher struct {
	mailbox chan func()
}

func (d mailboxDispatcher) PostToCore(fn func()) { d.mailbox <- fn }
