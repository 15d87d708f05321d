// Package trace implements the engine's audit output: one line per
// non-silent step plus a process-summary line, grounded on
// ftl_mngt_trace_step/ftl_mngt_process_summary in the original FTL
// management sources.
package trace

import (
	"time"

	"github.com/ehrlich-b/ftlmngt/internal/logging"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

// Tracer implements mngt.Tracer, writing one line per non-silent step
// and a process-summary line through an injected Logger, the same
// dependency-injection shape the teacher's Runner/Controller take a
// Logger rather than calling a global logging function.
type Tracer struct {
	logger *logging.Logger
}

// New constructs a Tracer. logger may be nil, in which case
// logging.Default() is used.
func New(logger *logging.Logger) *Tracer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracer{logger: logger}
}

// StepDone emits `<what> name=<step.name> duration=<ms>.3 status=<i32>`
// for a completed step, unless the record is marked silent.
func (t *Tracer) StepDone(processName string, desc *mngt.StepDesc, rec mngt.ExecRecord, rollback bool) {
	if rec.Silent {
		return
	}
	what := "action"
	if rollback {
		what = "rollback"
	}
	durMs := float64(rec.Stop.Sub(rec.Start)) / float64(time.Millisecond)
	t.logger.Infof("%s name=%s duration=%.3fms status=%d", what, desc.Name, durMs, rec.Status)
}

// ProcessDone emits the process-summary line, unless silent.
func (t *Tracer) ProcessDone(processName string, status int, dur time.Duration, silent bool) {
	if silent {
		return
	}
	durMs := float64(dur) / float64(time.Millisecond)
	t.logger.Infof("Management process finished, name '%s', duration=%.3fms, result %d", processName, durMs, status)
}

var _ mngt.Tracer = (*Tracer)(nil)
