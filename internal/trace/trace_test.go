package trace

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/ftlmngt/internal/logging"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

func newCapturingTracer(t *testing.T) (*Tracer, *strings.Builder) {
	t.Helper()
	var buf strings.Builder
	logger := logging.NewLogger(&logging.Config{Level: logging.LevelDebug, Output: &buf})
	return New(logger), &buf
}

func TestStepDone_EmitsLineUnlessSilent(t *testing.T) {
	tr, buf := newCapturingTracer(t)
	start := time.Now()
	rec := mngt.ExecRecord{Start: start, Stop: start.Add(5 * time.Millisecond), Status: 0}
	tr.StepDone("startup", &mngt.StepDesc{Name: "init_l2p"}, rec, false)

	require.Contains(t, buf.String(), "action")
	require.Contains(t, buf.String(), "init_l2p")

	buf.Reset()
	rec.Silent = true
	tr.StepDone("startup", &mngt.StepDesc{Name: "init_l2p"}, rec, false)
	require.Empty(t, buf.String())
}

func TestStepDone_RollbackLabel(t *testing.T) {
	tr, buf := newCapturingTracer(t)
	start := time.Now()
	rec := mngt.ExecRecord{Start: start, Stop: start, Status: -1}
	tr.StepDone("startup", &mngt.StepDesc{Name: "open_base_bdev"}, rec, true)
	require.Contains(t, buf.String(), "rollback")
}

func TestProcessDone_EmitsSummary(t *testing.T) {
	tr, buf := newCapturingTracer(t)
	tr.ProcessDone("startup", 0, 10*time.Millisecond, false)
	require.Contains(t, buf.String(), "startup")
	require.Contains(t, buf.String(), "result 0")

	buf.Reset()
	tr.ProcessDone("startup", 0, 10*time.Millisecond, true)
	require.Empty(t, buf.String())
}
