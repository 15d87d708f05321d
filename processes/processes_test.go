package processes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/ftlmngt/collab/memdev"
	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

type syncDispatcher struct{}

func (syncDispatcher) PostToCore(fn func()) { fn() }

type recordingTracer struct {
	names []string
}

func (r *recordingTracer) StepDone(processName string, desc *mngt.StepDesc, rec mngt.ExecRecord, rollback bool) {
	if !rollback {
		r.names = append(r.names, desc.Name)
	}
}

func (r *recordingTracer) ProcessDone(string, int, time.Duration, bool) {}

func (r *recordingTracer) contains(name string) bool {
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func newDevice(t *testing.T, mode collab.StartupMode) *memdev.Device {
	t.Helper()
	return memdev.New(context.Background(), memdev.Config{
		BaseBlockCount:  4096,
		BaseBlockSize:   512,
		CacheBlockCount: 512,
		CacheBlockSize:  512,
		HasCache:        true,
		Mode:            mode,
	})
}

func runProcess(t *testing.T, dev collab.Provider, desc *mngt.ProcessDesc) (int, *recordingTracer) {
	t.Helper()
	tracer := &recordingTracer{}
	e := mngt.NewEngine(syncDispatcher{}, tracer, nil)
	result := make(chan int, 1)
	err := e.Execute(dev, desc, mngt.CallerRecord{
		Callback: func(status int) { result <- status },
		Origin:   func(fn func()) { fn() },
	})
	require.NoError(t, err)
	return <-result, tracer
}

func TestStartup_FirstStart_RunsScrubAndNoRecover(t *testing.T) {
	dev := newDevice(t, collab.ModeCreate)
	status, tracer := runProcess(t, dev, Startup)

	require.Equal(t, 0, status)
	require.True(t, tracer.contains("scrub_nv_cache"))
	require.False(t, tracer.contains("relocation_recover"))
	require.False(t, tracer.contains("restore_md"))
}

func TestStartup_Restore_CleanSelectsCleanStart(t *testing.T) {
	dev := newDevice(t, collab.ModeRestore)
	sb := dev.SuperBlock()
	sb.InitDefault()
	sb.SetClean(true)
	require.NoError(t, sb.Persist(context.Background()))

	status, tracer := runProcess(t, dev, Startup)

	require.Equal(t, 0, status)
	require.True(t, tracer.contains("restore_md"))
	require.True(t, tracer.contains("self_test"))
	require.False(t, tracer.contains("relocation_recover"))
	require.False(t, tracer.contains("scrub_nv_cache"))
}

func TestStartup_Restore_DirtySelectsRecover(t *testing.T) {
	dev := newDevice(t, collab.ModeRestore)
	sb := dev.SuperBlock()
	sb.InitDefault()
	sb.SetClean(false)
	require.NoError(t, sb.Persist(context.Background()))

	status, tracer := runProcess(t, dev, Startup)

	require.Equal(t, 0, status)
	require.True(t, tracer.contains("relocation_recover"))
	require.True(t, tracer.contains("restore_md"))
}

func TestNewTrim_UnmapsRequestedRange(t *testing.T) {
	dev := newDevice(t, collab.ModeCreate)
	status, _ := runProcess(t, dev, NewTrim(100, 5))

	require.Equal(t, 0, status)
	trim, ok := dev.Trim().(*memdev.Trim)
	require.True(t, ok)
	require.Equal(t, uint64(5), trim.Unmapped())
}

func TestShutdownNormal_FlushesL2PAndMarksClean(t *testing.T) {
	dev := newDevice(t, collab.ModeCreate)
	status, _ := runProcess(t, dev, Startup)
	require.Equal(t, 0, status)

	status, tracer := runProcess(t, dev, ShutdownNormal)
	require.Equal(t, 0, status)
	require.True(t, tracer.contains("persist_l2p"))
	require.True(t, tracer.contains("persist_md"))
	require.True(t, dev.SuperBlock().Clean())
}

func TestShutdownFast_SkipsFullMetadataFlush(t *testing.T) {
	dev := newDevice(t, collab.ModeCreate)
	status, _ := runProcess(t, dev, Startup)
	require.Equal(t, 0, status)

	status, tracer := runProcess(t, dev, ShutdownFast)
	require.Equal(t, 0, status)
	require.True(t, tracer.contains("fast_persist_md"))
	require.False(t, tracer.contains("persist_l2p"))
}
