package collab_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/ftlmngt/collab/memdev"
	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/internal/constants"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

type syncDispatcher struct{}

func (syncDispatcher) PostToCore(fn func()) { fn() }

func runSelfTest(t *testing.T, dev *memdev.Device) int {
	t.Helper()
	desc := &mngt.ProcessDesc{
		Name:  "self_test",
		Steps: []mngt.StepDesc{{Name: "self_test", Action: collab.SelfTestWalk}},
	}
	e := mngt.NewEngine(syncDispatcher{}, nil, nil)
	result := make(chan int, 1)
	err := e.Execute(dev, desc, mngt.CallerRecord{
		Callback: func(status int) { result <- status },
		Origin:   func(fn func()) { fn() },
	})
	require.NoError(t, err)
	return <-result
}

// A double reference spanning two different chunks of the walk must be
// caught even though the final popcount check alone would not catch it:
// address 200 is valid in the bitmap but never referenced by any LBA,
// exactly offsetting the extra valid-L2P-entry the duplicate reference
// to address 100 produces, so only the cross-chunk dedup set can flag
// the inconsistency (spec.md §4.5).
func TestSelfTestWalk_DetectsDoubleReferenceAcrossChunks(t *testing.T) {
	dev := memdev.New(context.Background(), memdev.Config{
		BaseBlockCount: int64(2*constants.SelfTestChunkLBAs + 16),
		BaseBlockSize:  512,
	})

	l2p := dev.L2P()
	l2p.Update(5, 100)
	l2p.Update(constants.SelfTestChunkLBAs+4, 100)

	st, ok := dev.SelfTest().(*memdev.SelfTest)
	require.True(t, ok)
	st.SetValid(100, true)
	st.SetValid(200, true)

	status := runSelfTest(t, dev)
	require.Equal(t, -1, status)
}

// The walk passes cleanly when every valid L2P entry maps to a distinct,
// correctly marked physical address across chunk boundaries.
func TestSelfTestWalk_PassesWithConsistentMappingAcrossChunks(t *testing.T) {
	dev := memdev.New(context.Background(), memdev.Config{
		BaseBlockCount: int64(2*constants.SelfTestChunkLBAs + 16),
		BaseBlockSize:  512,
	})

	l2p := dev.L2P()
	l2p.Update(5, 100)
	l2p.Update(constants.SelfTestChunkLBAs+4, 200)

	st, ok := dev.SelfTest().(*memdev.SelfTest)
	require.True(t, ok)
	st.SetValid(100, true)
	st.SetValid(200, true)

	status := runSelfTest(t, dev)
	require.Equal(t, 0, status)
}
