package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostToCore_FIFOOrder(t *testing.T) {
	d := New(Config{})
	d.Start()
	defer d.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		d.PostToCore(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Len(t, order, 10)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestStop_DrainsPendingWork(t *testing.T) {
	d := New(Config{})
	d.Start()

	done := make(chan struct{})
	d.PostToCore(func() { close(done) })
	d.Stop()

	select {
	case <-done:
	default:
		t.Fatal("expected queued work to have run by the time Stop returned")
	}
}

func TestPostToOrigin_RunsImmediately(t *testing.T) {
	ran := false
	PostToOrigin(func() { ran = true })
	require.True(t, ran)
}
