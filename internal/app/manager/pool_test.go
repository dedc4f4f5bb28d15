package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsInFIFOOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewPool(1, log, nil)

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := range 5 {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownCancelsAndRejects(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewPool(1, log, nil)

	running := make(chan struct{})
	stopped := make(chan error, 1)
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(running)
		<-ctx.Done()
		stopped <- ctx.Err()
	}))
	pendingCtx := make(chan error, 1)
	require.NoError(t, p.Submit(func(ctx context.Context) {
		pendingCtx <- ctx.Err()
	}))

	<-running
	require.Equal(t, 1, p.Active())
	require.Equal(t, 1, p.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	require.ErrorIs(t, <-stopped, context.Canceled)
	require.ErrorIs(t, <-pendingCtx, context.Canceled)
	require.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := NewPool(1, log, nil)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job after a panicking job never ran")
	}
	require.NoError(t, p.Shutdown(context.Background()))
	require.NotEmpty(t, hook.AllEntries())
}
