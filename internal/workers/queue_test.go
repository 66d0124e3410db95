package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/packfactory/packfactory/internal/logging"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestQueue_ProcessesItems(t *testing.T) {
	var mu sync.Mutex
	var got []int64

	q := NewQueue("test", func(ctx context.Context, id int64) error {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
		return nil
	}, semaphore.NewWeighted(4), time.Millisecond, logging.NewNopLogger())

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	q.Stop()

	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestQueue_EnqueueAfterStopFails(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, id int64) error {
		return nil
	}, semaphore.NewWeighted(1), time.Millisecond, logging.NewNopLogger())

	q.Start(context.Background())
	q.Stop()

	require.ErrorIs(t, q.Enqueue(1), ErrQueueStopped)
}

func TestQueue_RestartsAfterHandlerError(t *testing.T) {
	var mu sync.Mutex
	var calls []int64

	q := NewQueue("test", func(ctx context.Context, id int64) error {
		mu.Lock()
		calls = append(calls, id)
		mu.Unlock()
		if id == 1 {
			return errors.New("boom")
		}
		return nil
	}, semaphore.NewWeighted(1), time.Millisecond, logging.NewNopLogger())

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	q.Stop()

	// The failing item restarted the loop; the next item still ran.
	require.Equal(t, []int64{1, 2}, calls)
}

func TestQueue_RecoverFromPanic(t *testing.T) {
	var mu sync.Mutex
	var calls []int64

	q := NewQueue("test", func(ctx context.Context, id int64) error {
		mu.Lock()
		calls = append(calls, id)
		mu.Unlock()
		if id == 1 {
			panic("handler exploded")
		}
		return nil
	}, semaphore.NewWeighted(1), time.Millisecond, logging.NewNopLogger())

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	q.Stop()

	require.Equal(t, []int64{1, 2}, calls)
}

func TestQueue_StopIsIdempotent(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, id int64) error {
		return nil
	}, semaphore.NewWeighted(1), time.Millisecond, logging.NewNopLogger())

	q.Start(context.Background())
	q.Stop()
	q.Stop()
}

func TestQueue_SharedPoolBoundsConcurrency(t *testing.T) {
	pool := semaphore.NewWeighted(1)

	release := make(chan struct{})
	started := make(chan int64, 2)

	slow := NewQueue("slow", func(ctx context.Context, id int64) error {
		started <- id
		<-release
		return nil
	}, pool, time.Millisecond, logging.NewNopLogger())

	fast := NewQueue("fast", func(ctx context.Context, id int64) error {
		started <- id
		return nil
	}, pool, time.Millisecond, logging.NewNopLogger())

	slow.Start(context.Background())
	fast.Start(context.Background())

	require.NoError(t, slow.Enqueue(1))
	<-started
	require.NoError(t, fast.Enqueue(2))

	// The fast queue's item cannot start while the slow one holds the
	// only pool slot.
	select {
	case id := <-started:
		t.Fatalf("item %d ran before the pool slot freed", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.Equal(t, int64(2), <-started)

	slow.Stop()
	fast.Stop()
}
