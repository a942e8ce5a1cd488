package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewQueue_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := NewQueue[int](c)
		require.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestQueue_Backpressure(t *testing.T) {
	const capacity = 3
	q, err := NewQueue[int](capacity)
	require.NoError(t, err)

	for i := range capacity {
		require.NoError(t, q.Put(t.Context(), i))
	}
	require.Equal(t, capacity, q.Len())

	done := make(chan error, 1)
	go func() { done <- q.Put(t.Context(), capacity) }()

	select {
	case <-done:
		t.Fatal("put on a full queue must block")
	case <-time.After(50 * time.Millisecond):
	}

	v, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("put did not resume after take")
	}
}

func TestQueue_PutInterrupted(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Put(t.Context(), 1))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err = q.Put(ctx, 2)
	require.ErrorIs(t, err, ErrInterruptedDispatch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_TakeInterrupted(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = q.Take(ctx)
	require.ErrorIs(t, err, ErrInterruptedDispatch)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueue_CloseDrains(t *testing.T) {
	q, err := NewQueue[string](2)
	require.NoError(t, err)
	require.NoError(t, q.Put(t.Context(), "a"))
	require.NoError(t, q.Put(t.Context(), "b"))

	q.Close()
	q.Close()
	require.ErrorIs(t, q.Put(t.Context(), "c"), ErrQueueClosed)

	v, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "a", v)
	v, err = q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "b", v)

	_, err = q.Take(t.Context())
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CloseWakesBlockedTake(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Take(t.Context())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("take not woken by close")
	}
}

func TestQueue_NoPutAfterClose(t *testing.T) {
	for range 200 {
		q, err := NewQueue[int](64)
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			accepted atomic.Int32
			start    = make(chan struct{})
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := range 4 {
					if q.Put(t.Context(), i*4+j) == nil {
						accepted.Add(1)
					}
				}
			}()
		}

		close(start)
		q.Close()

		drained := 0
		for {
			if _, err := q.Take(t.Context()); err != nil {
				require.ErrorIs(t, err, ErrQueueClosed)
				break
			}
			drained++
		}

		wg.Wait()
		require.EqualValues(t, accepted.Load(), drained)
		require.Zero(t, q.Len())
	}
}
