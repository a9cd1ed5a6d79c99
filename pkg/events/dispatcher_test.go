package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runQueue(t *testing.T, q *EventQueue) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- q.Dispatch(context.Background())
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
		return nil
	}
}

func TestEventQueue_RunsInInsertionOrder(t *testing.T) {
	q := NewEventQueue(32)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, q.Call(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, q.Call(q.BreakDispatch))

	done := runQueue(t, q)
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestEventQueue_DelayedCallRunsAfterDelay(t *testing.T) {
	q := NewEventQueue(0)
	done := runQueue(t, q)

	start := time.Now()
	fired := make(chan time.Duration, 1)
	require.NoError(t, q.CallIn(50*time.Millisecond, func() {
		fired <- time.Since(start)
	}))

	select {
	case elapsed := <-fired:
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed call never ran")
	}

	q.BreakDispatch()
	require.NoError(t, waitDone(t, done))
}

func TestEventQueue_ImmediateOvertakesDelayed(t *testing.T) {
	q := NewEventQueue(0)

	var order []string
	require.NoError(t, q.CallIn(30*time.Millisecond, func() {
		order = append(order, "delayed")
		q.BreakDispatch()
	}))
	require.NoError(t, q.Call(func() { order = append(order, "immediate") }))

	done := runQueue(t, q)
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, []string{"immediate", "delayed"}, order)
}

func TestEventQueue_BreakStopsFurtherWork(t *testing.T) {
	q := NewEventQueue(0)

	var ran atomic.Int32
	require.NoError(t, q.Call(func() {
		ran.Add(1)
		q.BreakDispatch()
	}))
	require.NoError(t, q.Call(func() { ran.Add(1) }))
	require.NoError(t, q.Call(func() { ran.Add(1) }))

	done := runQueue(t, q)
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, 2, q.Len())
}

func TestEventQueue_BreakBeforeDispatch(t *testing.T) {
	q := NewEventQueue(0)
	q.BreakDispatch()

	var ran atomic.Bool
	require.NoError(t, q.Call(func() { ran.Store(true) }))

	require.NoError(t, q.Dispatch(context.Background()))
	assert.False(t, ran.Load())
}

func TestEventQueue_CapacityLimit(t *testing.T) {
	q := NewEventQueue(2)

	require.NoError(t, q.Call(func() {}))
	require.NoError(t, q.CallIn(time.Minute, func() {}))
	assert.ErrorIs(t, q.Call(func() {}), ErrQueueFull)
	assert.Equal(t, 2, q.Capacity())
}

func TestEventQueue_NilCallback(t *testing.T) {
	q := NewEventQueue(0)
	assert.ErrorIs(t, q.Call(nil), ErrNilEvent)
}

func TestEventQueue_CloseRejectsAndStops(t *testing.T) {
	q := NewEventQueue(0)
	done := runQueue(t, q)

	q.Close()
	assert.ErrorIs(t, waitDone(t, done), ErrQueueClosed)
	assert.ErrorIs(t, q.Call(func() {}), ErrQueueClosed)
}

func TestEventQueue_ContextCancel(t *testing.T) {
	q := NewEventQueue(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Dispatch(ctx) }()

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}

func TestEventQueue_SingleDispatcher(t *testing.T) {
	q := NewEventQueue(0)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.Call(func() {
		close(started)
		<-release
	}))

	done := runQueue(t, q)
	<-started
	assert.ErrorIs(t, q.Dispatch(context.Background()), ErrAlreadyDispatching)

	q.BreakDispatch()
	close(release)
	require.NoError(t, waitDone(t, done))
}

func TestEventQueue_ConcurrentPostersAreSerialized(t *testing.T) {
	q := NewEventQueue(1000)
	done := runQueue(t, q)

	var inside atomic.Int32
	var overlap atomic.Bool
	var count atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Call(func() {
					if inside.Add(1) > 1 {
						overlap.Store(true)
					}
					count.Add(1)
					inside.Add(-1)
				})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return count.Load() == 400 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, overlap.Load())

	q.BreakDispatch()
	require.NoError(t, waitDone(t, done))
}
