// Package events provides the single-goroutine cooperative run loop that
// serializes every stack event, retry and callback of a node.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"avaneesh/lorawan-node/pkg/internal/queue"
)

// DefaultCapacity is the number of pending items a queue accepts.
const DefaultCapacity = 10

var (
	ErrQueueFull          = errors.New("event queue is full")
	ErrQueueClosed        = errors.New("event queue is closed")
	ErrNilEvent           = errors.New("nil event callback")
	ErrAlreadyDispatching = errors.New("event queue is already dispatching")
)

// EventQueue runs queued closures one at a time, in due-time then insertion order.
// Posting is safe from any goroutine; closures always run on the goroutine
// calling Dispatch.
type EventQueue struct {
	items    *queue.TimerQueue[func()]
	capacity int
	wake     chan struct{}

	mu          sync.Mutex
	breakReq    bool
	dispatching bool
	closed      bool
}

// NewEventQueue creates a queue holding at most capacity pending items.
// A capacity <= 0 selects DefaultCapacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventQueue{
		items:    queue.NewTimerQueue[func()](),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Call posts fn for immediate dispatch
func (e *EventQueue) Call(fn func()) error {
	return e.CallIn(0, fn)
}

// CallIn posts fn to run once delay has elapsed
func (e *EventQueue) CallIn(delay time.Duration, fn func()) error {
	if fn == nil {
		return ErrNilEvent
	}
	if delay < 0 {
		delay = 0
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrQueueClosed
	}
	if e.items.Len() >= e.capacity {
		e.mu.Unlock()
		return ErrQueueFull
	}
	e.items.Push(fn, time.Now().Add(delay))
	e.mu.Unlock()

	e.signal()
	return nil
}

// DispatchForever runs the loop until BreakDispatch or Close
func (e *EventQueue) DispatchForever() {
	_ = e.Dispatch(context.Background())
}

// Dispatch runs the loop until BreakDispatch (nil), Close (ErrQueueClosed)
// or ctx is done (ctx.Err()).
func (e *EventQueue) Dispatch(ctx context.Context) error {
	e.mu.Lock()
	if e.dispatching {
		e.mu.Unlock()
		return ErrAlreadyDispatching
	}
	e.dispatching = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.dispatching = false
		e.breakReq = false
		e.mu.Unlock()
	}()

	for {
		if err := e.stopRequested(); err != nil {
			if errors.Is(err, errBreak) {
				return nil
			}
			return err
		}

		if fn, ok := e.items.PopReady(time.Now()); ok {
			fn()
			continue
		}

		var timer *time.Timer
		var timeout <-chan time.Time
		if due, ok := e.items.NextDue(); ok {
			timer = time.NewTimer(time.Until(due))
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-e.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

var errBreak = errors.New("break")

func (e *EventQueue) stopRequested() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrQueueClosed
	}
	if e.breakReq {
		return errBreak
	}
	return nil
}

// BreakDispatch makes the running Dispatch return once the current closure
// finishes. Queued items stay queued but do not run in that Dispatch call.
// When nothing is dispatching, the next Dispatch returns immediately.
func (e *EventQueue) BreakDispatch() {
	e.mu.Lock()
	e.breakReq = true
	e.mu.Unlock()
	e.signal()
}

// Close discards pending items and rejects further posts
func (e *EventQueue) Close() {
	e.mu.Lock()
	e.closed = true
	e.items.Clear()
	e.mu.Unlock()
	e.signal()
}

// Len returns the number of pending items
func (e *EventQueue) Len() int {
	return e.items.Len()
}

// Capacity returns the maximum number of pending items
func (e *EventQueue) Capacity() int {
	return e.capacity
}

func (e *EventQueue) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
