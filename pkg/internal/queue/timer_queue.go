package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Item is a scheduled entry in a TimerQueue.
type Item[T any] struct {
	Value T         // The scheduled work
	Due   time.Time // When this item becomes ready
	seq   uint64    // Insertion order, breaks ties between equal due times
	index int       // Index in the heap
}

// TimerQueue orders items by due time, then by insertion order.
// All methods are safe for concurrent use.
type TimerQueue[T any] struct {
	items   itemHeap[T]
	nextSeq uint64
	mu      sync.Mutex
}

// NewTimerQueue creates an empty queue
func NewTimerQueue[T any]() *TimerQueue[T] {
	q := &TimerQueue[T]{
		items: make(itemHeap[T], 0),
	}
	heap.Init(&q.items)
	return q
}

// Push schedules value to become ready at due
func (q *TimerQueue[T]) Push(value T, due time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	heap.Push(&q.items, &Item[T]{
		Value: value,
		Due:   due,
		seq:   q.nextSeq,
	})
}

// PopReady removes and returns the earliest item if it is due at now.
func (q *TimerQueue[T]) PopReady(now time.Time) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.items.Len() == 0 {
		return zero, false
	}
	if now.Before(q.items[0].Due) {
		return zero, false
	}

	item := heap.Pop(&q.items).(*Item[T])
	return item.Value, true
}

// NextDue returns the due time of the earliest item.
func (q *TimerQueue[T]) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return time.Time{}, false
	}
	return q.items[0].Due, true
}

// Len returns the number of items in the queue
func (q *TimerQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear removes all items
func (q *TimerQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(itemHeap[T], 0)
	heap.Init(&q.items)
}

// itemHeap implements heap.Interface
type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Due.Before(h[j].Due) {
		return true
	}
	if h[j].Due.Before(h[i].Due) {
		return false
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
