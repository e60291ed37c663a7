package sim

import (
	"container/heap"
	"sync"
)

// An EventQueue holds scheduled events ordered by time.
type EventQueue interface {
	Push(evt Event)
	Pop() Event
	Len() int
	Peek() Event
}

// HeapQueue is a thread-safe event queue backed by a binary heap: O(log n)
// regardless of the scheduling pattern. Both engines schedule through
// TailQueue instead.
type HeapQueue struct {
	sync.Mutex
	events eventHeap
}

// NewEventQueue creates a heap-backed event queue.
func NewEventQueue() *HeapQueue {
	return &HeapQueue{}
}

// Push adds an event to the queue.
func (q *HeapQueue) Push(evt Event) {
	q.Lock()
	heap.Push(&q.events, evt)
	q.Unlock()
}

// Pop removes and returns the earliest event.
func (q *HeapQueue) Pop() Event {
	q.Lock()
	evt := heap.Pop(&q.events).(Event)
	q.Unlock()

	return evt
}

// Len returns the number of queued events.
func (q *HeapQueue) Len() int {
	q.Lock()
	n := len(q.events)
	q.Unlock()

	return n
}

// Peek returns the earliest event without removing it.
func (q *HeapQueue) Peek() Event {
	q.Lock()
	evt := q.events[0]
	q.Unlock()

	return evt
}

type eventHeap []Event

func (h eventHeap) Len() int {
	return len(h)
}

func (h eventHeap) Less(i, j int) bool {
	return h[i].Time() < h[j].Time()
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	evt := old[n-1]
	*h = old[:n-1]

	return evt
}

// TailQueue is a thread-safe event queue kept sorted by insertion from
// the tail. The simulator's scheduling pattern is nearly nondecreasing —
// fabric deliveries land latency-after-now and TCP timers land RTO-after-
// now — so the backwards scan almost always stops at the first
// comparison, making Push O(1) amortized where a heap pays O(log n).
type TailQueue struct {
	sync.Mutex
	events []Event
}

// NewTailQueue creates a tail-insertion event queue.
func NewTailQueue() *TailQueue {
	return &TailQueue{}
}

// Push inserts an event, keeping the queue sorted by time.
func (q *TailQueue) Push(evt Event) {
	q.Lock()

	i := len(q.events)
	for i > 0 && q.events[i-1].Time() > evt.Time() {
		i--
	}

	q.events = append(q.events, nil)
	copy(q.events[i+1:], q.events[i:])
	q.events[i] = evt

	q.Unlock()
}

// Pop removes and returns the earliest event.
func (q *TailQueue) Pop() Event {
	q.Lock()
	evt := q.events[0]
	q.events = q.events[1:]
	q.Unlock()

	return evt
}

// Len returns the number of queued events.
func (q *TailQueue) Len() int {
	q.Lock()
	n := len(q.events)
	q.Unlock()

	return n
}

// Peek returns the earliest event without removing it.
func (q *TailQueue) Peek() Event {
	q.Lock()
	evt := q.events[0]
	q.Unlock()

	return evt
}
