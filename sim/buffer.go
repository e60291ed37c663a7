package sim

import "log"

// HookPosBufPush marks when an element is pushed into the buffer.
var HookPosBufPush = &HookPos{Name: "Buffer Push"}

// HookPosBufPop marks when an element is popped from the buffer.
var HookPosBufPop = &HookPos{Name: "Buf Pop"}

// A Buffer is a bounded FIFO queue. The fabric uses one per tap as the
// inbound frame queue; pushing into a full buffer is a programming error,
// so callers gate on CanPush and decide themselves what to drop.
type Buffer interface {
	Named
	Hookable

	CanPush() bool
	Push(e interface{})
	Pop() interface{}
	Peek() interface{}
	Capacity() int
	Size() int

	// Remove all elements in the buffer
	Clear()
}

// NewBuffer creates a buffer with a fixed capacity.
func NewBuffer(name string, capacity int) Buffer {
	NameMustBeValid(name)

	return &ringBuffer{
		name:     name,
		capacity: capacity,
		elements: make([]interface{}, capacity),
	}
}

// ringBuffer is a fixed-size circular queue: head chases tail through one
// allocation, so a tap that queues and drains frames every delivery never
// reallocates.
type ringBuffer struct {
	HookableBase

	name     string
	capacity int
	elements []interface{}
	head     int
	count    int
}

// Name returns the name of the buffer.
func (b *ringBuffer) Name() string {
	return b.name
}

func (b *ringBuffer) CanPush() bool {
	return b.count < b.capacity
}

func (b *ringBuffer) Push(e interface{}) {
	if b.count >= b.capacity {
		log.Panic("buffer overflow")
	}

	b.elements[(b.head+b.count)%b.capacity] = e
	b.count++

	if len(b.Hooks) > 0 {
		b.InvokeHook(HookCtx{
			Domain: b,
			Pos:    HookPosBufPush,
			Item:   e,
		})
	}
}

func (b *ringBuffer) Pop() interface{} {
	if b.count == 0 {
		return nil
	}

	e := b.elements[b.head]
	b.elements[b.head] = nil
	b.head = (b.head + 1) % b.capacity
	b.count--

	if len(b.Hooks) > 0 {
		b.InvokeHook(HookCtx{
			Domain: b,
			Pos:    HookPosBufPop,
			Item:   e,
		})
	}

	return e
}

func (b *ringBuffer) Peek() interface{} {
	if b.count == 0 {
		return nil
	}

	return b.elements[b.head]
}

func (b *ringBuffer) Capacity() int {
	return b.capacity
}

func (b *ringBuffer) Size() int {
	return b.count
}

func (b *ringBuffer) Clear() {
	for i := range b.elements {
		b.elements[i] = nil
	}
	b.head = 0
	b.count = 0
}
