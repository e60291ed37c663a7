// Package message implements the zero-copy Message abstraction used by
// every protocol in the simulated stack. A Message is a rope of shared,
// immutable byte chunks plus a per-span head/tail offset: prepending a
// header, appending a trailer, slicing to a sub-range, and concatenating
// two messages never copy a payload byte, only the (small, constant)
// span bookkeeping.
package message

import (
	"iter"
	"sync/atomic"

	"github.com/vnetsim/vnetsim/vnerr"
)

// ErrOutOfRange is returned by Slice when the requested bounds fall outside
// the message. It is the same sentinel value surfaced by the rest of the
// core as vnerr.OutOfRange.
var ErrOutOfRange = vnerr.OutOfRange

// chunk is an immutable run of bytes. Chunks are never mutated after
// publication; they are shared by reference across every Message and span
// that includes them. The refs counter is bookkeeping for introspection and
// tests (it demonstrates sharing, it does not drive memory reclamation —
// Go's garbage collector frees a chunk once no span references it).
type chunk struct {
	data []byte
	refs int32
}

func newChunk(data []byte) *chunk {
	return &chunk{data: data, refs: 1}
}

func (c *chunk) retain() *chunk {
	atomic.AddInt32(&c.refs, 1)
	return c
}

// refCount reports the current share count of the chunk. Exposed for tests
// that assert on the zero-copy invariant.
func (c *chunk) refCount() int32 {
	return atomic.LoadInt32(&c.refs)
}

// span is a window into a chunk: [start, end) bytes of c.data.
type span struct {
	c          *chunk
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Message is an immutable, cheaply-shareable logical byte sequence. The zero
// value is the empty message.
type Message struct {
	spans []span
}

// New constructs a Message from a byte slice, copying it into a fresh,
// privately-owned chunk. This is the only place a Message construction pays
// for a copy of payload bytes: Prepend and Append copy only the new header
// or trailer into a chunk of its own, and Slice and Concat only share and
// re-slice existing chunks.
func New(b []byte) Message {
	if len(b) == 0 {
		return Message{}
	}

	owned := make([]byte, len(b))
	copy(owned, b)

	return Message{spans: []span{{c: newChunk(owned), start: 0, end: len(owned)}}}
}

// Len returns the number of bytes in the message.
func (m Message) Len() int {
	n := 0
	for _, s := range m.spans {
		n += s.len()
	}

	return n
}

// Prepend returns a new Message whose byte sequence is header ++ m. The
// bytes of m are not touched; only a new span referencing the existing
// chunks is allocated.
func (m Message) Prepend(header []byte) Message {
	if len(header) == 0 {
		return m
	}

	owned := make([]byte, len(header))
	copy(owned, header)

	spans := make([]span, 0, len(m.spans)+1)
	spans = append(spans, span{c: newChunk(owned), start: 0, end: len(owned)})
	spans = append(spans, retainSpans(m.spans)...)

	return Message{spans: spans}
}

// Append returns a new Message whose byte sequence is m ++ trailer.
func (m Message) Append(trailer []byte) Message {
	if len(trailer) == 0 {
		return m
	}

	owned := make([]byte, len(trailer))
	copy(owned, trailer)

	spans := make([]span, 0, len(m.spans)+1)
	spans = append(spans, retainSpans(m.spans)...)
	spans = append(spans, span{c: newChunk(owned), start: 0, end: len(owned)})

	return Message{spans: spans}
}

// Slice returns the sub-message [start, end) of m. It touches only the spans
// overlapping the requested range, trimming the first and last; interior
// spans are shared whole. It fails with ErrOutOfRange when the bounds are
// invalid.
func (m Message) Slice(start, end int) (Message, error) {
	total := m.Len()

	if start < 0 || end < start || end > total {
		return Message{}, ErrOutOfRange
	}

	if start == end {
		return Message{}, nil
	}

	spans := make([]span, 0, len(m.spans))
	pos := 0

	for _, s := range m.spans {
		spanStart := pos
		spanEnd := pos + s.len()
		pos = spanEnd

		if spanEnd <= start || spanStart >= end {
			continue
		}

		lo := s.start
		if start > spanStart {
			lo += start - spanStart
		}

		hi := s.end
		if end < spanEnd {
			hi -= spanEnd - end
		}

		spans = append(spans, span{c: s.c.retain(), start: lo, end: hi})
	}

	return Message{spans: spans}, nil
}

// Concat returns a new Message whose byte sequence is a ++ b, sharing the
// chunks of both without copying.
func Concat(a, b Message) Message {
	spans := make([]span, 0, len(a.spans)+len(b.spans))
	spans = append(spans, retainSpans(a.spans)...)
	spans = append(spans, retainSpans(b.spans)...)

	return Message{spans: spans}
}

// Bytes flattens the message into a single owned byte slice. This is the one
// operation that is necessarily O(len(m)); it exists for callers (tests,
// application boundaries) that need a flat view, not for internal use on the
// send/receive path.
func (m Message) Bytes() []byte {
	b := make([]byte, 0, m.Len())
	for _, s := range m.spans {
		b = append(b, s.c.data[s.start:s.end]...)
	}

	return b
}

// IterBytes returns a lazy, finite iterator over the bytes of the message in
// order.
func (m Message) IterBytes() iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for _, s := range m.spans {
			for _, b := range s.c.data[s.start:s.end] {
				if !yield(b) {
					return
				}
			}
		}
	}
}

// ChunkCount returns the number of chunks backing the message. Exposed for
// tests that verify operations are O(chunks touched), not O(bytes).
func (m Message) ChunkCount() int {
	return len(m.spans)
}

func retainSpans(spans []span) []span {
	out := make([]span, len(spans))
	for i, s := range spans {
		out[i] = span{c: s.c.retain(), start: s.start, end: s.end}
	}

	return out
}
