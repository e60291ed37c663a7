// Package vnerr collects the sentinel error values surfaced by the
// simulation core, as named in the core's error handling design: protocol
// parsing errors and fabric-level drops stay silent at the layer that
// detects them, while these values are what a send-path caller or a
// session owner actually observes.
package vnerr

import "errors"

var (
	// FrameTooLarge is returned when a payload exceeds the downstream MTU.
	FrameTooLarge = errors.New("vnetsim: frame exceeds mtu")

	// NoRoute is returned when no routing or demux entry matches a
	// destination.
	NoRoute = errors.New("vnetsim: no route to destination")

	// BadChecksum is returned when a received header fails checksum
	// validation. Callers that see this from a receive path should treat it
	// as a silent drop, not propagate it further.
	BadChecksum = errors.New("vnetsim: bad checksum")

	// ConnectionRefused is surfaced to a TCP opener when a RST arrives while
	// the connection is in SYN_SENT.
	ConnectionRefused = errors.New("vnetsim: connection refused")

	// ConnectionReset is surfaced to a TCP session owner when a RST arrives
	// on an established connection.
	ConnectionReset = errors.New("vnetsim: connection reset")

	// TimedOut is returned when a session-level operation with a deadline
	// expires, or when TCP retransmission retries are exhausted.
	TimedOut = errors.New("vnetsim: timed out")

	// OutOfRange is returned by Message.Slice when the requested bounds lie
	// outside the message.
	OutOfRange = errors.New("vnetsim: out of range")

	// ShuttingDown is returned by operations that observe the global
	// shutdown token instead of completing normally.
	ShuttingDown = errors.New("vnetsim: shutting down")
)
