// Package stats provides the telemetry recording surface the core exposes
// to an external benchmarking harness (spec §1 names it an out-of-scope
// collaborator): per-tap frame counters and per-TCP-session retransmission
// and RTT counters, collected the same way the core collects everything
// else — as a Hook plugged into a Hookable — and optionally persisted to a
// SQLite database for offline analysis.
package stats

import "github.com/vnetsim/vnetsim/sim"

// Counter identifies one thing the recorder counts.
type Counter string

// Well-known counters recorded by the fabric and the TCP session.
const (
	FramesSent       Counter = "frames_sent"
	FramesDropped    Counter = "frames_dropped"
	FramesCorrupted  Counter = "frames_corrupted"
	FramesDelivered  Counter = "frames_delivered"
	TCPRetransmits   Counter = "tcp_retransmits"
	TCPFastRetransmits Counter = "tcp_fast_retransmits"
)

// Sample is one recorded observation: a named counter incremented by one,
// against a named source, at a point in simulated time.
type Sample struct {
	Counter Counter
	Source  string
	Time    sim.VTimeInSec
	Detail  interface{}
}

// RTTSample is a single RTT observation recorded by a TCP session, kept
// distinct from the integer Counters because its value is a duration, not
// a tally.
type RTTSample struct {
	Source string
	Time   sim.VTimeInSec
	RTT    sim.VTimeInSec
}

// HookPosSample marks the site where a Sample was produced.
var HookPosSample = &sim.HookPos{Name: "Stats Sample"}

// HookPosRTTSample marks the site where an RTTSample was produced.
var HookPosRTTSample = &sim.HookPos{Name: "Stats RTT Sample"}

// Record invokes domain's hooks with a Sample for the given counter. It is
// a no-op when nothing is listening.
func Record(domain sim.Hookable, counter Counter, now sim.VTimeInSec, detail interface{}) {
	hookable, ok := domain.(interface {
		sim.Hookable
		NumHooks() int
		InvokeHook(sim.HookCtx)
	})
	if !ok || hookable.NumHooks() == 0 {
		return
	}

	named, _ := domain.(sim.Named)
	source := ""
	if named != nil {
		source = named.Name()
	}

	hookable.InvokeHook(sim.HookCtx{
		Domain: domain,
		Pos:    HookPosSample,
		Item: Sample{
			Counter: counter,
			Source:  source,
			Time:    now,
			Detail:  detail,
		},
	})
}

// RecordRTT invokes domain's hooks with an RTTSample.
func RecordRTT(domain sim.Hookable, now sim.VTimeInSec, rtt sim.VTimeInSec) {
	hookable, ok := domain.(interface {
		sim.Hookable
		NumHooks() int
		InvokeHook(sim.HookCtx)
	})
	if !ok || hookable.NumHooks() == 0 {
		return
	}

	named, _ := domain.(sim.Named)
	source := ""
	if named != nil {
		source = named.Name()
	}

	hookable.InvokeHook(sim.HookCtx{
		Domain: domain,
		Pos:    HookPosRTTSample,
		Item: RTTSample{
			Source: source,
			Time:   now,
			RTT:    rtt,
		},
	})
}
