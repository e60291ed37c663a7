package stats

import (
	"sort"
	"sync"

	"github.com/vnetsim/vnetsim/sim"
)

// Recorder is a Hook that accumulates Sample and RTTSample observations in
// memory, grouped by counter and source. It is the in-process counterpart
// to Writer (which additionally persists to SQLite); a simulation run can
// plug a Recorder into as many components as it wants to observe.
type Recorder struct {
	mu      sync.Mutex
	counts  map[Counter]map[string]int64
	rtts    map[string][]sim.VTimeInSec
	writer  *Writer
}

// NewRecorder creates an empty Recorder. If writer is non-nil, every
// observation is also forwarded to it for persistence.
func NewRecorder(writer *Writer) *Recorder {
	return &Recorder{
		counts: make(map[Counter]map[string]int64),
		rtts:   make(map[string][]sim.VTimeInSec),
		writer: writer,
	}
}

// Func implements sim.Hook.
func (r *Recorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosSample:
		sample := ctx.Item.(Sample)
		r.record(sample)

		if r.writer != nil {
			r.writer.WriteSample(sample)
		}
	case HookPosRTTSample:
		sample := ctx.Item.(RTTSample)
		r.recordRTT(sample)

		if r.writer != nil {
			r.writer.WriteRTT(sample)
		}
	}
}

func (r *Recorder) record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySource, ok := r.counts[s.Counter]
	if !ok {
		bySource = make(map[string]int64)
		r.counts[s.Counter] = bySource
	}

	bySource[s.Source]++
}

func (r *Recorder) recordRTT(s RTTSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rtts[s.Source] = append(r.rtts[s.Source], s.RTT)
}

// Count returns the number of observations recorded for counter from
// source.
func (r *Recorder) Count(counter Counter, source string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts[counter][source]
}

// Total returns the number of observations recorded for counter across
// every source.
func (r *Recorder) Total(counter Counter) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, n := range r.counts[counter] {
		total += n
	}

	return total
}

// RTTs returns the RTT samples recorded for source, in observation order.
func (r *Recorder) RTTs(source string) []sim.VTimeInSec {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]sim.VTimeInSec, len(r.rtts[source]))
	copy(out, r.rtts[source])

	return out
}

// Sources returns every source that has recorded at least one sample for
// counter, sorted for deterministic reporting.
func (r *Recorder) Sources(counter Counter) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.counts[counter]))
	for source := range r.counts[counter] {
		out = append(out, source)
	}

	sort.Strings(out)

	return out
}
