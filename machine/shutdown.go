package machine

import (
	"sync"
	"sync/atomic"
)

// Shutdown is the global cancellation token of one simulation run. It is
// created when the engine starts and broadcast to every protocol through
// Start. Tasks observe it at their suspension points: a ticking application
// stops rescheduling, a TCP timer declines to re-arm, and a send path
// refuses new work with vnerr.ShuttingDown.
type Shutdown struct {
	once      sync.Once
	triggered atomic.Bool
	status    atomic.Int32
}

// NewShutdown creates a shutdown token for one simulation run.
func NewShutdown() *Shutdown {
	return &Shutdown{}
}

// Trigger requests the end of the simulation with the given exit status.
// Only the first call takes effect. In-flight fabric deliveries are
// abandoned: the engine keeps draining already-scheduled events, but every
// cooperating task exits at its next suspension point instead of
// scheduling more.
func (s *Shutdown) Trigger(status int) {
	s.once.Do(func() {
		s.status.Store(int32(status))
		s.triggered.Store(true)
	})
}

// Triggered reports whether shutdown has been requested.
func (s *Shutdown) Triggered() bool {
	return s.triggered.Load()
}

// Status returns the exit status the simulation should report. It is zero
// until Trigger is called with a non-zero value.
func (s *Shutdown) Status() int {
	return int(s.status.Load())
}
