package sim

import (
	"log"
	"math"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
)

// A ParallelEngine processes same-time events concurrently on a fixed
// worker pool. It carries the tens-of-thousands-of-hosts scale target: at
// any virtual instant the fabric typically holds many independent
// deliveries and timer expirations, and those are exactly the events that
// may run in parallel. Correctness rests on the session discipline —
// each session serializes its own work behind its lock, and no ordering
// is promised across machines or independent flows.
type ParallelEngine struct {
	HookableBase

	timeMu sync.RWMutex
	now    VTimeInSec

	// Scheduling is sharded round-robin across queues so concurrent
	// handlers do not contend on one lock.
	primary   []*TailQueue
	secondary []*TailQueue
	nextShard atomic.Uint64

	workers int
	jobs    chan Event
	done    sync.WaitGroup

	stepMu   sync.Mutex
	pauseMu  sync.Mutex
	isPaused bool

	endHandlers []EndHandler
}

// NewParallelEngine creates a ParallelEngine with one scheduling shard
// and one worker per processor. Event ids switch to the contention-free
// random generator, so parallel runs are not trace-reproducible.
func NewParallelEngine() *ParallelEngine {
	UseRandomEventIDs()

	e := &ParallelEngine{
		workers: runtime.GOMAXPROCS(0),
	}

	for i := 0; i < e.workers; i++ {
		e.primary = append(e.primary, NewTailQueue())
		e.secondary = append(e.secondary, NewTailQueue())
	}

	return e
}

// Schedule accepts an event for processing at its time. Handlers running
// in a round may schedule for the current time; scheduling into the past
// is a programming error.
func (e *ParallelEngine) Schedule(evt Event) {
	if evt.Time() < e.CurrentTime() {
		log.Panicf(
			"cannot schedule event in the past, evt %s @ %.10f, now %.10f",
			reflect.TypeOf(evt), evt.Time(), e.CurrentTime())
	}

	shard := int(e.nextShard.Add(1)) % e.workers

	if evt.IsSecondary() {
		e.secondary[shard].Push(evt)
		return
	}

	e.primary[shard].Push(evt)
}

// Run processes events until none remain. Each iteration advances to the
// earliest pending time and drains it in rounds: all primary events at
// that time (including ones scheduled mid-round for the same time), then
// all secondary events.
func (e *ParallelEngine) Run() error {
	e.startWorkers()
	defer close(e.jobs)

	for {
		t, ok := e.earliestTime()
		if !ok {
			return nil
		}

		e.advanceTo(t)

		for {
			batch := e.collectAt(t, e.primary)
			if len(batch) == 0 {
				batch = e.collectAt(t, e.secondary)
			}
			if len(batch) == 0 {
				break
			}

			e.runBatch(batch)
		}
	}
}

func (e *ParallelEngine) startWorkers() {
	e.jobs = make(chan Event, 4*e.workers)

	for i := 0; i < e.workers; i++ {
		go func() {
			for evt := range e.jobs {
				e.process(evt)
				e.done.Done()
			}
		}()
	}
}

func (e *ParallelEngine) process(evt Event) {
	ctx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(ctx)

	_ = evt.Handler().Handle(evt)

	ctx.Pos = HookPosAfterEvent
	e.InvokeHook(ctx)
}

// earliestTime scans every shard for the next pending time.
func (e *ParallelEngine) earliestTime() (VTimeInSec, bool) {
	earliest := VTimeInSec(math.Inf(1))
	found := false

	for _, group := range [][]*TailQueue{e.primary, e.secondary} {
		for _, q := range group {
			if q.Len() == 0 {
				continue
			}
			if t := q.Peek().Time(); t < earliest {
				earliest = t
				found = true
			}
		}
	}

	return earliest, found
}

// collectAt pops every event scheduled for exactly time t from the given
// shard group.
func (e *ParallelEngine) collectAt(
	t VTimeInSec,
	shards []*TailQueue,
) []Event {
	var batch []Event

	for _, q := range shards {
		for q.Len() > 0 && q.Peek().Time() <= t {
			batch = append(batch, q.Pop())
		}
	}

	return batch
}

// runBatch executes one batch on the worker pool and waits for every
// handler to finish. The barrier between batches is what keeps a
// secondary event from observing a half-run primary round.
func (e *ParallelEngine) runBatch(batch []Event) {
	e.stepMu.Lock()

	e.done.Add(len(batch))
	for _, evt := range batch {
		e.jobs <- evt
	}
	e.done.Wait()

	e.stepMu.Unlock()
}

func (e *ParallelEngine) advanceTo(t VTimeInSec) {
	e.timeMu.Lock()
	e.now = t
	e.timeMu.Unlock()
}

// Pause holds the engine between rounds.
func (e *ParallelEngine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()

	if e.isPaused {
		return
	}

	e.stepMu.Lock()
	e.isPaused = true
}

// Continue resumes a paused engine.
func (e *ParallelEngine) Continue() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()

	if !e.isPaused {
		return
	}

	e.stepMu.Unlock()
	e.isPaused = false
}

// CurrentTime returns the time of the round being processed.
func (e *ParallelEngine) CurrentTime() VTimeInSec {
	e.timeMu.RLock()
	t := e.now
	e.timeMu.RUnlock()

	return t
}

// RegisterEndHandler adds a handler to run when the simulation ends.
func (e *ParallelEngine) RegisterEndHandler(handler EndHandler) {
	e.endHandlers = append(e.endHandlers, handler)
}

// Finished invokes the registered end handlers at the final time.
func (e *ParallelEngine) Finished() {
	now := e.CurrentTime()
	for _, h := range e.endHandlers {
		h.OnSimulationEnd(now)
	}
}
