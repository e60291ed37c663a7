package sim

import (
	"log"
	"reflect"
	"sync"
)

// A SerialEngine processes one event at a time on the calling goroutine.
// Runs are deterministic: the same scenario replays the same event order,
// which is what the protocol tests and small simulations want.
type SerialEngine struct {
	HookableBase

	timeMu sync.RWMutex
	now    VTimeInSec

	primary   *TailQueue
	secondary *TailQueue

	stepMu   sync.Mutex
	pauseMu  sync.Mutex
	isPaused bool

	endHandlers []EndHandler
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		primary:   NewTailQueue(),
		secondary: NewTailQueue(),
	}
}

// Schedule accepts an event for processing at its time. Scheduling into
// the past is a programming error.
func (e *SerialEngine) Schedule(evt Event) {
	if evt.Time() < e.CurrentTime() {
		log.Panicf(
			"cannot schedule event in the past, evt %s @ %.10f, now %.10f",
			reflect.TypeOf(evt), evt.Time(), e.CurrentTime(),
		)
	}

	if evt.IsSecondary() {
		e.secondary.Push(evt)
		return
	}

	e.primary.Push(evt)
}

// Run processes events in time order until none remain. Secondary events
// at a given time run only after every primary event at that time.
func (e *SerialEngine) Run() error {
	for {
		evt := e.next()
		if evt == nil {
			return nil
		}

		e.stepMu.Lock()
		e.advanceTo(evt.Time())
		e.process(evt)
		e.stepMu.Unlock()
	}
}

// next picks the earliest pending event, preferring a primary event over
// a secondary one at the same time. The tail queues keep same-time events
// in arrival order, so no extra tie-breaking is needed.
func (e *SerialEngine) next() Event {
	switch {
	case e.primary.Len() == 0 && e.secondary.Len() == 0:
		return nil
	case e.primary.Len() == 0:
		return e.secondary.Pop()
	case e.secondary.Len() == 0:
		return e.primary.Pop()
	case e.primary.Peek().Time() <= e.secondary.Peek().Time():
		return e.primary.Pop()
	default:
		return e.secondary.Pop()
	}
}

func (e *SerialEngine) advanceTo(t VTimeInSec) {
	if t < e.CurrentTime() {
		log.Panicf("cannot run event in the past, evt @ %.10f, now %.10f",
			t, e.CurrentTime())
	}

	e.timeMu.Lock()
	e.now = t
	e.timeMu.Unlock()
}

func (e *SerialEngine) process(evt Event) {
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

// Pause holds the engine before its next event.
func (e *SerialEngine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()

	if e.isPaused {
		return
	}

	e.stepMu.Lock()
	e.isPaused = true
}

// Continue resumes a paused engine.
func (e *SerialEngine) Continue() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()

	if !e.isPaused {
		return
	}

	e.stepMu.Unlock()
	e.isPaused = false
}

// CurrentTime returns the time of the event being processed.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	e.timeMu.RLock()
	t := e.now
	e.timeMu.RUnlock()

	return t
}

// RegisterEndHandler adds a handler to run when the simulation ends.
func (e *SerialEngine) RegisterEndHandler(handler EndHandler) {
	e.endHandlers = append(e.endHandlers, handler)
}

// Finished invokes the registered end handlers at the final time.
func (e *SerialEngine) Finished() {
	now := e.CurrentTime()
	for _, h := range e.endHandlers {
		h.OnSimulationEnd(now)
	}
}
