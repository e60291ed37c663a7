package sim

import (
	"log"
	"reflect"
)

// EventLogger is a hook that prints one line per event the engine
// processes: the virtual time, the event type, and the handler it is
// dispatched to. Networks, machines' applications, and TCP sessions are
// all Named, so most lines identify their target.
type EventLogger struct {
	LogHookBase
}

// NewEventLogger returns an EventLogger writing to the given logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	h := new(EventLogger)
	h.Logger = logger
	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	if named, ok := evt.Handler().(Named); ok {
		h.Printf("%.10f, %s -> %s",
			evt.Time(), reflect.TypeOf(evt), named.Name())
		return
	}

	h.Printf("%.10f, %s", evt.Time(), reflect.TypeOf(evt))
}
