package sim

import "log"

// A LogHook records information from the simulation through a standard
// logger. The event logger is one; components stay unaware of where the
// lines go.
type LogHook interface {
	Hook
}

// LogHookBase carries the logger shared by all LogHooks.
type LogHookBase struct {
	*log.Logger
}
