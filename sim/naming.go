package sim

import (
	"log"
	"strings"
)

// Simulation names form a dot-separated hierarchy that mirrors ownership:
// a network owns taps ("net0.000001:c5h2..."), a tap owns its receive
// queue ("net0.000001:c5h2....rx"), and a machine owns its applications
// ("host3.send_message"). Hooks, logs, and recorded stats all key on
// these names, so they must be non-empty and printable.

// JoinName appends one level to a hierarchical name.
func JoinName(parent, child string) string {
	NameMustBeValid(child)

	if parent == "" {
		return child
	}

	return parent + "." + child
}

// NameMustBeValid panics if the name cannot serve as a simulation name:
// empty, containing whitespace, or containing an empty hierarchy level.
func NameMustBeValid(name string) {
	if name == "" {
		log.Panic("name must not be empty")
	}

	if strings.ContainsAny(name, " \t\n\r") {
		log.Panicf("name %q must not contain whitespace", name)
	}

	for _, level := range strings.Split(name, ".") {
		if level == "" {
			log.Panicf("name %q contains an empty hierarchy level", name)
		}
	}
}
