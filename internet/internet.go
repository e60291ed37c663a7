// Package internet is the engine entry point: it wires machines and
// networks to one event engine, starts every protocol, runs the engine to
// completion, and reports the simulation's exit status.
package internet

import (
	"log"

	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/sim"
)

// ExitStatus values follow the process convention: zero for a clean
// termination, non-zero for an internal invariant violation.
const (
	ExitClean   = 0
	ExitFailure = 1
)

// Internet is one assembled simulation: the machines, the networks they
// attach to, and the registry the monitoring surface reads.
type Internet struct {
	engine     sim.Engine
	simulation *sim.Simulation
	machines   []*machine.Machine
	networks   []*fabric.Network
	shutdown   *machine.Shutdown
}

// Builder assembles an Internet.
type Builder struct {
	engine   sim.Engine
	machines []*machine.Machine
	networks []*fabric.Network
}

// MakeBuilder creates an internet builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine every machine and network must share.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithNetwork adds a network.
func (b Builder) WithNetwork(n *fabric.Network) Builder {
	b.networks = append(b.networks, n)
	return b
}

// WithMachine adds a machine.
func (b Builder) WithMachine(m *machine.Machine) Builder {
	b.machines = append(b.machines, m)
	return b
}

// Build assembles the simulation and registers every network and every
// component-shaped protocol with the introspection registry.
func (b Builder) Build() *Internet {
	if b.engine == nil {
		log.Panic("an internet needs an engine")
	}

	i := &Internet{
		engine:     b.engine,
		simulation: sim.NewSimulation(),
		machines:   b.machines,
		networks:   b.networks,
		shutdown:   machine.NewShutdown(),
	}

	for _, n := range b.networks {
		i.simulation.RegisterComponent(n)
	}

	for _, m := range b.machines {
		if m.Engine() != b.engine {
			log.Panicf("machine %s is not driven by the internet's engine",
				m.Name())
		}

		for _, p := range m.Protocols() {
			if c, ok := p.(sim.Component); ok {
				i.simulation.RegisterComponent(c)
			}
		}
	}

	return i
}

// Shutdown returns the run's cancellation token, letting a caller end the
// simulation from outside.
func (i *Internet) Shutdown() *machine.Shutdown {
	return i.shutdown
}

// Simulation returns the component registry.
func (i *Internet) Simulation() *sim.Simulation {
	return i.simulation
}

// Run starts every machine's protocols, drives the engine until no work
// remains, and returns the exit status. An application's failure to start
// fails the run; individual application errors during the run do not.
func (i *Internet) Run() int {
	for _, m := range i.machines {
		if err := m.Start(i.shutdown); err != nil {
			log.Printf("machine %s failed to start: %v", m.Name(), err)
			return ExitFailure
		}
	}

	if err := i.engine.Run(); err != nil {
		log.Printf("engine: %v", err)
		return ExitFailure
	}

	i.engine.Finished()

	return i.shutdown.Status()
}

// Run builds and runs a simulation over the given machines and networks
// in one call. All machines must share one engine; it is taken from the
// first machine.
func Run(machines []*machine.Machine, networks []*fabric.Network) int {
	if len(machines) == 0 {
		return ExitClean
	}

	b := MakeBuilder().WithEngine(machines[0].Engine())
	for _, n := range networks {
		b = b.WithNetwork(n)
	}
	for _, m := range machines {
		b = b.WithMachine(m)
	}

	return b.Build().Run()
}
