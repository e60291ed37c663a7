package machine

import (
	"log"

	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/sim"
)

// A Machine is a simulated networked computer: an ordered set of protocol
// instances keyed by protocol identifier. The registry is populated by the
// builder and frozen before the engine starts, so lookups on the demux path
// need no locking.
type Machine struct {
	sim.HookableBase

	name      string
	engine    sim.Engine
	order     []netid.ProtocolID
	protocols map[netid.ProtocolID]Protocol
}

// Name returns the machine's name.
func (m *Machine) Name() string {
	return m.name
}

// Engine returns the event engine that drives this machine's work.
func (m *Machine) Engine() sim.Engine {
	return m.engine
}

// Protocol returns the protocol registered under id.
func (m *Machine) Protocol(id netid.ProtocolID) (Protocol, bool) {
	p, ok := m.protocols[id]
	return p, ok
}

// MustProtocol returns the protocol registered under id, panicking if it is
// absent. Callers use it for protocols the machine cannot function without,
// such as the PCI layer underneath IPv4.
func (m *Machine) MustProtocol(id netid.ProtocolID) Protocol {
	p, ok := m.protocols[id]
	if !ok {
		log.Panicf("machine %s has no protocol %s", m.name, id)
	}

	return p
}

// Protocols returns the machine's protocols in registration order.
func (m *Machine) Protocols() []Protocol {
	out := make([]Protocol, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.protocols[id])
	}

	return out
}

// Start runs every protocol's Start in registration order. The link and
// network layers come first in a well-formed build, so listens registered
// by applications land on fully assembled lower stacks.
func (m *Machine) Start(shutdown *Shutdown) error {
	for _, id := range m.order {
		if err := m.protocols[id].Start(shutdown); err != nil {
			return err
		}
	}

	return nil
}

// Builder builds machines the way the rest of the simulator builds
// components: value-typed, chained With methods, a final Build.
type Builder struct {
	engine    sim.Engine
	protocols []Protocol
}

// MakeBuilder creates a machine builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine that the machine's work runs under.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithProtocol appends a protocol to the machine's stack. Order matters:
// the first PCI protocol provides the link-layer slots, and protocols
// started later may register listens with protocols added before them.
func (b Builder) WithProtocol(p Protocol) Builder {
	b.protocols = append(b.protocols, p)
	return b
}

// Build assembles the machine and attaches every protocol to it. Duplicate
// protocol identifiers are a build error and panic.
func (b Builder) Build(name string) *Machine {
	sim.NameMustBeValid(name)

	m := &Machine{
		name:      name,
		engine:    b.engine,
		protocols: make(map[netid.ProtocolID]Protocol),
	}

	for _, p := range b.protocols {
		id := p.ID()
		if _, dup := m.protocols[id]; dup {
			log.Panicf("machine %s: duplicate protocol %s", name, id)
		}

		m.protocols[id] = p
		m.order = append(m.order, id)
		p.Attach(m)
	}

	return m
}
