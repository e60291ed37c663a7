// Package machine implements the protocol graph: a Machine is a named,
// frozen registry of protocol instances, addressable by their stable
// identifiers. Open requests compose session chains downward through the
// registry; inbound frames are demultiplexed upward through it.
package machine

import (
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
)

// A Protocol is a member of a machine's networking stack. It creates new
// sessions on open, records the willingness of upstream protocols to accept
// new flows on listen, and routes inbound messages to the right session on
// demux.
type Protocol interface {
	// ID returns the protocol's stable identifier, unique within a machine.
	ID() netid.ProtocolID

	// Attach binds the protocol to the machine that owns it. It is called
	// exactly once, while the machine is being built.
	Attach(m *Machine)

	// Open creates a session for the upstream protocol. The participants
	// bag carries the addressing the opener has chosen (local/remote
	// address, ports, PCI slot). Lower layers are opened recursively; the
	// returned session is the top link of this protocol's part of the
	// chain.
	Open(upstream netid.ProtocolID, participants *ControlBag) (Session, error)

	// Listen records that upstream is willing to accept new flows matching
	// the addressing in the participants bag.
	Listen(upstream netid.ProtocolID, participants *ControlBag) error

	// Demux routes an inbound message to an existing session, creates one
	// for a matching listen, or drops. caller is the session of the
	// protocol below that delivered the message.
	Demux(msg message.Message, caller Session, ctx *ControlBag) error

	// Start runs once before the simulation begins processing events. It
	// is where applications register listens and schedule their first
	// work. Protocols that keep running state observe shutdown at their
	// suspension points.
	Start(shutdown *Shutdown) error
}

// A Session represents one active flow at one protocol layer. Sending
// traverses the chain downward synchronously. Receiving does not appear
// here: inbound traffic reaches a session through its protocol's Demux.
type Session interface {
	// Send transmits a message down the session chain.
	Send(msg message.Message, ctx *ControlBag) error

	// Close releases the session. For connection-oriented protocols this
	// starts the protocol's teardown exchange.
	Close() error
}
