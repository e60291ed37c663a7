// Package pci implements the link-layer protocol that owns a machine's
// taps. It sits at the bottom of every protocol stack: on send it frames a
// message with (destination MAC, source MAC, upper protocol id) and hands
// it to the fabric; on receive it strips the frame and demuxes to the
// protocol the frame names.
package pci

import (
	"log"

	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Pci owns the machine's network attachments. Each tap passed to New
// occupies one slot, numbered in argument order.
type Pci struct {
	machine  *machine.Machine
	sessions []*Session
}

// New creates a PCI protocol with one slot per tap.
func New(taps ...*fabric.Tap) *Pci {
	p := &Pci{}
	for slot, tap := range taps {
		p.sessions = append(p.sessions, newSession(p, slot, tap))
	}

	return p
}

// ID returns the PCI protocol identifier.
func (p *Pci) ID() netid.ProtocolID {
	return netid.PCI
}

// Attach binds the protocol to its machine and wires every tap's inbound
// handler to the owning slot's session.
func (p *Pci) Attach(m *machine.Machine) {
	p.machine = m

	for _, session := range p.sessions {
		s := session
		s.tap.OnReceive(s.receive)
	}
}

// SlotCount returns the number of link-layer slots.
func (p *Pci) SlotCount() int {
	return len(p.sessions)
}

// Slot returns the session occupying the given slot.
func (p *Pci) Slot(i int) *Session {
	return p.sessions[i]
}

// Open returns the session of the slot named by machine.KeyPCISlot in the
// participants bag. PCI sessions are created when the machine is built, one
// per tap, and shared by every upper-layer session routed through the slot.
func (p *Pci) Open(
	_ netid.ProtocolID,
	participants *machine.ControlBag,
) (machine.Session, error) {
	slot, ok := machine.Get(participants, machine.KeyPCISlot)
	if !ok {
		return nil, vnerr.NoRoute
	}

	if slot < 0 || slot >= len(p.sessions) {
		return nil, vnerr.NoRoute
	}

	return p.sessions[slot], nil
}

// Listen is a no-op: the link layer accepts every frame addressed to one of
// its taps and leaves flow filtering to the layers above.
func (p *Pci) Listen(_ netid.ProtocolID, _ *machine.ControlBag) error {
	return nil
}

// Demux must never be called: PCI is the bottom of the graph and receives
// from its taps directly.
func (p *Pci) Demux(
	_ message.Message,
	_ machine.Session,
	_ *machine.ControlBag,
) error {
	log.Panic("cannot demux on PCI")
	return nil
}

// Start does nothing; taps are wired at attach time.
func (p *Pci) Start(_ *machine.Shutdown) error {
	return nil
}
