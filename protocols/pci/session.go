package pci

import (
	"log"

	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Session is the link-layer end of a session chain: one per slot, bound to
// one tap, shared by every upper-layer flow routed through that slot.
type Session struct {
	pci  *Pci
	slot int
	tap  *fabric.Tap
}

func newSession(p *Pci, slot int, tap *fabric.Tap) *Session {
	return &Session{pci: p, slot: slot, tap: tap}
}

// Slot returns the session's slot index.
func (s *Session) Slot() int {
	return s.slot
}

// MAC returns the MAC of the session's tap.
func (s *Session) MAC() fabric.MAC {
	return s.tap.MAC()
}

// MTU returns the MTU of the attached network.
func (s *Session) MTU() uint32 {
	return s.tap.Network().Config().MTU
}

// Join subscribes the session's tap to a multicast group.
func (s *Session) Join(group fabric.MAC) {
	s.tap.Join(group)
}

// Leave unsubscribes the session's tap from a multicast group.
func (s *Session) Leave(group fabric.MAC) {
	s.tap.Leave(group)
}

// Send frames the message and schedules it for delivery. The control bag
// names the destination (machine.KeyDstMAC or machine.KeyBroadcast) and the
// upper protocol the receiving machine should demux to
// (machine.KeyUpperProtocol). A payload larger than the network MTU fails
// synchronously with vnerr.FrameTooLarge.
func (s *Session) Send(msg message.Message, ctx *machine.ControlBag) error {
	upper, ok := machine.Get(ctx, machine.KeyUpperProtocol)
	if !ok {
		log.Panic("PCI send without an upper protocol id")
	}

	if uint32(msg.Len()) > s.MTU() {
		return vnerr.FrameTooLarge
	}

	frame := fabric.Frame{
		Upper:   upper,
		Payload: msg,
	}

	if broadcast, _ := machine.Get(ctx, machine.KeyBroadcast); broadcast {
		frame.Broadcast = true
	} else {
		dst, ok := machine.Get(ctx, machine.KeyDstMAC)
		if !ok {
			return vnerr.NoRoute
		}
		frame.Dst = dst
	}

	return s.tap.Send(frame)
}

// Close is a no-op: PCI sessions live as long as their machine.
func (s *Session) Close() error {
	return nil
}

// receive is the tap's inbound handler. It fills the control bag with what
// the frame witnessed and demuxes to the upper protocol the frame names.
// An unknown upper protocol is a silent drop, part of the loss model.
func (s *Session) receive(f fabric.Frame) {
	upper, ok := s.pci.machine.Protocol(f.Upper)
	if !ok {
		return
	}

	ctx := machine.NewControlBag()
	machine.Set(ctx, machine.KeyPCISlot, s.slot)
	machine.Set(ctx, machine.KeySrcMAC, f.Src)
	machine.Set(ctx, machine.KeyDstMAC, f.Dst)
	machine.Set(ctx, machine.KeyBroadcast, f.Broadcast)
	machine.Set(ctx, machine.KeyMTU, s.MTU())

	if f.Corrupted {
		machine.Set(ctx, machine.KeyCorrupted, true)
	}

	// Parsing failures above this point are silent by policy; the demux
	// error is intentionally discarded.
	_ = upper.Demux(f.Payload, s, ctx)
}
