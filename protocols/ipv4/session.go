package ipv4

import (
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
)

// Session is one IPv4 flow: a (local, remote, upper protocol) triple bound
// to a route and the PCI session underneath it.
type Session struct {
	protocol   *Ipv4
	id         SessionID
	ipProtocol uint8
	route      Route
	downstream machine.Session
}

// ID returns the session's identifying triple.
func (s *Session) ID() SessionID {
	return s.id
}

// MTU reports the link MTU underneath the session, when the link layer
// exposes one. Transports use it to size their segments.
func (s *Session) MTU() uint32 {
	if link, ok := s.downstream.(interface{ MTU() uint32 }); ok {
		return link.MTU()
	}

	return 0
}

// Send prepends an IPv4 header and hands the datagram to the link layer,
// framed for the session's route. Fragmentation is not modeled: a datagram
// too large for the network fails with vnerr.FrameTooLarge from below.
func (s *Session) Send(msg message.Message, ctx *machine.ControlBag) error {
	header := EncodeHeader(s.id.Local, s.id.Remote, s.ipProtocol, msg.Len())
	datagram := msg.Prepend(header)

	machine.Set(ctx, machine.KeyUpperProtocol, netid.IPv4)
	if s.route.Broadcast {
		machine.Set(ctx, machine.KeyBroadcast, true)
	} else {
		machine.Set(ctx, machine.KeyDstMAC, s.route.MAC)
	}

	return s.downstream.Send(datagram, ctx)
}

// Close removes the session from its protocol's registry.
func (s *Session) Close() error {
	s.protocol.mu.Lock()
	delete(s.protocol.sessions, s.id)
	s.protocol.mu.Unlock()

	return nil
}

// receive hands a validated payload to the transport protocol above.
func (s *Session) receive(payload message.Message, ctx *machine.ControlBag) error {
	upper, ok := s.protocol.machine.Protocol(s.id.Upper)
	if !ok {
		return nil
	}

	return upper.Demux(payload, s, ctx)
}
