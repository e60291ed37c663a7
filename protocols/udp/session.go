package udp

import (
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
)

// Session is one UDP flow. UDP keeps no per-flow state beyond the 4-tuple;
// the session exists to link the chain and to frame datagrams.
type Session struct {
	protocol   *Udp
	id         SessionID
	upstream   netid.ProtocolID
	downstream machine.Session
}

// ID returns the session's 4-tuple.
func (s *Session) ID() SessionID {
	return s.id
}

// Send prepends a UDP header and hands the datagram to IPv4.
func (s *Session) Send(msg message.Message, ctx *machine.ControlBag) error {
	header := EncodeHeader(s.id.Local, s.id.Remote, msg)
	return s.downstream.Send(msg.Prepend(header), ctx)
}

// Close removes the session from its protocol's registry and releases the
// IPv4 session underneath.
func (s *Session) Close() error {
	s.protocol.mu.Lock()
	delete(s.protocol.sessions, s.id)
	s.protocol.mu.Unlock()

	return s.downstream.Close()
}

// receive hands the datagram payload to the upstream protocol.
func (s *Session) receive(payload message.Message, ctx *machine.ControlBag) error {
	upper, ok := s.protocol.machine.Protocol(s.upstream)
	if !ok {
		return nil
	}

	return upper.Demux(payload, s, ctx)
}
