// Package apps provides the built-in application behaviors the simulator
// ships with: one-shot message senders, capturing receivers that end the
// simulation, and a request/response ping-pong pair. Applications are
// ordinary protocols at the top of a machine's stack.
package apps

import (
	"sync/atomic"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/protocols/tcp"
	"github.com/vnetsim/vnetsim/protocols/udp"
)

// Transport selects the transport protocol an application talks through.
type Transport int

// The transports applications can choose from.
const (
	TransportUDP Transport = iota
	TransportTCP
)

// ID returns the protocol identifier of the transport.
func (t Transport) ID() netid.ProtocolID {
	if t == TransportTCP {
		return netid.TCP
	}

	return netid.UDP
}

// setEndpoints fills a participants bag with the transport's addressing
// keys for one flow.
func (t Transport) setEndpoints(
	bag *machine.ControlBag,
	local, remote ipv4.Endpoint,
) {
	machine.Set(bag, ipv4.KeyLocalAddr, local.Addr)
	machine.Set(bag, ipv4.KeyRemoteAddr, remote.Addr)

	if t == TransportTCP {
		machine.Set(bag, tcp.KeyLocalPort, local.Port)
		machine.Set(bag, tcp.KeyRemotePort, remote.Port)
	} else {
		machine.Set(bag, udp.KeyLocalPort, local.Port)
		machine.Set(bag, udp.KeyRemotePort, remote.Port)
	}
}

// setListen fills a participants bag with the transport's local
// addressing keys for a listen registration.
func (t Transport) setListen(bag *machine.ControlBag, local ipv4.Endpoint) {
	machine.Set(bag, ipv4.KeyLocalAddr, local.Addr)

	if t == TransportTCP {
		machine.Set(bag, tcp.KeyLocalPort, local.Port)
	} else {
		machine.Set(bag, udp.KeyLocalPort, local.Port)
	}
}

var ephemeralPort atomic.Uint32

// EphemeralPort issues a port from the dynamic range from one counter
// shared by the whole simulation, so concurrent opens toward one server do
// not collide. The sequence wraps after 16000 ports and then repeats.
func EphemeralPort() uint16 {
	return uint16(49152 + ephemeralPort.Add(1)%16000)
}
