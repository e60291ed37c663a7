package udp

import (
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Control bag keys witnessed by the UDP header.
var (
	KeyLocalPort  = machine.NewKey[uint16]("udp_local_port")
	KeyRemotePort = machine.NewKey[uint16]("udp_remote_port")
)

// SessionID identifies a connected UDP session by its full 4-tuple.
type SessionID struct {
	Local  ipv4.Endpoint
	Remote ipv4.Endpoint
}

// Udp is the User Datagram Protocol layer.
type Udp struct {
	machine *machine.Machine

	mu       sync.Mutex
	sessions map[SessionID]*Session
	listens  map[ipv4.Endpoint]netid.ProtocolID
}

// New creates a UDP protocol.
func New() *Udp {
	return &Udp{
		sessions: make(map[SessionID]*Session),
		listens:  make(map[ipv4.Endpoint]netid.ProtocolID),
	}
}

// ID returns the UDP protocol identifier.
func (p *Udp) ID() netid.ProtocolID {
	return netid.UDP
}

// Attach binds the protocol to its machine.
func (p *Udp) Attach(m *machine.Machine) {
	p.machine = m
}

// Start does nothing.
func (p *Udp) Start(_ *machine.Shutdown) error {
	return nil
}

// Open creates a connected session for the 4-tuple in the participants
// bag, opening IPv4 underneath it.
func (p *Udp) Open(
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) (machine.Session, error) {
	id := sessionIDFromBag(participants)

	p.mu.Lock()
	if existing, found := p.sessions[id]; found {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	downstream, err := p.machine.MustProtocol(netid.IPv4).
		Open(netid.UDP, participants)
	if err != nil {
		return nil, err
	}

	session := &Session{
		protocol:   p,
		id:         id,
		upstream:   upstream,
		downstream: downstream,
	}

	p.mu.Lock()
	p.sessions[id] = session
	p.mu.Unlock()

	return session, nil
}

// Listen records that upstream accepts datagrams addressed to the local
// endpoint in the participants bag, and registers the address with IPv4 so
// inbound datagrams reach this protocol at all.
func (p *Udp) Listen(
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) error {
	local := localEndpointFromBag(participants)

	p.mu.Lock()
	p.listens[local] = upstream
	p.mu.Unlock()

	return p.machine.MustProtocol(netid.IPv4).Listen(netid.UDP, participants)
}

// Demux parses and validates the UDP header, then routes the datagram to a
// connected session by full 4-tuple, or to a session created for a
// matching listen. Parse and checksum failures, and frames marked corrupt
// by the fabric, drop silently.
func (p *Udp) Demux(
	msg message.Message,
	caller machine.Session,
	ctx *machine.ControlBag,
) error {
	if corrupted, _ := machine.Get(ctx, machine.KeyCorrupted); corrupted {
		return nil
	}

	local, _ := machine.Get(ctx, ipv4.KeyLocalAddr)
	remote, _ := machine.Get(ctx, ipv4.KeyRemoteAddr)

	header, err := ParseHeader(msg, remote, local)
	if err != nil {
		return nil
	}

	payload, err := msg.Slice(HeaderLen, msg.Len())
	if err != nil {
		return nil
	}

	id := SessionID{
		Local:  ipv4.Endpoint{Addr: local, Port: header.DstPort},
		Remote: ipv4.Endpoint{Addr: remote, Port: header.SrcPort},
	}

	machine.Set(ctx, KeyLocalPort, id.Local.Port)
	machine.Set(ctx, KeyRemotePort, id.Remote.Port)

	p.mu.Lock()
	session, found := p.sessions[id]
	var upstream netid.ProtocolID
	if !found {
		var ok bool
		upstream, ok = p.listener(id.Local)
		if !ok {
			p.mu.Unlock()
			return vnerr.NoRoute
		}
	}
	p.mu.Unlock()

	if !found {
		// First datagram of a new flow toward a listener: link the new
		// session over IPv4 so later replies route without relearning.
		participants := ctx.Clone()
		machine.Set(participants, ipv4.KeyLocalAddr, id.Local.Addr)
		machine.Set(participants, ipv4.KeyRemoteAddr, id.Remote.Addr)

		downstream, err := p.machine.MustProtocol(netid.IPv4).
			Open(netid.UDP, participants)
		if err != nil {
			return nil
		}

		session = &Session{
			protocol:   p,
			id:         id,
			upstream:   upstream,
			downstream: downstream,
		}

		p.mu.Lock()
		if raced, exists := p.sessions[id]; exists {
			session = raced
		} else {
			p.sessions[id] = session
		}
		p.mu.Unlock()
	}

	return session.receive(payload, ctx)
}

// listener finds a listen binding for the endpoint, falling back to a
// wildcard-address binding on the same port. Callers hold p.mu.
func (p *Udp) listener(local ipv4.Endpoint) (netid.ProtocolID, bool) {
	if upstream, ok := p.listens[local]; ok {
		return upstream, true
	}

	upstream, ok := p.listens[ipv4.Endpoint{
		Addr: ipv4.Unspecified,
		Port: local.Port,
	}]

	return upstream, ok
}

func sessionIDFromBag(bag *machine.ControlBag) SessionID {
	localAddr, _ := machine.Get(bag, ipv4.KeyLocalAddr)
	remoteAddr, _ := machine.Get(bag, ipv4.KeyRemoteAddr)
	localPort, _ := machine.Get(bag, KeyLocalPort)
	remotePort, _ := machine.Get(bag, KeyRemotePort)

	return SessionID{
		Local:  ipv4.Endpoint{Addr: localAddr, Port: localPort},
		Remote: ipv4.Endpoint{Addr: remoteAddr, Port: remotePort},
	}
}

func localEndpointFromBag(bag *machine.ControlBag) ipv4.Endpoint {
	addr, _ := machine.Get(bag, ipv4.KeyLocalAddr)
	port, _ := machine.Get(bag, KeyLocalPort)

	return ipv4.Endpoint{Addr: addr, Port: port}
}
