package tcp

import (
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Control bag keys witnessed by the TCP header.
var (
	KeyLocalPort  = machine.NewKey[uint16]("tcp_local_port")
	KeyRemotePort = machine.NewKey[uint16]("tcp_remote_port")
)

// ipHeaderRoom is the sequence-space headroom reserved for the IPv4 and
// TCP headers when deriving the MSS from the link MTU.
const ipHeaderRoom = ipv4.HeaderLen + HeaderLen

// SessionID identifies a TCP connection by its full 4-tuple.
type SessionID struct {
	Local  ipv4.Endpoint
	Remote ipv4.Endpoint
}

// Tcp is the Transmission Control Protocol layer.
type Tcp struct {
	machine  *machine.Machine
	config   Config
	shutdown *machine.Shutdown

	mu       sync.Mutex
	sessions map[SessionID]*Session
	listens  map[ipv4.Endpoint]netid.ProtocolID
}

// New creates a TCP protocol with the given configuration.
func New(config Config) *Tcp {
	return &Tcp{
		config:   config.Defaults(),
		sessions: make(map[SessionID]*Session),
		listens:  make(map[ipv4.Endpoint]netid.ProtocolID),
	}
}

// ID returns the TCP protocol identifier.
func (p *Tcp) ID() netid.ProtocolID {
	return netid.TCP
}

// Attach binds the protocol to its machine.
func (p *Tcp) Attach(m *machine.Machine) {
	p.machine = m
}

// Start captures the shutdown token; sessions observe it when their
// timers fire.
func (p *Tcp) Start(shutdown *machine.Shutdown) error {
	p.shutdown = shutdown
	return nil
}

// Open actively connects to the 4-tuple in the participants bag: the
// session is created, linked over IPv4, and its SYN goes out immediately.
// The returned session accepts sends right away; bytes queue until the
// handshake completes.
func (p *Tcp) Open(
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

	session, err := p.buildSession(id, upstream, participants)
	if err != nil {
		return nil, err
	}

	session.connect()

	return session, nil
}

// Listen records that upstream accepts connections to the local endpoint
// in the participants bag.
func (p *Tcp) Listen(
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) error {
	local := localEndpointFromBag(participants)

	p.mu.Lock()
	p.listens[local] = upstream
	p.mu.Unlock()

	return p.machine.MustProtocol(netid.IPv4).Listen(netid.TCP, participants)
}

// Demux parses and validates the TCP header, then routes the segment to
// its connection by full 4-tuple, creating a passively opened session when
// a SYN matches a listen. Checksum failures and frames marked corrupt by
// the fabric drop silently; that is what forces the sender's
// retransmission machinery to engage.
func (p *Tcp) Demux(
	msg message.Message,
	_ machine.Session,
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
	var listening bool
	if !found {
		upstream, listening = p.listener(id.Local)
	}
	p.mu.Unlock()

	if !found {
		if !listening || !header.Ctl(FlagSYN) || header.Ctl(FlagRST) {
			return vnerr.NoRoute
		}

		participants := ctx.Clone()
		machine.Set(participants, ipv4.KeyLocalAddr, id.Local.Addr)
		machine.Set(participants, ipv4.KeyRemoteAddr, id.Remote.Addr)

		session, err = p.buildSession(id, upstream, participants)
		if err != nil {
			return nil
		}

		session.accept()
	}

	session.receiveSegment(header, payload)

	return nil
}

// buildSession links a new session over IPv4 and registers it.
func (p *Tcp) buildSession(
	id SessionID,
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) (*Session, error) {
	downstream, err := p.machine.MustProtocol(netid.IPv4).
		Open(netid.TCP, participants)
	if err != nil {
		return nil, err
	}

	mss := uint32(536)
	if linkMTU, ok := downstream.(interface{ MTU() uint32 }); ok {
		if mtu := linkMTU.MTU(); mtu > ipHeaderRoom {
			mss = mtu - ipHeaderRoom
		}
	}

	session := newSession(p, id, upstream, downstream, mss)

	p.mu.Lock()
	if raced, exists := p.sessions[id]; exists {
		session = raced
	} else {
		p.sessions[id] = session
	}
	p.mu.Unlock()

	return session, nil
}

func (p *Tcp) remove(id SessionID) {
	p.mu.Lock()
	delete(p.sessions, id)
	p.mu.Unlock()
}

// listener finds a listen binding for the endpoint, falling back to a
// wildcard-address binding on the same port. Callers hold p.mu.
func (p *Tcp) listener(local ipv4.Endpoint) (netid.ProtocolID, bool) {
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
