package ipv4

import (
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Control bag keys witnessed by the IPv4 header.
var (
	KeyLocalAddr  = machine.NewKey[Address]("ipv4_local_addr")
	KeyRemoteAddr = machine.NewKey[Address]("ipv4_remote_addr")
)

// SessionID identifies one IPv4 session within a machine.
type SessionID struct {
	Local  Address
	Remote Address
	Upper  netid.ProtocolID
}

type listenID struct {
	local Address
	upper netid.ProtocolID
}

// Ipv4 is the Internet Protocol layer. Sessions are keyed by (local,
// remote, upper protocol); listen bindings by (local, upper protocol) with
// the unspecified address acting as a wildcard.
type Ipv4 struct {
	machine *machine.Machine
	table   *Table

	mu       sync.Mutex
	sessions map[SessionID]*Session
	listens  map[listenID]netid.ProtocolID
}

// New creates an IPv4 protocol routing through the given table.
func New(table *Table) *Ipv4 {
	return &Ipv4{
		table:    table,
		sessions: make(map[SessionID]*Session),
		listens:  make(map[listenID]netid.ProtocolID),
	}
}

// ID returns the IPv4 protocol identifier.
func (p *Ipv4) ID() netid.ProtocolID {
	return netid.IPv4
}

// Attach binds the protocol to its machine.
func (p *Ipv4) Attach(m *machine.Machine) {
	p.machine = m
}

// Table returns the machine's routing table.
func (p *Ipv4) Table() *Table {
	return p.table
}

// Start does nothing; the routing table is frozen by the time the engine
// runs.
func (p *Ipv4) Start(_ *machine.Shutdown) error {
	return nil
}

// Open resolves a route for the remote address in the participants bag,
// opens the PCI slot the route names, and returns a session that frames
// traffic between the local and remote addresses on behalf of upstream.
func (p *Ipv4) Open(
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) (machine.Session, error) {
	local, _ := machine.Get(participants, KeyLocalAddr)
	remote, ok := machine.Get(participants, KeyRemoteAddr)
	if !ok {
		return nil, vnerr.NoRoute
	}

	protocol, ok := ProtocolNumber(upstream)
	if !ok {
		return nil, vnerr.NoRoute
	}

	route, err := p.table.Lookup(remote)
	if err != nil {
		return nil, err
	}

	id := SessionID{Local: local, Remote: remote, Upper: upstream}

	p.mu.Lock()
	if existing, found := p.sessions[id]; found {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	machine.Set(participants, machine.KeyPCISlot, route.Slot)

	downstream, err := p.machine.MustProtocol(netid.PCI).
		Open(netid.IPv4, participants)
	if err != nil {
		return nil, err
	}

	session := &Session{
		protocol:   p,
		id:         id,
		ipProtocol: protocol,
		route:      route,
		downstream: downstream,
	}

	p.mu.Lock()
	p.sessions[id] = session
	p.mu.Unlock()

	return session, nil
}

// Listen records that upstream accepts new flows addressed to the local
// address in the participants bag.
func (p *Ipv4) Listen(
	upstream netid.ProtocolID,
	participants *machine.ControlBag,
) error {
	local, _ := machine.Get(participants, KeyLocalAddr)

	p.mu.Lock()
	p.listens[listenID{local: local, upper: upstream}] = upstream
	p.mu.Unlock()

	return nil
}

// Demux parses and validates the IPv4 header, enriches the control bag
// with the witnessed addresses, and routes the payload to an existing
// session or one created for a matching listen. Checksum failures and
// frames marked corrupt by the fabric are silent drops.
func (p *Ipv4) Demux(
	msg message.Message,
	caller machine.Session,
	ctx *machine.ControlBag,
) error {
	if corrupted, _ := machine.Get(ctx, machine.KeyCorrupted); corrupted {
		return nil
	}

	header, err := ParseHeader(msg)
	if err != nil {
		return nil
	}

	payload, err := msg.Slice(HeaderLen, int(header.TotalLength))
	if err != nil {
		return nil
	}

	upper, ok := UpperProtocol(header.Protocol)
	if !ok {
		return nil
	}

	machine.Set(ctx, KeyLocalAddr, header.Dst)
	machine.Set(ctx, KeyRemoteAddr, header.Src)

	id := SessionID{Local: header.Dst, Remote: header.Src, Upper: upper}

	p.mu.Lock()
	session, found := p.sessions[id]
	if !found {
		if !p.listening(header.Dst, upper) {
			p.mu.Unlock()
			return vnerr.NoRoute
		}

		// A session created on first inbound replies straight back to the
		// link-layer source that delivered it.
		slot, _ := machine.Get(ctx, machine.KeyPCISlot)
		srcMAC, _ := machine.Get(ctx, machine.KeySrcMAC)
		session = &Session{
			protocol:   p,
			id:         id,
			ipProtocol: header.Protocol,
			route:      Route{Slot: slot, MAC: srcMAC},
			downstream: caller,
		}
		p.sessions[id] = session
	}
	p.mu.Unlock()

	return session.receive(payload, ctx)
}

func (p *Ipv4) listening(local Address, upper netid.ProtocolID) bool {
	if _, ok := p.listens[listenID{local: local, upper: upper}]; ok {
		return true
	}

	_, ok := p.listens[listenID{local: Unspecified, upper: upper}]
	return ok
}
