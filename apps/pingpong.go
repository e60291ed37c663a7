package apps

import (
	"encoding/binary"
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

// PingPong volleys a 4-byte round counter between two machines over UDP.
// The initiator serves round 0; each side returns every ball it receives
// with the round advanced, and both report completion after the configured
// number of round trips.
type PingPong struct {
	name        string
	initiator   bool
	local       ipv4.Endpoint
	remote      ipv4.Endpoint
	rounds      uint32
	coordinator *Coordinator

	machine  *machine.Machine
	shutdown *machine.Shutdown

	mu        sync.Mutex
	session   machine.Session
	completed uint32
	done      bool
}

// NewPingPong creates one side of a ping-pong pair. Exactly one side must
// be the initiator.
func NewPingPong(
	name string,
	initiator bool,
	local, remote ipv4.Endpoint,
	rounds uint32,
	coordinator *Coordinator,
) *PingPong {
	coordinator.Register()

	return &PingPong{
		name:        name,
		initiator:   initiator,
		local:       local,
		remote:      remote,
		rounds:      rounds,
		coordinator: coordinator,
	}
}

// ID returns the application's protocol identifier.
func (a *PingPong) ID() netid.ProtocolID {
	return netid.ProtocolID("app:" + a.name)
}

// Attach binds the application to its machine.
func (a *PingPong) Attach(m *machine.Machine) {
	a.machine = m
}

// Start registers the listen and, on the initiator, opens the flow and
// serves the first ball. The delivery cannot outrun the responder: every
// machine finishes starting before the engine processes its first event.
func (a *PingPong) Start(shutdown *machine.Shutdown) error {
	a.shutdown = shutdown

	participants := machine.NewControlBag()
	TransportUDP.setListen(participants, a.local)
	if err := a.machine.MustProtocol(netid.UDP).Listen(a.ID(), participants); err != nil {
		return err
	}

	if !a.initiator {
		return nil
	}

	open := machine.NewControlBag()
	TransportUDP.setEndpoints(open, a.local, a.remote)

	session, err := a.machine.MustProtocol(netid.UDP).Open(a.ID(), open)
	if err != nil {
		return err
	}
	a.session = session

	return session.Send(ball(0), machine.NewControlBag())
}

// Open is not meaningful on an application.
func (a *PingPong) Open(
	_ netid.ProtocolID,
	_ *machine.ControlBag,
) (machine.Session, error) {
	return nil, vnerr.NoRoute
}

// Listen is not meaningful on an application.
func (a *PingPong) Listen(_ netid.ProtocolID, _ *machine.ControlBag) error {
	return vnerr.NoRoute
}

// Demux receives one ball. The responder counts a completed round on
// every ping; the initiator counts one on every pong. Balls keep flying
// until both sides have seen the configured number of rounds.
func (a *PingPong) Demux(
	msg message.Message,
	caller machine.Session,
	_ *machine.ControlBag,
) error {
	if a.shutdown.Triggered() {
		return nil
	}

	if msg.Len() < 4 {
		return nil
	}

	round := binary.BigEndian.Uint32(msg.Bytes())

	a.mu.Lock()
	a.completed++
	finished := a.completed >= a.rounds
	alreadyDone := a.done
	if finished {
		a.done = true
	}
	a.mu.Unlock()

	if finished {
		if !alreadyDone {
			a.coordinator.Done(a.shutdown)
		}
		if a.initiator {
			return nil
		}
	}

	return caller.Send(ball(round+1), machine.NewControlBag())
}

// Completed reports how many balls this side has received.
func (a *PingPong) Completed() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.completed
}

func ball(round uint32) message.Message {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], round)

	return message.New(b[:])
}
