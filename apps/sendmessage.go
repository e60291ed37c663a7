package apps

import (
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/vnerr"
)

// SendMessage sends a fixed list of messages to one remote endpoint, one
// message per tick, then stops making progress. Over TCP the connection
// is closed gracefully after the last message.
type SendMessage struct {
	*sim.TickingComponent

	name      string
	transport Transport
	messages  []message.Message
	local     ipv4.Endpoint
	remote    ipv4.Endpoint

	machine  *machine.Machine
	shutdown *machine.Shutdown
	session  machine.Session
	next     int
	closed   bool
	lastErr  error
}

// NewSendMessage creates a sender application. The local address is the
// unspecified address with an ephemeral port unless overridden with
// WithLocalEndpoint.
func NewSendMessage(
	name string,
	transport Transport,
	remote ipv4.Endpoint,
	messages ...message.Message,
) *SendMessage {
	return &SendMessage{
		name:      name,
		transport: transport,
		messages:  messages,
		remote:    remote,
		local:     ipv4.Endpoint{Port: EphemeralPort()},
	}
}

// WithLocalEndpoint overrides the sender's local endpoint.
func (a *SendMessage) WithLocalEndpoint(local ipv4.Endpoint) *SendMessage {
	a.local = local
	return a
}

// ID returns the application's protocol identifier.
func (a *SendMessage) ID() netid.ProtocolID {
	return netid.ProtocolID("app:" + a.name)
}

// Attach binds the application to its machine and sets up its ticking
// driver.
func (a *SendMessage) Attach(m *machine.Machine) {
	a.machine = m
	a.TickingComponent = sim.NewTickingComponent(
		sim.JoinName(m.Name(), a.name), m.Engine(), 1*sim.MHz, a)
}

// Start schedules the first tick. The actual open and sends happen inside
// the engine loop, after every machine has finished starting.
func (a *SendMessage) Start(shutdown *machine.Shutdown) error {
	a.shutdown = shutdown
	a.TickLater()

	return nil
}

// Tick advances the sender one step: open the session on the first tick,
// then one message per tick, then the close. Returning false parks the
// application for good.
func (a *SendMessage) Tick() bool {
	if a.shutdown.Triggered() {
		if a.next < len(a.messages) {
			a.lastErr = vnerr.ShuttingDown
		}
		return false
	}

	if a.session == nil {
		participants := machine.NewControlBag()
		a.transport.setEndpoints(participants, a.local, a.remote)

		session, err := a.machine.MustProtocol(a.transport.ID()).
			Open(a.ID(), participants)
		if err != nil {
			a.lastErr = err
			return false
		}
		a.session = session

		return true
	}

	if a.next < len(a.messages) {
		if err := a.session.Send(a.messages[a.next], machine.NewControlBag()); err != nil {
			a.lastErr = err
			return false
		}
		a.next++

		return true
	}

	if a.transport == TransportTCP && !a.closed {
		a.closed = true
		_ = a.session.Close()

		return true
	}

	return false
}

// Open is not meaningful on an application.
func (a *SendMessage) Open(
	_ netid.ProtocolID,
	_ *machine.ControlBag,
) (machine.Session, error) {
	return nil, vnerr.NoRoute
}

// Listen is not meaningful on an application.
func (a *SendMessage) Listen(_ netid.ProtocolID, _ *machine.ControlBag) error {
	return vnerr.NoRoute
}

// Demux ignores inbound traffic; the sender is fire-and-forget.
func (a *SendMessage) Demux(
	_ message.Message,
	_ machine.Session,
	_ *machine.ControlBag,
) error {
	return nil
}

// Err reports the first send-path error the application hit, if any.
func (a *SendMessage) Err() error {
	return a.lastErr
}

// Sent reports how many messages have gone out so far.
func (a *SendMessage) Sent() int {
	return a.next
}
