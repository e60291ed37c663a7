package apps

import (
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/protocols/tcp"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Capture listens on one endpoint, stores everything it receives, and
// reports completion once it has seen an expected number of messages or an
// expected number of bytes. When every capture in its coordinator group is
// complete, the simulation shuts down cleanly.
type Capture struct {
	name          string
	transport     Transport
	endpoint      ipv4.Endpoint
	expectedCount int
	expectedBytes int
	coordinator   *Coordinator

	machine  *machine.Machine
	shutdown *machine.Shutdown

	mu            sync.Mutex
	received      []message.Message
	receivedBytes int
	done          bool
	lastErr       error
}

// NewCapture creates a capture that completes after expectedCount
// messages. The coordinator may be shared by several captures; each
// capture registers itself.
func NewCapture(
	name string,
	transport Transport,
	endpoint ipv4.Endpoint,
	expectedCount int,
	coordinator *Coordinator,
) *Capture {
	coordinator.Register()

	return &Capture{
		name:          name,
		transport:     transport,
		endpoint:      endpoint,
		expectedCount: expectedCount,
		coordinator:   coordinator,
	}
}

// WithExpectedBytes switches the completion condition from a message
// count to a byte total, which suits TCP's stream delivery where message
// boundaries are not preserved.
func (a *Capture) WithExpectedBytes(n int) *Capture {
	a.expectedCount = 0
	a.expectedBytes = n
	return a
}

// ID returns the application's protocol identifier.
func (a *Capture) ID() netid.ProtocolID {
	return netid.ProtocolID("app:" + a.name)
}

// Attach binds the application to its machine.
func (a *Capture) Attach(m *machine.Machine) {
	a.machine = m
}

// Start registers the listen with the transport protocol.
func (a *Capture) Start(shutdown *machine.Shutdown) error {
	a.shutdown = shutdown

	participants := machine.NewControlBag()
	a.transport.setListen(participants, a.endpoint)

	return a.machine.MustProtocol(a.transport.ID()).Listen(a.ID(), participants)
}

// Open is not meaningful on an application.
func (a *Capture) Open(
	_ netid.ProtocolID,
	_ *machine.ControlBag,
) (machine.Session, error) {
	return nil, vnerr.NoRoute
}

// Listen is not meaningful on an application.
func (a *Capture) Listen(_ netid.ProtocolID, _ *machine.ControlBag) error {
	return vnerr.NoRoute
}

// Demux stores one received message and completes the capture when the
// expectation is met.
func (a *Capture) Demux(
	msg message.Message,
	_ machine.Session,
	_ *machine.ControlBag,
) error {
	a.mu.Lock()

	a.received = append(a.received, msg)
	a.receivedBytes += msg.Len()

	complete := false
	if !a.done {
		switch {
		case a.expectedCount > 0 && len(a.received) >= a.expectedCount:
			complete = true
		case a.expectedBytes > 0 && a.receivedBytes >= a.expectedBytes:
			complete = true
		}
		a.done = complete
	}
	a.mu.Unlock()

	if complete {
		a.coordinator.Done(a.shutdown)
	}

	return nil
}

// NotifyError records connection lifecycle errors delivered by TCP.
func (a *Capture) NotifyError(_ tcp.SessionID, err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

// Received returns the messages captured so far.
func (a *Capture) Received() []message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]message.Message, len(a.received))
	copy(out, a.received)

	return out
}

// ReceivedBytes returns the total bytes captured so far.
func (a *Capture) ReceivedBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.receivedBytes
}

// Done reports whether the capture's expectation has been met.
func (a *Capture) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.done
}

// Err returns the last connection error delivered to the capture.
func (a *Capture) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastErr
}
