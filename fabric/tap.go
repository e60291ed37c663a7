package fabric

import (
	"sync"

	"github.com/vnetsim/vnetsim/sim"
)

// rxQueueCapacity bounds the frames a tap will hold between delivery and
// handler processing. An arriving frame that finds the queue full is
// dropped, like on a saturated network interface.
const rxQueueCapacity = 1024

// ReceiveHandler is invoked by the fabric when a frame arrives for a tap.
type ReceiveHandler func(Frame)

// Tap is a bidirectional attachment point between one machine's PCI slot
// and one network. It is owned by exactly one PCI slot; PCI both sends
// outbound frames through it and receives inbound frames from it.
type Tap struct {
	name    string
	mac     MAC
	network *Network

	mu        sync.Mutex
	onReceive ReceiveHandler
	rx        sim.Buffer
	draining  bool
	groups    map[MAC]bool
}

func newTap(name string, mac MAC, network *Network) *Tap {
	return &Tap{
		name:    name,
		mac:     mac,
		network: network,
		rx:      sim.NewBuffer(sim.JoinName(name, "rx"), rxQueueCapacity),
		groups:  make(map[MAC]bool),
	}
}

// Name returns the tap's name, derived from its owning network and MAC.
func (t *Tap) Name() string {
	return t.name
}

// MAC returns the tap's unicast address on its network.
func (t *Tap) MAC() MAC {
	return t.mac
}

// Network returns the network this tap is attached to.
func (t *Tap) Network() *Network {
	return t.network
}

// OnReceive registers the per-tap inbound sink. The fabric invokes this
// handler (on the engine goroutine processing the scheduled delivery event)
// when a frame arrives for this tap.
func (t *Tap) OnReceive(handler ReceiveHandler) {
	t.mu.Lock()
	t.onReceive = handler
	t.mu.Unlock()
}

// Send schedules delivery of frame to its peers through this tap's network.
// frame.Src is overwritten with this tap's MAC.
func (t *Tap) Send(frame Frame) error {
	frame.Src = t.mac
	return t.network.send(t, frame)
}

// Join subscribes this tap to a multicast group.
func (t *Tap) Join(group MAC) {
	t.mu.Lock()
	t.groups[group] = true
	t.mu.Unlock()

	t.network.join(t, group)
}

// Leave unsubscribes this tap from a multicast group.
func (t *Tap) Leave(group MAC) {
	t.mu.Lock()
	delete(t.groups, group)
	t.mu.Unlock()

	t.network.leave(t, group)
}

// deliver enqueues one arriving frame and drains the queue to the
// registered handler. Frames arriving at the same instant on a parallel
// engine serialize through the queue, so the handler processes one frame
// at a time; a full queue drops the frame.
func (t *Tap) deliver(f Frame) {
	t.mu.Lock()

	if !t.rx.CanPush() {
		t.mu.Unlock()
		t.network.invokeDropHook(f, "rx-overflow")
		return
	}
	t.rx.Push(f)

	if t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true

	for t.rx.Size() > 0 {
		frame := t.rx.Pop().(Frame)
		handler := t.onReceive
		t.mu.Unlock()

		if handler != nil {
			handler(frame)
		}

		t.mu.Lock()
	}

	t.draining = false
	t.mu.Unlock()
}
