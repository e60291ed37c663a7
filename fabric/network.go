package fabric

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/stats"
	"github.com/vnetsim/vnetsim/vnerr"
)

// deliverEvent is the scheduled wake-up that carries one frame to one
// recipient tap. It is an ordinary sim.Event, so fabric delivery shares the
// same engine loop and hooking mechanism as every other component.
type deliverEvent struct {
	sim.EventBase
	network *Network
	tap     *Tap
	frame   Frame
}

// HookPosFrameDropped marks a frame that the fabric dropped: on loss, no
// route, or an unsubscribed multicast group before any recipient saw it,
// or at a recipient whose receive queue was full.
var HookPosFrameDropped = &sim.HookPos{Name: "Fabric Frame Dropped"}

// HookPosFrameDelivered marks a frame actually handed to a recipient's
// receive handler, corrupted or not.
var HookPosFrameDelivered = &sim.HookPos{Name: "Fabric Frame Delivered"}

type pairKey struct {
	src, dst MAC
}

// Network is a per-network delivery medium modeling MTU, latency,
// throughput, loss, and corruption, connecting attached taps by unicast,
// multicast, and broadcast.
type Network struct {
	sim.HookableBase

	name   string
	engine sim.Engine
	config Config
	rng    *rand.Rand

	mu      sync.Mutex
	nextMAC uint64
	taps    map[MAC]*Tap
	order   []MAC // deterministic iteration order, by attach sequence
	groups  map[MAC]map[MAC]bool

	// lastScheduled enforces strict per-(sender,recipient) monotonicity of
	// delivery times, preserving send order even when two same-size sends
	// land on the same computed delivery time. The nudge is within the
	// epsilon tolerance the round-trip property already allows.
	lastScheduled map[pairKey]sim.VTimeInSec
}

const scheduleEpsilon = sim.VTimeInSec(1e-12)

// NewNetwork builds a network with the given config, driven by engine.
func NewNetwork(name string, engine sim.Engine, config Config) *Network {
	sim.NameMustBeValid(name)

	return &Network{
		name:          name,
		engine:        engine,
		config:        config,
		rng:           rand.New(rand.NewSource(rand.Int63())), //nolint:gosec
		taps:          make(map[MAC]*Tap),
		groups:        make(map[MAC]map[MAC]bool),
		lastScheduled: make(map[pairKey]sim.VTimeInSec),
	}
}

// Name returns the network's name.
func (n *Network) Name() string {
	return n.name
}

// Config returns the network's configuration.
func (n *Network) Config() Config {
	return n.config
}

// Attach allocates a new tap with a freshly issued MAC unique within this
// network.
func (n *Network) Attach() *Tap {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextMAC++
	mac := newUnicastMAC(n.nextMAC)
	tap := newTap(sim.JoinName(n.name, string(mac)), mac, n)

	n.taps[mac] = tap
	n.order = append(n.order, mac)

	return tap
}

// TapCount returns the number of taps currently attached.
func (n *Network) TapCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.order)
}

func (n *Network) join(t *Tap, group MAC) {
	n.mu.Lock()
	defer n.mu.Unlock()

	members, ok := n.groups[group]
	if !ok {
		members = make(map[MAC]bool)
		n.groups[group] = members
	}

	members[t.mac] = true
}

func (n *Network) leave(t *Tap, group MAC) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if members, ok := n.groups[group]; ok {
		delete(members, t.mac)
	}
}

// send implements the delivery algorithm of the network fabric: MTU check,
// loss draw, recipient determination, and per-recipient scheduled delivery
// with independent corruption draws.
func (n *Network) send(sender *Tap, frame Frame) error {
	payloadLen := frame.Payload.Len()

	if uint32(payloadLen) > n.config.MTU {
		return vnerr.FrameTooLarge
	}

	stats.Record(n, stats.FramesSent, n.engine.CurrentTime(), sender.mac)

	if n.config.LossProbability > 0 && n.rng.Float64() < n.config.LossProbability {
		n.invokeDropHook(frame, "loss")
		return nil
	}

	recipients := n.recipients(sender, frame)
	if len(recipients) == 0 {
		n.invokeDropHook(frame, "no-recipient")
		return nil
	}

	delay := n.config.TotalDelay(payloadLen)
	now := n.engine.CurrentTime()

	for _, recipient := range recipients {
		deliverFrame := frame

		if n.config.CorruptionProbability > 0 &&
			n.rng.Float64() < n.config.CorruptionProbability {
			deliverFrame.Corrupted = true
			stats.Record(n, stats.FramesCorrupted, now, recipient.mac)
		}

		scheduledTime := n.nextDeliveryTime(sender.mac, recipient.mac, now+delay)

		evt := &deliverEvent{
			network: n,
			tap:     recipient,
			frame:   deliverFrame,
		}
		evt.EventBase = *sim.NewEventBase(scheduledTime, n)

		n.engine.Schedule(evt)
	}

	return nil
}

// nextDeliveryTime enforces strict monotonicity per (sender, recipient)
// pair so that the fabric's FIFO ordering guarantee holds even when two
// sends of equal size compute an identical delay.
func (n *Network) nextDeliveryTime(
	src, dst MAC,
	proposed sim.VTimeInSec,
) sim.VTimeInSec {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := pairKey{src: src, dst: dst}

	last, ok := n.lastScheduled[key]
	if ok && proposed <= last {
		proposed = last + scheduleEpsilon
	}

	n.lastScheduled[key] = proposed

	return proposed
}

func (n *Network) recipients(sender *Tap, frame Frame) []*Tap {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case frame.Broadcast:
		out := make([]*Tap, 0, len(n.order))
		for _, mac := range n.order {
			if mac == sender.mac {
				continue
			}
			out = append(out, n.taps[mac])
		}
		return out

	case frame.isMulticast(n):
		members := n.groups[frame.Dst]
		macs := make([]MAC, 0, len(members))
		for mac := range members {
			macs = append(macs, mac)
		}
		sort.Slice(macs, func(i, j int) bool { return macs[i] < macs[j] })

		out := make([]*Tap, 0, len(macs))
		for _, mac := range macs {
			out = append(out, n.taps[mac])
		}
		return out

	default:
		tap, ok := n.taps[frame.Dst]
		if !ok {
			return nil
		}
		return []*Tap{tap}
	}
}

func (n *Network) invokeDropHook(frame Frame, reason string) {
	if n.NumHooks() == 0 {
		return
	}

	stats.Record(n, stats.FramesDropped, n.engine.CurrentTime(), reason)

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosFrameDropped,
		Item:   frame,
		Detail: reason,
	})
}

// Handle delivers a scheduled frame to its recipient tap.
func (n *Network) Handle(e sim.Event) error {
	evt, ok := e.(*deliverEvent)
	if !ok {
		return nil
	}

	if n.NumHooks() > 0 {
		n.InvokeHook(sim.HookCtx{
			Domain: n,
			Pos:    HookPosFrameDelivered,
			Item:   evt.frame,
			Detail: evt.tap.mac,
		})
		stats.Record(n, stats.FramesDelivered, e.Time(), evt.tap.mac)
	}

	evt.tap.deliver(evt.frame)

	return nil
}
