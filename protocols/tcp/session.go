package tcp

import (
	"fmt"
	"sync"

	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/stats"
	"github.com/vnetsim/vnetsim/vnerr"
)

// An ErrorNotifiee is an upstream protocol that wants connection
// lifecycle errors (ConnectionRefused, ConnectionReset, TimedOut)
// delivered asynchronously, as the error handling policy prescribes.
type ErrorNotifiee interface {
	NotifyError(id SessionID, err error)
}

// timerEvent wakes a session for its earliest pending deadline:
// retransmission or TIME_WAIT expiry.
type timerEvent struct {
	sim.EventBase
	session *Session
}

// Session is one TCP connection: a control block plus the machinery that
// binds it to the engine (timer events), the wire (header codec), and the
// graph (upstream demux, downstream send).
type Session struct {
	sim.HookableBase

	protocol   *Tcp
	id         SessionID
	name       string
	upstream   netid.ProtocolID
	downstream machine.Session
	engine     sim.Engine
	shutdown   *machine.Shutdown

	mu          sync.Mutex
	tcb         *tcb
	timerArmed  sim.VTimeInSec
	lastRetrans int64
	lastFast    int64
}

func newSession(
	p *Tcp,
	id SessionID,
	upstream netid.ProtocolID,
	downstream machine.Session,
	mss uint32,
) *Session {
	return &Session{
		protocol:   p,
		id:         id,
		name: sim.JoinName(p.machine.Name(),
			fmt.Sprintf("tcp.%s-%s", id.Local, id.Remote)),
		upstream:   upstream,
		downstream: downstream,
		engine:     p.machine.Engine(),
		shutdown:   p.shutdown,
		tcb:        newTCB(p.config, mss),
	}
}

// Name identifies the session in hooks and stats.
func (s *Session) Name() string {
	return s.name
}

// ID returns the session's 4-tuple.
func (s *Session) ID() SessionID {
	return s.id
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tcb.state
}

// Send queues application bytes on the connection. Bytes queued before the
// handshake completes are transmitted once the connection establishes.
func (s *Session) Send(msg message.Message, _ *machine.ControlBag) error {
	if s.shutdown != nil && s.shutdown.Triggered() {
		return vnerr.ShuttingDown
	}

	s.mu.Lock()
	out, err := s.tcb.enqueue(msg, s.engine.CurrentTime())
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.apply(out)

	return nil
}

// Close starts the graceful close exchange. The FIN goes out behind any
// queued data.
func (s *Session) Close() error {
	s.mu.Lock()
	out := s.tcb.close(s.engine.CurrentTime())
	s.mu.Unlock()

	s.apply(out)

	return nil
}

// connect begins the active handshake.
func (s *Session) connect() {
	s.mu.Lock()
	out := s.tcb.open(s.engine.CurrentTime())
	s.mu.Unlock()

	s.apply(out)
}

// accept parks the session waiting for the peer's SYN.
func (s *Session) accept() {
	s.mu.Lock()
	s.tcb.listen()
	s.mu.Unlock()
}

// receiveSegment feeds one validated inbound segment to the control block.
func (s *Session) receiveSegment(h Header, payload message.Message) {
	s.mu.Lock()
	out := s.tcb.segmentArrives(h, payload, s.engine.CurrentTime())
	s.mu.Unlock()

	s.apply(out)
}

// Handle processes the session's timer events.
func (s *Session) Handle(_ sim.Event) error {
	s.mu.Lock()
	s.timerArmed = 0
	if s.shutdown != nil && s.shutdown.Triggered() {
		s.mu.Unlock()
		return nil
	}
	out := s.tcb.timeout(s.engine.CurrentTime())
	s.mu.Unlock()

	s.apply(out)

	return nil
}

// apply carries out what a control-block step asked for: transmit
// segments, deliver bytes upward, surface lifecycle transitions, and
// re-arm the timer.
func (s *Session) apply(out actions) {
	for _, seg := range out.segments {
		s.transmit(seg)
	}

	if out.hasDeliver {
		ctx := machine.NewControlBag()
		if upper, ok := s.protocol.machine.Protocol(s.upstream); ok {
			_ = upper.Demux(out.deliver, s, ctx)
		}
	}

	if out.err != nil {
		if notifiee, ok := s.protocol.machine.Protocol(s.upstream); ok {
			if n, isNotifiee := notifiee.(ErrorNotifiee); isNotifiee {
				n.NotifyError(s.id, out.err)
			}
		}
	}

	if out.closed {
		s.protocol.remove(s.id)
		return
	}

	s.recordStats()
	s.ensureTimer()
}

// transmit stamps the live acknowledgment and window into the segment
// header and sends it down the chain. Send-path errors below TCP are part
// of the loss model the retransmission machinery already covers.
func (s *Session) transmit(seg outSegment) {
	s.mu.Lock()
	h := Header{
		SrcPort: s.id.Local.Port,
		DstPort: s.id.Remote.Port,
		Seq:     seg.seq,
		Ack:     s.tcb.rcvNxt,
		Flags:   seg.flags,
		Window:  s.tcb.rcvWnd(),
	}
	if seg.flags&FlagRST != 0 && seg.flags&FlagACK == 0 {
		h.Ack = 0
	}
	s.mu.Unlock()

	payload := seg.payload
	header := EncodeHeader(h, s.id.Local.Addr, s.id.Remote.Addr, payload)

	ctx := machine.NewControlBag()
	_ = s.downstream.Send(payload.Prepend(header), ctx)
}

// ensureTimer schedules a wake-up for the control block's earliest
// deadline, unless one at least as early is already pending. Shutdown
// stops re-arming: abandoning pending work is how TCP observes the global
// cancellation token.
func (s *Session) ensureTimer() {
	if s.shutdown != nil && s.shutdown.Triggered() {
		return
	}

	s.mu.Lock()
	deadline := s.tcb.nextDeadline()
	if deadline == 0 || (s.timerArmed != 0 && s.timerArmed <= deadline) {
		s.mu.Unlock()
		return
	}
	s.timerArmed = deadline
	s.mu.Unlock()

	evt := &timerEvent{session: s}
	evt.EventBase = *sim.NewEventBase(deadline, s)
	s.engine.Schedule(evt)
}

// recordStats publishes retransmission counters and smoothed RTT samples
// through the session's hooks.
func (s *Session) recordStats() {
	if s.NumHooks() == 0 {
		return
	}

	s.mu.Lock()
	newRetrans := s.tcb.retransmits - s.lastRetrans
	newFast := s.tcb.fastRetransmits - s.lastFast
	s.lastRetrans = s.tcb.retransmits
	s.lastFast = s.tcb.fastRetransmits
	srtt := s.tcb.srtt
	haveRTT := s.tcb.haveRTT
	s.mu.Unlock()

	now := s.engine.CurrentTime()
	for i := int64(0); i < newRetrans; i++ {
		stats.Record(s, stats.TCPRetransmits, now, nil)
	}
	for i := int64(0); i < newFast; i++ {
		stats.Record(s, stats.TCPFastRetransmits, now, nil)
	}

	if haveRTT {
		stats.RecordRTT(s, now, srtt)
	}
}
