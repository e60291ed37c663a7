package tcp

import (
	"math/rand"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/vnerr"
)

// State is a TCP connection state.
type State int

// The standard connection states.
const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	StateCloseWait
	StateLastAck
)

var stateNames = map[State]string{
	StateClosed:      "CLOSED",
	StateListen:      "LISTEN",
	StateSynSent:     "SYN_SENT",
	StateSynReceived: "SYN_RECEIVED",
	StateEstablished: "ESTABLISHED",
	StateFinWait1:    "FIN_WAIT_1",
	StateFinWait2:    "FIN_WAIT_2",
	StateClosing:     "CLOSING",
	StateTimeWait:    "TIME_WAIT",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
}

func (s State) String() string {
	return stateNames[s]
}

// outSegment is a segment this side has emitted. Segments that consume
// sequence space stay on the retransmission queue until cumulatively
// acknowledged.
type outSegment struct {
	seq           uint32
	flags         uint8
	payload       message.Message
	length        uint32
	sentAt        sim.VTimeInSec
	retransmitted bool
}

type oooSegment struct {
	seq     uint32
	payload message.Message
}

// actions is what a control-block step asks its session to do: transmit
// segments, deliver contiguous bytes upward, and surface lifecycle
// transitions.
type actions struct {
	segments    []outSegment
	deliver     message.Message
	hasDeliver  bool
	established bool
	closed      bool
	err         error
}

func (a *actions) emit(seg outSegment) {
	a.segments = append(a.segments, seg)
}

// tcb is the transmission control block: all per-connection state, and
// the state machine that advances it. It is pure logic; the session wraps
// it with locking, timer events, and the wire codec.
type tcb struct {
	cfg   Config
	state State
	mss   uint32

	iss    uint32
	sndUna uint32
	sndNxt uint32
	sndWnd uint32
	rcvNxt uint32

	sendQ       message.Message
	closeQueued bool
	finSent     bool

	outstanding []outSegment

	ooo      []oooSegment
	buffered int

	cwnd     float64
	ssthresh float64
	dupAcks  int

	srtt    sim.VTimeInSec
	rttvar  sim.VTimeInSec
	rto     sim.VTimeInSec
	haveRTT bool
	retries int

	rtoDeadline      sim.VTimeInSec
	timeWaitDeadline sim.VTimeInSec

	// Counters observed by the stats hooks.
	retransmits     int64
	fastRetransmits int64
}

func newTCB(cfg Config, mss uint32) *tcb {
	t := &tcb{
		cfg:      cfg,
		state:    StateClosed,
		mss:      mss,
		iss:      rand.Uint32(), //nolint:gosec
		cwnd:     float64(mss),
		ssthresh: 1 << 30,
		rto:      cfg.RTOInitial,
	}
	t.sndUna = t.iss
	t.sndNxt = t.iss

	return t
}

func (t *tcb) rcvWnd() uint16 {
	free := t.cfg.RecvBufferCap - t.buffered
	if free < 0 {
		free = 0
	}
	if free > 0xffff {
		free = 0xffff
	}

	return uint16(free)
}

func (t *tcb) flightSize() uint32 {
	return t.sndNxt - t.sndUna
}

// open starts an active connection: emit a SYN and enter SYN_SENT.
func (t *tcb) open(now sim.VTimeInSec) actions {
	var out actions

	t.state = StateSynSent
	out.emit(t.emitCtl(FlagSYN, now))
	t.armRTO(now)

	return out
}

// listen parks the control block waiting for a SYN.
func (t *tcb) listen() {
	t.state = StateListen
}

// enqueue accepts application bytes for transmission. Bytes queued before
// the handshake completes are held and flushed on ESTABLISHED.
func (t *tcb) enqueue(msg message.Message, now sim.VTimeInSec) (actions, error) {
	switch t.state {
	case StateSynSent, StateSynReceived, StateEstablished, StateCloseWait:
	default:
		return actions{}, vnerr.ConnectionReset
	}

	if t.closeQueued {
		return actions{}, vnerr.ConnectionReset
	}

	t.sendQ = message.Concat(t.sendQ, msg)

	var out actions
	out.segments = t.pump(now)

	return out, nil
}

// close queues a FIN behind any unsent data and starts teardown.
func (t *tcb) close(now sim.VTimeInSec) actions {
	var out actions

	switch t.state {
	case StateListen:
		t.state = StateClosed
		out.closed = true
		return out
	case StateSynSent, StateSynReceived, StateEstablished, StateCloseWait:
		// A close issued before the handshake completes queues the FIN
		// behind any unsent data; it goes out once the connection
		// establishes and the send queue drains.
		t.closeQueued = true
		out.segments = t.pump(now)
	default:
	}

	return out
}

// segmentArrives advances the state machine with one inbound segment.
// The structure follows RFC 793's event processing rules, trimmed to the
// states this stack can reach.
func (t *tcb) segmentArrives(
	h Header,
	payload message.Message,
	now sim.VTimeInSec,
) actions {
	switch t.state {
	case StateClosed:
		return t.arrivesClosed(h)
	case StateListen:
		return t.arrivesListen(h, now)
	case StateSynSent:
		return t.arrivesSynSent(h, now)
	default:
		return t.arrivesSynchronized(h, payload, now)
	}
}

func (t *tcb) arrivesClosed(h Header) actions {
	var out actions

	if !h.Ctl(FlagRST) {
		out.emit(t.resetFor(h))
	}

	return out
}

func (t *tcb) arrivesListen(h Header, now sim.VTimeInSec) actions {
	var out actions

	switch {
	case h.Ctl(FlagRST):
	case h.Ctl(FlagACK):
		out.emit(t.resetFor(h))
	case h.Ctl(FlagSYN):
		t.rcvNxt = h.Seq + 1
		t.sndWnd = uint32(h.Window)
		t.state = StateSynReceived
		out.emit(t.emitCtl(FlagSYN|FlagACK, now))
		t.armRTO(now)
	}

	return out
}

func (t *tcb) arrivesSynSent(h Header, now sim.VTimeInSec) actions {
	var out actions

	if h.Ctl(FlagACK) && !seqBetween(t.iss, h.Ack, t.sndNxt) {
		if !h.Ctl(FlagRST) {
			out.emit(t.resetFor(h))
		}
		return out
	}

	if h.Ctl(FlagRST) {
		if h.Ctl(FlagACK) {
			t.enterClosed(&out, vnerr.ConnectionRefused)
		}
		return out
	}

	if !h.Ctl(FlagSYN) {
		return out
	}

	t.rcvNxt = h.Seq + 1
	t.sndWnd = uint32(h.Window)

	if h.Ctl(FlagACK) {
		t.ackAdvance(h.Ack, now)
	}

	if seqGT(t.sndUna, t.iss) {
		t.state = StateEstablished
		out.established = true
		out.emit(t.emitCtl(FlagACK, now))
		out.segments = append(out.segments, t.pump(now)...)
		if len(t.outstanding) == 0 {
			t.clearRTO()
		}
	} else {
		// Simultaneous open.
		t.state = StateSynReceived
		out.emit(t.emitCtl(FlagSYN|FlagACK, now))
	}

	return out
}

//nolint:gocyclo,funlen // The event processing rules are one big decision
// tree; splitting it obscures the correspondence with RFC 793.
func (t *tcb) arrivesSynchronized(
	h Header,
	payload message.Message,
	now sim.VTimeInSec,
) actions {
	var out actions

	// First: sequence acceptability.
	if !t.acceptable(h, payload.Len()) {
		if !h.Ctl(FlagRST) {
			out.emit(t.emitCtl(FlagACK, now))
		}
		return out
	}

	// Second: RST tears the connection down.
	if h.Ctl(FlagRST) {
		err := vnerr.ConnectionReset
		if t.state == StateSynReceived {
			err = vnerr.ConnectionRefused
		}
		t.enterClosed(&out, err)
		return out
	}

	// Third: a SYN in the window is a protocol error.
	if h.Ctl(FlagSYN) && seqGE(h.Seq, t.rcvNxt) {
		out.emit(t.resetFor(h))
		t.enterClosed(&out, vnerr.ConnectionReset)
		return out
	}

	// Fourth: everything past the handshake must carry an ACK.
	if !h.Ctl(FlagACK) {
		return out
	}

	if t.state == StateSynReceived {
		if !seqBetween(t.sndUna, h.Ack, t.sndNxt) {
			out.emit(t.resetFor(h))
			return out
		}
		t.state = StateEstablished
		t.sndWnd = uint32(h.Window)
		out.established = true
	}

	t.processAck(h, payload.Len(), &out, now)

	// Fifth: segment text.
	if payload.Len() > 0 {
		t.ingest(h.Seq, payload, &out)
		out.emit(t.emitCtl(FlagACK, now))
	}

	// Sixth: FIN.
	finSeq := h.Seq + uint32(payload.Len())
	if h.Ctl(FlagFIN) && finSeq == t.rcvNxt {
		t.rcvNxt++
		out.emit(t.emitCtl(FlagACK, now))
		t.processFin(now)
	}

	out.segments = append(out.segments, t.pump(now)...)

	if len(t.outstanding) == 0 {
		t.clearRTO()
	}

	return out
}

// acceptable implements the receive-window acceptability test.
func (t *tcb) acceptable(h Header, payloadLen int) bool {
	segLen := uint32(payloadLen)
	if h.Ctl(FlagSYN) {
		segLen++
	}
	if h.Ctl(FlagFIN) {
		segLen++
	}

	wnd := uint32(t.rcvWnd())

	if segLen == 0 {
		if wnd == 0 {
			return h.Seq == t.rcvNxt
		}
		return seqGE(h.Seq, t.rcvNxt-wnd) && seqLT(h.Seq, t.rcvNxt+wnd)
	}

	if wnd == 0 {
		return false
	}

	inWnd := func(n uint32) bool {
		return seqGE(n, t.rcvNxt) && seqLT(n, t.rcvNxt+wnd)
	}

	return inWnd(h.Seq) || inWnd(h.Seq+segLen-1) || seqLT(h.Seq, t.rcvNxt) && seqGE(h.Seq+segLen, t.rcvNxt)
}

func (t *tcb) processAck(h Header, payloadLen int, out *actions, now sim.VTimeInSec) {
	switch {
	case seqBetween(t.sndUna, h.Ack, t.sndNxt):
		t.ackAdvance(h.Ack, now)
		t.sndWnd = uint32(h.Window)
		t.dupAcks = 0
		t.retries = 0
		if len(t.outstanding) > 0 {
			t.armRTOAt(now + t.rto)
		} else {
			t.clearRTO()
		}
		t.afterAckStateChecks(out, now)

	case seqLE(h.Ack, t.sndUna):
		t.sndWnd = uint32(h.Window)
		if len(t.outstanding) > 0 && payloadLen == 0 &&
			h.Flags&(FlagSYN|FlagFIN) == 0 &&
			h.Ack == t.sndUna {
			t.dupAcks++
			if t.dupAcks == 3 {
				t.fastRetransmit(out, now)
			}
		}

	default: // ACK for data not yet sent.
		out.emit(t.emitCtl(FlagACK, now))
	}
}

// afterAckStateChecks advances close-path states that complete when the
// retransmission queue drains.
func (t *tcb) afterAckStateChecks(out *actions, now sim.VTimeInSec) {
	allAcked := t.finSent && t.sndUna == t.sndNxt

	switch t.state {
	case StateFinWait1:
		if allAcked {
			t.state = StateFinWait2
		}
	case StateClosing:
		if allAcked {
			t.enterTimeWait(now)
		}
	case StateLastAck:
		if allAcked {
			t.enterClosed(out, nil)
		}
	default:
	}
}

func (t *tcb) processFin(now sim.VTimeInSec) {
	switch t.state {
	case StateEstablished, StateSynReceived:
		t.state = StateCloseWait
	case StateFinWait1:
		if t.finSent && t.sndUna == t.sndNxt {
			t.enterTimeWait(now)
		} else {
			t.state = StateClosing
		}
	case StateFinWait2:
		t.enterTimeWait(now)
	case StateTimeWait:
		t.enterTimeWait(now) // restart the 2xMSL clock
	default:
	}
}

// ackAdvance removes cumulatively acknowledged segments, samples RTT from
// segments sent exactly once, and grows the congestion window.
func (t *tcb) ackAdvance(ack uint32, now sim.VTimeInSec) {
	if !seqGT(ack, t.sndUna) {
		return
	}

	t.sndUna = ack

	ackedData := false
	kept := t.outstanding[:0]
	for _, seg := range t.outstanding {
		if seqLE(seg.seq+seg.length, ack) {
			// Control segments carry no timing signal worth feeding the
			// estimator; Karn's rule already excludes retransmissions.
			if !seg.retransmitted && seg.flags&(FlagSYN|FlagFIN) == 0 {
				t.sampleRTT(now - seg.sentAt)
			}
			if seg.flags&(FlagSYN|FlagFIN) == 0 {
				ackedData = true
			}
			continue
		}
		kept = append(kept, seg)
	}
	t.outstanding = kept

	if !ackedData {
		return
	}

	if t.cwnd < t.ssthresh {
		t.cwnd += float64(t.mss)
	} else {
		t.cwnd += float64(t.mss) * float64(t.mss) / t.cwnd
	}
}

// sampleRTT folds one measurement into the smoothed estimator.
func (t *tcb) sampleRTT(sample sim.VTimeInSec) {
	if sample < 0 {
		return
	}

	if !t.haveRTT {
		t.srtt = sample
		t.rttvar = sample / 2
		t.haveRTT = true
	} else {
		diff := t.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		t.rttvar = 0.75*t.rttvar + 0.25*diff
		t.srtt = 0.875*t.srtt + 0.125*sample
	}

	t.rto = t.srtt + 4*t.rttvar
	if t.rto < t.cfg.RTOMin {
		t.rto = t.cfg.RTOMin
	}
	if t.rto > t.cfg.RTOMax {
		t.rto = t.cfg.RTOMax
	}
}

func (t *tcb) fastRetransmit(out *actions, now sim.VTimeInSec) {
	if len(t.outstanding) == 0 {
		return
	}

	t.ssthresh = max(float64(t.flightSize())/2, float64(2*t.mss))
	t.cwnd = t.ssthresh
	t.fastRetransmits++

	seg := &t.outstanding[0]
	seg.retransmitted = true
	seg.sentAt = now
	out.emit(*seg)
	t.armRTOAt(now + t.rto)
}

// timeout reacts to the session's timer event: TIME_WAIT expiry or a
// retransmission timeout with exponential backoff.
func (t *tcb) timeout(now sim.VTimeInSec) actions {
	var out actions

	if t.state == StateTimeWait {
		if now >= t.timeWaitDeadline {
			t.enterClosed(&out, nil)
		}
		return out
	}

	if t.rtoDeadline == 0 || now < t.rtoDeadline {
		return out
	}

	if len(t.outstanding) == 0 {
		t.clearRTO()
		return out
	}

	t.retries++
	if t.retries > t.cfg.MaxRetries {
		t.enterClosed(&out, vnerr.TimedOut)
		return out
	}

	t.ssthresh = max(float64(t.flightSize())/2, float64(2*t.mss))
	t.cwnd = float64(t.mss)
	t.dupAcks = 0
	t.retransmits++

	t.rto *= 2
	if t.rto > t.cfg.RTOMax {
		t.rto = t.cfg.RTOMax
	}

	seg := &t.outstanding[0]
	seg.retransmitted = true
	seg.sentAt = now
	out.emit(*seg)
	t.armRTOAt(now + t.rto)

	return out
}

// pump emits as much queued data as the congestion and peer windows
// allow, then the queued FIN once the send queue drains.
func (t *tcb) pump(now sim.VTimeInSec) []outSegment {
	var segs []outSegment

	switch t.state {
	case StateEstablished, StateCloseWait:
	default:
		return nil
	}

	wnd := uint32(min(t.cwnd, float64(t.sndWnd)))
	limit := t.sndUna + wnd

	for t.sendQ.Len() > 0 && seqLT(t.sndNxt, limit) {
		room := limit - t.sndNxt
		n := min(uint32(t.sendQ.Len()), min(room, t.mss))

		chunk, err := t.sendQ.Slice(0, int(n))
		if err != nil {
			break
		}
		rest, err := t.sendQ.Slice(int(n), t.sendQ.Len())
		if err != nil {
			break
		}
		t.sendQ = rest

		seg := outSegment{
			seq:     t.sndNxt,
			flags:   FlagACK | FlagPSH,
			payload: chunk,
			length:  n,
			sentAt:  now,
		}
		t.sndNxt += n
		t.outstanding = append(t.outstanding, seg)
		segs = append(segs, seg)
	}

	if t.closeQueued && !t.finSent && t.sendQ.Len() == 0 {
		seg := outSegment{
			seq:    t.sndNxt,
			flags:  FlagFIN | FlagACK,
			length: 1,
			sentAt: now,
		}
		t.sndNxt++
		t.finSent = true
		t.outstanding = append(t.outstanding, seg)
		segs = append(segs, seg)

		switch t.state {
		case StateEstablished:
			t.state = StateFinWait1
		case StateCloseWait:
			t.state = StateLastAck
		default:
		}
	}

	if len(segs) > 0 {
		t.armRTO(now)
	}

	return segs
}

// ingest stores segment text, trimming what was already received, and
// delivers the contiguous prefix upward as a concatenated message.
func (t *tcb) ingest(seq uint32, payload message.Message, out *actions) {
	end := seq + uint32(payload.Len())

	if seqLE(end, t.rcvNxt) {
		return // wholly duplicate
	}

	if seqLT(seq, t.rcvNxt) {
		trimmed, err := payload.Slice(int(t.rcvNxt-seq), payload.Len())
		if err != nil {
			return
		}
		payload = trimmed
		seq = t.rcvNxt
	}

	if t.buffered+payload.Len() > t.cfg.RecvBufferCap {
		return // no room; the peer will retransmit into a wider window
	}

	for _, existing := range t.ooo {
		existingEnd := existing.seq + uint32(existing.payload.Len())
		if seqLT(seq, existingEnd) && seqLT(existing.seq, end) {
			return // overlaps a stored segment; keep the first arrival
		}
	}

	idx := len(t.ooo)
	for i, existing := range t.ooo {
		if seqLT(seq, existing.seq) {
			idx = i
			break
		}
	}
	t.ooo = append(t.ooo, oooSegment{})
	copy(t.ooo[idx+1:], t.ooo[idx:])
	t.ooo[idx] = oooSegment{seq: seq, payload: payload}
	t.buffered += payload.Len()

	var delivered message.Message
	for len(t.ooo) > 0 && t.ooo[0].seq == t.rcvNxt {
		head := t.ooo[0]
		t.ooo = t.ooo[1:]
		t.buffered -= head.payload.Len()
		t.rcvNxt += uint32(head.payload.Len())
		delivered = message.Concat(delivered, head.payload)
	}

	if delivered.Len() > 0 {
		out.deliver = message.Concat(out.deliver, delivered)
		out.hasDeliver = true
	}
}

func (t *tcb) emitCtl(flags uint8, now sim.VTimeInSec) outSegment {
	var length uint32
	if flags&(FlagSYN|FlagFIN) != 0 {
		length = 1
	}

	seg := outSegment{
		seq:    t.sndNxt,
		flags:  flags,
		length: length,
		sentAt: now,
	}

	if length > 0 {
		t.sndNxt += length
		t.outstanding = append(t.outstanding, seg)
		t.armRTO(now)
	}

	return seg
}

// resetFor builds the RST answering an unacceptable segment.
func (t *tcb) resetFor(h Header) outSegment {
	if h.Ctl(FlagACK) {
		return outSegment{seq: h.Ack, flags: FlagRST}
	}

	return outSegment{seq: 0, flags: FlagRST | FlagACK}
}

func (t *tcb) enterTimeWait(now sim.VTimeInSec) {
	t.state = StateTimeWait
	t.timeWaitDeadline = now + t.cfg.TimeWait
	t.clearRTO()
}

func (t *tcb) enterClosed(out *actions, err error) {
	t.state = StateClosed
	t.outstanding = nil
	t.ooo = nil
	t.buffered = 0
	t.clearRTO()
	out.closed = true
	if err != nil {
		out.err = err
	}
}

func (t *tcb) armRTO(now sim.VTimeInSec) {
	if t.rtoDeadline == 0 {
		t.rtoDeadline = now + t.rto
	}
}

func (t *tcb) armRTOAt(deadline sim.VTimeInSec) {
	t.rtoDeadline = deadline
}

func (t *tcb) clearRTO() {
	t.rtoDeadline = 0
}

// nextDeadline reports the earliest timer the session must wake for.
func (t *tcb) nextDeadline() sim.VTimeInSec {
	switch {
	case t.state == StateTimeWait:
		return t.timeWaitDeadline
	case t.rtoDeadline > 0:
		return t.rtoDeadline
	default:
		return 0
	}
}
