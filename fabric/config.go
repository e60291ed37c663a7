package fabric

import "github.com/vnetsim/vnetsim/sim"

// Config is the immutable characterization of one network's delivery
// medium: MTU, latency, throughput, loss, and corruption. A Network is
// built from exactly one Config and never mutates it afterwards.
type Config struct {
	// MTU is the largest frame payload, in bytes, the network will carry.
	// A larger send fails locally with vnerr.FrameTooLarge.
	MTU uint32

	// Latency is the fixed propagation delay applied to every delivery.
	Latency sim.VTimeInSec

	// ThroughputBytesPerSecond is the transmission rate used to compute the
	// serialization delay of a frame. Zero means unlimited (no
	// serialization delay).
	ThroughputBytesPerSecond float64

	// LossProbability is drawn once per send; on success the frame is
	// dropped silently before any recipient is computed.
	LossProbability float64

	// CorruptionProbability is drawn once per recipient; on success the
	// frame is still delivered but marked Corrupted.
	CorruptionProbability float64
}

// TransmissionDelay returns the serialization delay for a payload of the
// given length under this config's throughput.
func (c Config) TransmissionDelay(payloadLen int) sim.VTimeInSec {
	if c.ThroughputBytesPerSecond <= 0 {
		return 0
	}

	return sim.VTimeInSec(float64(payloadLen) / c.ThroughputBytesPerSecond)
}

// TotalDelay returns latency plus the serialization delay for a payload of
// the given length.
func (c Config) TotalDelay(payloadLen int) sim.VTimeInSec {
	return c.Latency + c.TransmissionDelay(payloadLen)
}
