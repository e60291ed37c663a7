package tcp

import "github.com/vnetsim/vnetsim/sim"

// Config carries the tunables of a TCP protocol instance. The zero value
// is completed by Defaults.
type Config struct {
	// MSL is the maximum segment lifetime. TIME_WAIT lasts 2xMSL unless
	// TimeWait overrides it.
	MSL sim.VTimeInSec

	// TimeWait is the TIME_WAIT duration. Zero means 2xMSL.
	TimeWait sim.VTimeInSec

	// RTOMin and RTOMax clamp the adaptive retransmission timeout.
	RTOMin sim.VTimeInSec
	RTOMax sim.VTimeInSec

	// RTOInitial seeds the timeout before the first RTT sample.
	RTOInitial sim.VTimeInSec

	// MaxRetries bounds consecutive retransmissions of one segment before
	// the connection fails with vnerr.TimedOut.
	MaxRetries int

	// RecvBufferCap bounds the bytes the reception buffer will hold; the
	// advertised receive window is the capacity minus the bytes buffered.
	RecvBufferCap int
}

// Defaults fills zero fields with the stack's defaults.
func (c Config) Defaults() Config {
	if c.MSL == 0 {
		c.MSL = 1
	}
	if c.TimeWait == 0 {
		c.TimeWait = 2 * c.MSL
	}
	if c.RTOMin == 0 {
		c.RTOMin = 0.1
	}
	if c.RTOMax == 0 {
		c.RTOMax = 60
	}
	if c.RTOInitial == 0 {
		c.RTOInitial = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 8
	}
	if c.RecvBufferCap == 0 {
		c.RecvBufferCap = 0xffff
	}

	return c
}
