package sim

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Event identifiers. A serial run issues sequential ids so that two runs
// of the same scenario produce identical traces; a parallel run trades
// that reproducibility for contention-free generation, since its workers
// create events concurrently.

var (
	randomEventIDs atomic.Bool
	nextEventID    atomic.Uint64
)

// UseRandomEventIDs switches event id generation from the sequential
// counter to random xids. The parallel engine selects this when it is
// constructed; the choice applies to events created afterwards.
func UseRandomEventIDs() {
	randomEventIDs.Store(true)
}

// NextEventID issues the id for a newly created event.
func NextEventID() string {
	if randomEventIDs.Load() {
		return xid.New().String()
	}

	return strconv.FormatUint(nextEventID.Add(1), 10)
}
