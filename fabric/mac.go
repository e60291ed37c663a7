package fabric

import (
	"fmt"

	"github.com/rs/xid"
)

// MAC identifies a tap within a network, or a multicast group joined by a
// set of taps. Within one network, unicast MACs are issued monotonically on
// attach; the xid suffix keeps the value globally unique across networks in
// the same simulation, the same role github.com/rs/xid plays for trace file
// names and generated IDs elsewhere in the core.
type MAC string

// Broadcast is the distinguished destination MAC that addresses every tap
// on a network except the sender.
const Broadcast MAC = "ff:ff:ff:ff:ff:ff"

func newUnicastMAC(seq uint64) MAC {
	return MAC(fmt.Sprintf("%06x:%s", seq, xid.New().String()))
}

// NewGroupMAC allocates a fresh multicast group MAC. Taps join and leave
// the group explicitly via Tap.Join/Tap.Leave.
func NewGroupMAC() MAC {
	return MAC("mcast:" + xid.New().String())
}
