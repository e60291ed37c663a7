package fabric

import (
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
)

// Frame is the unit the fabric carries: a destination (unicast MAC,
// broadcast, or multicast group), a source MAC, the upper-layer protocol
// id the PCI layer should demux to, and the Message payload.
type Frame struct {
	Dst       MAC
	Broadcast bool
	Src       MAC
	Upper     netid.ProtocolID
	Payload   message.Message

	// Corrupted is set by the fabric, never by the sender, when a
	// corruption draw succeeds for a given recipient. The frame still
	// arrives; upper layers are expected to reject it via checksum.
	Corrupted bool
}

func (f Frame) isMulticast(n *Network) bool {
	_, ok := n.groups[f.Dst]
	return ok
}
