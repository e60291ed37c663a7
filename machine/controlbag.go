package machine

import (
	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/netid"
)

// Key is a typed tag for one slot of a ControlBag. Keys are created once,
// as package-level values, by whichever protocol witnesses the
// corresponding header field; upper layers read only the keys they
// require.
type Key[T any] struct {
	name string
}

// NewKey creates a typed ControlBag key. Callers should keep the returned
// value in a package-level variable rather than recreating it.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// ControlBag is a small typed map threaded along the send and demux paths,
// carrying context such as local/remote address, port, MTU hints, and PCI
// slot index.
type ControlBag struct {
	values map[string]any
}

// NewControlBag creates an empty ControlBag.
func NewControlBag() *ControlBag {
	return &ControlBag{values: make(map[string]any)}
}

// Set stores v under key.
func Set[T any](b *ControlBag, key Key[T], v T) {
	b.values[key.name] = v
}

// Get returns the value stored under key, if any key of the right type was
// set.
func Get[T any](b *ControlBag, key Key[T]) (T, bool) {
	v, ok := b.values[key.name]
	if !ok {
		var zero T
		return zero, false
	}

	t, ok := v.(T)
	return t, ok
}

// Clone returns a shallow copy of b, used when a protocol hands the bag
// onward while still needing its own copy (e.g. a transport turning the
// demux context into the participants of a session it creates).
func (b *ControlBag) Clone() *ControlBag {
	out := NewControlBag()
	for k, v := range b.values {
		out.values[k] = v
	}

	return out
}

// Well-known control bag keys witnessed by the link layer. Address and
// port keys belong to the protocols whose headers carry them and are
// declared in the ipv4, udp, and tcp packages.
var (
	KeyMTU           = NewKey[uint32]("mtu")
	KeyPCISlot       = NewKey[int]("pci_slot")
	KeySrcMAC        = NewKey[fabric.MAC]("src_mac")
	KeyDstMAC        = NewKey[fabric.MAC]("dst_mac")
	KeyBroadcast     = NewKey[bool]("broadcast")
	KeyUpperProtocol = NewKey[netid.ProtocolID]("upper_protocol")
	KeyCorrupted     = NewKey[bool]("corrupted")
)
