// Package netid defines the stable protocol identifier type shared by the
// network fabric and the protocol graph. It is split out as its own
// package so that fabric (the link-layer delivery medium) and machine (the
// protocol graph that sits on top of it) can both reference protocol
// identities without importing each other.
package netid

// ProtocolID is a stable, hashable tag identifying a protocol kind. It is
// unique within a single Machine; the same ProtocolID value may be reused
// across machines without collision since protocol registries are
// per-machine.
type ProtocolID string

// Well-known protocol identifiers for the standard stack.
const (
	PCI  ProtocolID = "PCI"
	IPv4 ProtocolID = "IPv4"
	UDP  ProtocolID = "UDP"
	TCP  ProtocolID = "TCP"
)
