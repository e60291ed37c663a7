// Package udp implements the User Datagram Protocol layer: an 8-byte
// header, a pseudo-header checksum, and stateless sessions keyed by the
// full 4-tuple, with listens keyed by local endpoint.
package udp

import (
	"encoding/binary"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

// HeaderLen is the length of a UDP header.
const HeaderLen = 8

// Header is a parsed UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// EncodeHeader serializes a UDP header for the given payload, including
// the IPv4 pseudo-header in the checksum.
func EncodeHeader(
	src, dst ipv4.Endpoint,
	payload message.Message,
) []byte {
	b := make([]byte, HeaderLen)

	length := uint16(HeaderLen + payload.Len())
	binary.BigEndian.PutUint16(b[0:], src.Port)
	binary.BigEndian.PutUint16(b[2:], dst.Port)
	binary.BigEndian.PutUint16(b[4:], length)

	var sum ipv4.Checksum
	sum.AddU16(src.Port)
	sum.AddU16(dst.Port)
	// Once for the header, again for the pseudo-header.
	sum.AddU16(length)
	sum.AddU16(length)
	sum.AddAddress(src.Addr)
	sum.AddAddress(dst.Addr)
	sum.AddU8Pair(0, ipv4.ProtocolNumberUDP)
	sum.AddBytes(payload.Bytes())

	binary.BigEndian.PutUint16(b[6:], sum.Sum())

	return b
}

// ParseHeader reads and validates a header from the front of msg. The
// length field must match the datagram; a zero checksum is treated as
// unchecked. Validation failures fail with vnerr.BadChecksum, which the
// demux path turns into a silent drop.
func ParseHeader(
	msg message.Message,
	src, dst ipv4.Address,
) (Header, error) {
	if msg.Len() < HeaderLen {
		return Header{}, vnerr.BadChecksum
	}

	head, err := msg.Slice(0, HeaderLen)
	if err != nil {
		return Header{}, err
	}
	b := head.Bytes()

	h := Header{
		SrcPort:  binary.BigEndian.Uint16(b[0:]),
		DstPort:  binary.BigEndian.Uint16(b[2:]),
		Length:   binary.BigEndian.Uint16(b[4:]),
		Checksum: binary.BigEndian.Uint16(b[6:]),
	}

	if int(h.Length) != msg.Len() {
		return Header{}, vnerr.BadChecksum
	}

	if h.Checksum != 0 {
		payload, err := msg.Slice(HeaderLen, msg.Len())
		if err != nil {
			return Header{}, err
		}

		var sum ipv4.Checksum
		sum.AddU16(h.SrcPort)
		sum.AddU16(h.DstPort)
		sum.AddU16(h.Length)
		sum.AddU16(h.Length)
		sum.AddAddress(src)
		sum.AddAddress(dst)
		sum.AddU8Pair(0, ipv4.ProtocolNumberUDP)
		sum.AddBytes(payload.Bytes())

		if sum.Sum() != h.Checksum {
			return Header{}, vnerr.BadChecksum
		}
	}

	return h, nil
}
