// Package tcp implements a functionally sufficient Transmission Control
// Protocol: three-way handshake, in-order byte delivery with cumulative
// acknowledgment, retransmission with Van-Jacobson-style adaptive timeouts
// and fast retransmit, slow-start and congestion-avoidance windowing, a
// sliding receive window over out-of-order segment storage, and graceful
// close.
package tcp

import (
	"encoding/binary"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

// HeaderLen is the length of the fixed TCP header. Options are not
// carried.
const HeaderLen = 20

// Header flags.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
)

// Header is a parsed TCP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	Flags    uint8
	Window   uint16
	Checksum uint16
}

// Ctl reports whether any of the given flags are set.
func (h Header) Ctl(flags uint8) bool {
	return h.Flags&flags != 0
}

// EncodeHeader serializes a header for the given payload, including the
// IPv4 pseudo-header in the checksum.
func EncodeHeader(
	h Header,
	src, dst ipv4.Address,
	payload message.Message,
) []byte {
	b := make([]byte, HeaderLen)

	binary.BigEndian.PutUint16(b[0:], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:], h.DstPort)
	binary.BigEndian.PutUint32(b[4:], h.Seq)
	binary.BigEndian.PutUint32(b[8:], h.Ack)
	b[12] = (HeaderLen / 4) << 4
	b[13] = h.Flags
	binary.BigEndian.PutUint16(b[14:], h.Window)

	var sum ipv4.Checksum
	sum.AddBytes(b[:16])
	sum.AddBytes(b[18:])
	sum.AddAddress(src)
	sum.AddAddress(dst)
	sum.AddU8Pair(0, ipv4.ProtocolNumberTCP)
	sum.AddU16(uint16(HeaderLen + payload.Len()))
	sum.AddBytes(payload.Bytes())
	binary.BigEndian.PutUint16(b[16:], sum.Sum())

	return b
}

// ParseHeader reads and validates a header from the front of msg.
// Validation failures fail with vnerr.BadChecksum; the demux path turns
// that into a silent drop.
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

	if int(b[12]>>4)*4 != HeaderLen {
		return Header{}, vnerr.BadChecksum
	}

	payload, err := msg.Slice(HeaderLen, msg.Len())
	if err != nil {
		return Header{}, err
	}

	var sum ipv4.Checksum
	sum.AddBytes(b[:16])
	sum.AddBytes(b[18:])
	sum.AddAddress(src)
	sum.AddAddress(dst)
	sum.AddU8Pair(0, ipv4.ProtocolNumberTCP)
	sum.AddU16(uint16(msg.Len()))
	sum.AddBytes(payload.Bytes())

	h := Header{
		SrcPort:  binary.BigEndian.Uint16(b[0:]),
		DstPort:  binary.BigEndian.Uint16(b[2:]),
		Seq:      binary.BigEndian.Uint32(b[4:]),
		Ack:      binary.BigEndian.Uint32(b[8:]),
		Flags:    b[13],
		Window:   binary.BigEndian.Uint16(b[14:]),
		Checksum: binary.BigEndian.Uint16(b[16:]),
	}

	if sum.Sum() != h.Checksum {
		return Header{}, vnerr.BadChecksum
	}

	return h, nil
}
