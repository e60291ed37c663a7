package ipv4

import (
	"encoding/binary"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/vnerr"
)

// HeaderLen is the length of the fixed IPv4 header. Options are not
// carried.
const HeaderLen = 20

const defaultTTL = 64

// Transport-layer protocol numbers carried in the header's protocol field.
const (
	ProtocolNumberTCP uint8 = 6
	ProtocolNumberUDP uint8 = 17
)

// ProtocolNumber maps an upper protocol id to its IP protocol number.
func ProtocolNumber(id netid.ProtocolID) (uint8, bool) {
	switch id {
	case netid.UDP:
		return ProtocolNumberUDP, true
	case netid.TCP:
		return ProtocolNumberTCP, true
	default:
		return 0, false
	}
}

// UpperProtocol maps an IP protocol number back to the upper protocol id.
func UpperProtocol(number uint8) (netid.ProtocolID, bool) {
	switch number {
	case ProtocolNumberUDP:
		return netid.UDP, true
	case ProtocolNumberTCP:
		return netid.TCP, true
	default:
		return "", false
	}
}

// Header is the fixed portion of an IPv4 header.
type Header struct {
	TotalLength uint16
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Src         Address
	Dst         Address
}

// EncodeHeader serializes a header for a payload of the given length,
// computing the checksum over the header bytes only.
func EncodeHeader(src, dst Address, protocol uint8, payloadLen int) []byte {
	b := make([]byte, HeaderLen)

	b[0] = 4<<4 | HeaderLen/4
	binary.BigEndian.PutUint16(b[2:], uint16(HeaderLen+payloadLen))
	b[8] = defaultTTL
	b[9] = protocol
	binary.BigEndian.PutUint32(b[12:], uint32(src))
	binary.BigEndian.PutUint32(b[16:], uint32(dst))

	var sum Checksum
	sum.AddBytes(b[:10])
	sum.AddBytes(b[12:])
	binary.BigEndian.PutUint16(b[10:], sum.Sum())

	return b
}

// ParseHeader reads and validates a header from the front of msg. A wrong
// version, a short or overlong header, or a checksum mismatch fails with
// vnerr.BadChecksum; by policy the caller turns that into a silent drop.
func ParseHeader(msg message.Message) (Header, error) {
	if msg.Len() < HeaderLen {
		return Header{}, vnerr.BadChecksum
	}

	head, err := msg.Slice(0, HeaderLen)
	if err != nil {
		return Header{}, err
	}
	b := head.Bytes()

	if b[0]>>4 != 4 || b[0]&0xf != HeaderLen/4 {
		return Header{}, vnerr.BadChecksum
	}

	var sum Checksum
	sum.AddBytes(b[:10])
	sum.AddBytes(b[12:])
	if sum.Sum() != binary.BigEndian.Uint16(b[10:]) {
		return Header{}, vnerr.BadChecksum
	}

	h := Header{
		TotalLength: binary.BigEndian.Uint16(b[2:]),
		TTL:         b[8],
		Protocol:    b[9],
		Checksum:    binary.BigEndian.Uint16(b[10:]),
		Src:         Address(binary.BigEndian.Uint32(b[12:])),
		Dst:         Address(binary.BigEndian.Uint32(b[16:])),
	}

	if int(h.TotalLength) != msg.Len() {
		return Header{}, vnerr.BadChecksum
	}

	return h, nil
}
