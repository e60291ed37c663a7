// Package ipv4 implements the Internet Protocol layer of the simulated
// stack: addressing, header framing with a header-only checksum, and a
// per-machine routing table mapping destination prefixes to PCI slots.
package ipv4

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is an IPv4 address in host integer form.
type Address uint32

// Distinguished addresses.
const (
	Unspecified Address = 0
	Localhost   Address = 0x7f000001
	Broadcast   Address = 0xffffffff
)

// MakeAddress builds an address from its four dotted-quad octets.
func MakeAddress(a, b, c, d byte) Address {
	return Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// ParseAddress parses a dotted-quad address such as "123.45.67.89".
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("not a dotted-quad address: %q", s)
	}

	var octets [4]byte
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("bad octet %q in address %q", part, s)
		}
		octets[i] = byte(v)
	}

	return MakeAddress(octets[0], octets[1], octets[2], octets[3]), nil
}

// Octets returns the address as its four octets in network order.
func (a Address) Octets() [4]byte {
	return [4]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
}

func (a Address) String() string {
	o := a.Octets()
	return fmt.Sprintf("%d.%d.%d.%d", o[0], o[1], o[2], o[3])
}

// Prefix is a CIDR range: the masked address plus the prefix length.
type Prefix struct {
	Addr Address
	Len  int
}

// ParsePrefix parses CIDR notation such as "10.0.0.0/24". A bare address
// parses as a /32.
func ParsePrefix(s string) (Prefix, error) {
	addrPart, lenPart, found := strings.Cut(s, "/")

	addr, err := ParseAddress(addrPart)
	if err != nil {
		return Prefix{}, err
	}

	length := 32
	if found {
		length, err = strconv.Atoi(lenPart)
		if err != nil || length < 0 || length > 32 {
			return Prefix{}, fmt.Errorf("bad prefix length in %q", s)
		}
	}

	p := Prefix{Addr: addr, Len: length}
	p.Addr &= p.mask()

	return p, nil
}

func (p Prefix) mask() Address {
	if p.Len == 0 {
		return 0
	}

	return Address(^uint32(0) << (32 - p.Len))
}

// Contains reports whether addr falls within the prefix.
func (p Prefix) Contains(addr Address) bool {
	return addr&p.mask() == p.Addr
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr, p.Len)
}

// Endpoint pairs an address with a transport-layer port. UDP and TCP key
// their sessions and listen bindings by endpoints.
type Endpoint struct {
	Addr Address
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}
