package ipv4

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/vnerr"
)

var _ = Describe("Header", func() {
	var (
		src = MakeAddress(10, 0, 0, 1)
		dst = MakeAddress(10, 0, 0, 2)
	)

	frame := func(payload []byte) message.Message {
		header := EncodeHeader(src, dst, ProtocolNumberUDP, len(payload))
		return message.New(payload).Prepend(header)
	}

	It("should round-trip through encode and parse", func() {
		msg := frame([]byte("some payload"))

		h, err := ParseHeader(msg)

		Expect(err).NotTo(HaveOccurred())
		Expect(h.Src).To(Equal(src))
		Expect(h.Dst).To(Equal(dst))
		Expect(h.Protocol).To(Equal(ProtocolNumberUDP))
		Expect(int(h.TotalLength)).To(Equal(msg.Len()))
	})

	It("should reject a corrupted checksum", func() {
		header := EncodeHeader(src, dst, ProtocolNumberUDP, 4)
		header[10] ^= 0xff
		msg := message.New([]byte("abcd")).Prepend(header)

		_, err := ParseHeader(msg)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should reject a wrong version", func() {
		header := EncodeHeader(src, dst, ProtocolNumberUDP, 0)
		header[0] = 6<<4 | 5
		msg := message.Message{}.Prepend(header)

		_, err := ParseHeader(msg)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should reject a truncated header", func() {
		_, err := ParseHeader(message.New([]byte{4, 5}))

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should reject a length mismatch", func() {
		msg := frame([]byte("full payload")) // then truncate
		short, sliceErr := msg.Slice(0, msg.Len()-3)
		Expect(sliceErr).NotTo(HaveOccurred())

		_, err := ParseHeader(short)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should map protocol numbers both ways", func() {
		n, ok := ProtocolNumber("UDP")
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(ProtocolNumberUDP))

		id, ok := UpperProtocol(ProtocolNumberTCP)
		Expect(ok).To(BeTrue())
		Expect(string(id)).To(Equal("TCP"))

		_, ok = UpperProtocol(99)
		Expect(ok).To(BeFalse())
	})
})
