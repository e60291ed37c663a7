package udp

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/vnerr"
)

var _ = Describe("Header", func() {
	var (
		src = ipv4.Endpoint{Addr: ipv4.MakeAddress(10, 0, 0, 1), Port: 4000}
		dst = ipv4.Endpoint{Addr: ipv4.MakeAddress(10, 0, 0, 2), Port: 0xbeef}
	)

	datagram := func(payload []byte) message.Message {
		body := message.New(payload)
		return body.Prepend(EncodeHeader(src, dst, body))
	}

	It("should round-trip through encode and parse", func() {
		msg := datagram([]byte("Hello this is an awesome test message!"))

		h, err := ParseHeader(msg, src.Addr, dst.Addr)

		Expect(err).NotTo(HaveOccurred())
		Expect(h.SrcPort).To(Equal(uint16(4000)))
		Expect(h.DstPort).To(Equal(uint16(0xbeef)))
		Expect(int(h.Length)).To(Equal(msg.Len()))
	})

	It("should reject a payload that was tampered with", func() {
		payload := []byte("payload")
		msg := datagram(payload)

		tampered := message.New([]byte("Xayload")).
			Prepend(msg.Bytes()[:HeaderLen])

		_, err := ParseHeader(tampered, src.Addr, dst.Addr)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should reject a length mismatch", func() {
		msg := datagram([]byte("payload"))
		truncated, sliceErr := msg.Slice(0, msg.Len()-1)
		Expect(sliceErr).NotTo(HaveOccurred())

		_, err := ParseHeader(truncated, src.Addr, dst.Addr)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})

	It("should skip validation when the checksum is zero", func() {
		msg := datagram([]byte("data"))
		raw := msg.Bytes()
		binary.BigEndian.PutUint16(raw[6:], 0)

		h, err := ParseHeader(message.New(raw), src.Addr, dst.Addr)

		Expect(err).NotTo(HaveOccurred())
		Expect(h.Checksum).To(Equal(uint16(0)))
	})

	It("should reject a short datagram", func() {
		_, err := ParseHeader(message.New([]byte{1, 2, 3}), src.Addr, dst.Addr)

		Expect(err).To(MatchError(vnerr.BadChecksum))
	})
})
