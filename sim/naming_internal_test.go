package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Naming", func() {
	It("should join hierarchy levels with dots", func() {
		Expect(JoinName("net0", "rx")).To(Equal("net0.rx"))
		Expect(JoinName("", "host3")).To(Equal("host3"))
		Expect(JoinName("host3", "send_message")).
			To(Equal("host3.send_message"))
	})

	It("should accept generated names", func() {
		Expect(func() { NameMustBeValid("net0") }).NotTo(Panic())
		Expect(func() { NameMustBeValid("000001:c5h2abc") }).NotTo(Panic())
		Expect(func() { NameMustBeValid("host-0.capture") }).NotTo(Panic())
	})

	It("should reject an empty name", func() {
		Expect(func() { NameMustBeValid("") }).To(Panic())
	})

	It("should reject whitespace", func() {
		Expect(func() { NameMustBeValid("host 0") }).To(Panic())
		Expect(func() { NameMustBeValid("host\t0") }).To(Panic())
	})

	It("should reject empty hierarchy levels", func() {
		Expect(func() { NameMustBeValid("host..rx") }).To(Panic())
		Expect(func() { NameMustBeValid(".host") }).To(Panic())
		Expect(func() { NameMustBeValid("host.") }).To(Panic())
	})
})
