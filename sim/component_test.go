package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ComponentBase", func() {
	var (
		component *ComponentBase
	)

	BeforeEach(func() {
		component = NewComponentBase("host0")
	})

	It("should carry its name", func() {
		Expect(component.Name()).To(Equal("host0"))
	})

	It("should start with no hooks", func() {
		Expect(component.NumHooks()).To(Equal(0))
	})
})
