package machine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var keyCount = NewKey[int]("test_count")
var keyLabel = NewKey[string]("test_label")

var _ = Describe("ControlBag", func() {
	It("should store and retrieve typed values", func() {
		bag := NewControlBag()

		Set(bag, keyCount, 42)
		Set(bag, keyLabel, "flow")

		count, ok := Get(bag, keyCount)
		Expect(ok).To(BeTrue())
		Expect(count).To(Equal(42))

		label, ok := Get(bag, keyLabel)
		Expect(ok).To(BeTrue())
		Expect(label).To(Equal("flow"))
	})

	It("should report absence of unset keys", func() {
		bag := NewControlBag()

		_, ok := Get(bag, keyCount)

		Expect(ok).To(BeFalse())
	})

	It("should overwrite a key on repeated set", func() {
		bag := NewControlBag()

		Set(bag, keyCount, 1)
		Set(bag, keyCount, 2)

		count, _ := Get(bag, keyCount)
		Expect(count).To(Equal(2))
	})

	It("should clone without aliasing", func() {
		bag := NewControlBag()
		Set(bag, keyCount, 7)

		clone := bag.Clone()
		Set(clone, keyCount, 8)

		original, _ := Get(bag, keyCount)
		cloned, _ := Get(clone, keyCount)
		Expect(original).To(Equal(7))
		Expect(cloned).To(Equal(8))
	})
})
