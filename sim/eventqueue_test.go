package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

func popOrderIsSorted(queue EventQueue, mockCtrl *gomock.Controller) {
	numEvents := 100
	for i := 0; i < numEvents; i++ {
		event := NewMockEvent(mockCtrl)
		event.EXPECT().
			Time().
			Return(VTimeInSec(rand.Float64() / 1e8)).
			AnyTimes()
		queue.Push(event)
	}

	Expect(queue.Len()).To(Equal(numEvents))

	now := VTimeInSec(-1)
	for i := 0; i < numEvents; i++ {
		Expect(queue.Peek().Time()).To(BeNumerically(">=", now))

		event := queue.Pop()
		Expect(event.Time() >= now).To(BeTrue())
		now = event.Time()
	}
}

var _ = Describe("HeapQueue", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *HeapQueue
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in time order", func() {
		popOrderIsSorted(queue, mockCtrl)
	})
})

var _ = Describe("TailQueue", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *TailQueue
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewTailQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in time order", func() {
		popOrderIsSorted(queue, mockCtrl)
	})

	It("should keep arrival order for same-time events", func() {
		first := NewMockEvent(mockCtrl)
		first.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()
		second := NewMockEvent(mockCtrl)
		second.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()

		queue.Push(first)
		queue.Push(second)

		Expect(queue.Pop()).To(BeIdenticalTo(first))
		Expect(queue.Pop()).To(BeIdenticalTo(second))
	})
})
