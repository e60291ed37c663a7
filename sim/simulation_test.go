package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Simulation", func() {
	var (
		mockCtrl *gomock.Controller
		sim      *Simulation
		comp     *MockComponent
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sim = NewSimulation()

		comp = NewMockComponent(mockCtrl)
		comp.EXPECT().Name().Return("comp").AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should register a component", func() {
		sim.RegisterComponent(comp)

		Expect(sim.GetComponentByName("comp")).To(Equal(comp))
		Expect(sim.Components()).To(HaveLen(1))
	})

	It("should refuse duplicated names", func() {
		sim.RegisterComponent(comp)

		Expect(func() { sim.RegisterComponent(comp) }).To(Panic())
	})
})
