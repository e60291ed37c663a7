package machine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/netid"
	"github.com/vnetsim/vnetsim/sim"
)

type stubProtocol struct {
	id      netid.ProtocolID
	machine *Machine
	started int
}

func (p *stubProtocol) ID() netid.ProtocolID { return p.id }
func (p *stubProtocol) Attach(m *Machine)    { p.machine = m }

func (p *stubProtocol) Open(
	_ netid.ProtocolID, _ *ControlBag,
) (Session, error) {
	return nil, nil
}

func (p *stubProtocol) Listen(_ netid.ProtocolID, _ *ControlBag) error {
	return nil
}

func (p *stubProtocol) Demux(
	_ message.Message, _ Session, _ *ControlBag,
) error {
	return nil
}

func (p *stubProtocol) Start(_ *Shutdown) error {
	p.started++
	return nil
}

var _ = Describe("Machine", func() {
	var engine *sim.SerialEngine

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
	})

	It("should register protocols addressable by identifier", func() {
		lower := &stubProtocol{id: "lower"}
		upper := &stubProtocol{id: "upper"}

		m := MakeBuilder().
			WithEngine(engine).
			WithProtocol(lower).
			WithProtocol(upper).
			Build("m0")

		found, ok := m.Protocol("lower")
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(lower))
		Expect(m.MustProtocol("upper")).To(BeIdenticalTo(upper))
		Expect(m.Protocols()).To(HaveLen(2))
	})

	It("should attach each protocol to the machine being built", func() {
		p := &stubProtocol{id: "p"}

		m := MakeBuilder().WithEngine(engine).WithProtocol(p).Build("m0")

		Expect(p.machine).To(BeIdenticalTo(m))
		Expect(m.Engine()).To(BeIdenticalTo(engine))
	})

	It("should panic on duplicate protocol identifiers", func() {
		build := func() {
			MakeBuilder().
				WithEngine(engine).
				WithProtocol(&stubProtocol{id: "dup"}).
				WithProtocol(&stubProtocol{id: "dup"}).
				Build("m0")
		}

		Expect(build).To(Panic())
	})

	It("should start protocols in registration order", func() {
		first := &stubProtocol{id: "first"}
		second := &stubProtocol{id: "second"}
		m := MakeBuilder().
			WithEngine(engine).
			WithProtocol(first).
			WithProtocol(second).
			Build("m0")

		Expect(m.Start(NewShutdown())).To(Succeed())

		Expect(first.started).To(Equal(1))
		Expect(second.started).To(Equal(1))
	})
})

var _ = Describe("Shutdown", func() {
	It("should keep the first trigger's status", func() {
		s := NewShutdown()

		Expect(s.Triggered()).To(BeFalse())

		s.Trigger(0)
		s.Trigger(3)

		Expect(s.Triggered()).To(BeTrue())
		Expect(s.Status()).To(Equal(0))
	})
})
