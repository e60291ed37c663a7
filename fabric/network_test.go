package fabric

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/vnerr"
)

type arrival struct {
	frame Frame
	time  sim.VTimeInSec
}

func collect(engine sim.Engine, tap *Tap) *[]arrival {
	arrivals := &[]arrival{}
	tap.OnReceive(func(f Frame) {
		*arrivals = append(*arrivals, arrival{frame: f, time: engine.CurrentTime()})
	})

	return arrivals
}

func payload(n int) message.Message {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}

	return message.New(b)
}

var _ = Describe("Network", func() {
	var engine *sim.SerialEngine

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
	})

	It("should deliver a unicast frame after latency plus transmission delay", func() {
		network := NewNetwork("net", engine, Config{
			MTU:                      1500,
			Latency:                  0.001,
			ThroughputBytesPerSecond: 1000,
		})
		sender := network.Attach()
		receiver := network.Attach()
		arrivals := collect(engine, receiver)

		sent := payload(10)
		Expect(sender.Send(Frame{
			Dst:     receiver.MAC(),
			Upper:   "test",
			Payload: sent,
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(*arrivals).To(HaveLen(1))
		Expect((*arrivals)[0].frame.Payload.Bytes()).To(Equal(sent.Bytes()))
		Expect((*arrivals)[0].frame.Src).To(Equal(sender.MAC()))
		Expect(float64((*arrivals)[0].time)).
			To(BeNumerically("~", 0.001+10.0/1000.0, 1e-9))
	})

	It("should preserve per-pair send order", func() {
		network := NewNetwork("net", engine, Config{
			MTU:     1500,
			Latency: 0.001,
		})
		sender := network.Attach()
		receiver := network.Attach()
		arrivals := collect(engine, receiver)

		const n = 100
		for i := 0; i < n; i++ {
			Expect(sender.Send(Frame{
				Dst:     receiver.MAC(),
				Upper:   "test",
				Payload: message.New([]byte{byte(i)}),
			})).To(Succeed())
		}
		Expect(engine.Run()).To(Succeed())

		Expect(*arrivals).To(HaveLen(n))
		for i, a := range *arrivals {
			Expect(a.frame.Payload.Bytes()).To(Equal([]byte{byte(i)}))
		}
	})

	It("should fail a send whose payload exceeds the MTU", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})
		sender := network.Attach()
		receiver := network.Attach()
		arrivals := collect(engine, receiver)

		err := sender.Send(Frame{
			Dst:     receiver.MAC(),
			Upper:   "test",
			Payload: payload(1600),
		})

		Expect(err).To(MatchError(vnerr.FrameTooLarge))
		Expect(engine.Run()).To(Succeed())
		Expect(*arrivals).To(BeEmpty())
	})

	It("should drop silently when the destination MAC is unknown", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})
		sender := network.Attach()

		Expect(sender.Send(Frame{
			Dst:     MAC("nobody"),
			Upper:   "test",
			Payload: payload(1),
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())
	})

	It("should deliver a broadcast to every tap except the sender", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})
		sender := network.Attach()
		senderArrivals := collect(engine, sender)

		receiverArrivals := make([]*[]arrival, 5)
		for i := range receiverArrivals {
			receiverArrivals[i] = collect(engine, network.Attach())
		}

		Expect(sender.Send(Frame{
			Broadcast: true,
			Upper:     "test",
			Payload:   payload(8),
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(*senderArrivals).To(BeEmpty())
		for _, arrivals := range receiverArrivals {
			Expect(*arrivals).To(HaveLen(1))
		}
	})

	It("should deliver multicast only to subscribed taps", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})
		sender := network.Attach()
		member := network.Attach()
		outsider := network.Attach()
		memberArrivals := collect(engine, member)
		outsiderArrivals := collect(engine, outsider)

		group := NewGroupMAC()
		member.Join(group)

		Expect(sender.Send(Frame{
			Dst:     group,
			Upper:   "test",
			Payload: payload(4),
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(*memberArrivals).To(HaveLen(1))
		Expect(*outsiderArrivals).To(BeEmpty())
	})

	It("should stop delivering to a tap that left the group", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})
		sender := network.Attach()
		member := network.Attach()
		arrivals := collect(engine, member)

		group := NewGroupMAC()
		member.Join(group)
		member.Leave(group)

		Expect(sender.Send(Frame{
			Dst:     group,
			Upper:   "test",
			Payload: payload(4),
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(*arrivals).To(BeEmpty())
	})

	It("should drop roughly the configured fraction of frames", func() {
		network := NewNetwork("net", engine, Config{
			MTU:             1500,
			LossProbability: 0.5,
		})
		sender := network.Attach()
		receiver := network.Attach()
		arrivals := collect(engine, receiver)

		const n = 2000
		for i := 0; i < n; i++ {
			Expect(sender.Send(Frame{
				Dst:     receiver.MAC(),
				Upper:   "test",
				Payload: payload(1),
			})).To(Succeed())
		}
		Expect(engine.Run()).To(Succeed())

		// 5 sigma around the binomial mean.
		Expect(len(*arrivals)).To(BeNumerically("~", n/2, 120))
	})

	It("should mark every delivery corrupt when corruption is certain", func() {
		network := NewNetwork("net", engine, Config{
			MTU:                   1500,
			CorruptionProbability: 1.0,
		})
		sender := network.Attach()
		receiver := network.Attach()
		arrivals := collect(engine, receiver)

		Expect(sender.Send(Frame{
			Dst:     receiver.MAC(),
			Upper:   "test",
			Payload: payload(16),
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(*arrivals).To(HaveLen(1))
		Expect((*arrivals)[0].frame.Corrupted).To(BeTrue())
	})

	It("should issue distinct MACs on attach", func() {
		network := NewNetwork("net", engine, Config{MTU: 1500})

		a := network.Attach()
		b := network.Attach()

		Expect(a.MAC()).NotTo(Equal(b.MAC()))
		Expect(network.TapCount()).To(Equal(2))
	})
})
