package stats

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnetsim/vnetsim/sim"
)

type fakeHookable struct {
	*sim.HookableBase
	name string
}

func newFakeHookable(name string) *fakeHookable {
	return &fakeHookable{HookableBase: &sim.HookableBase{}, name: name}
}

func (f *fakeHookable) Name() string { return f.name }

var _ = Describe("Recorder", func() {
	It("should tally samples per counter and source", func() {
		recorder := NewRecorder(nil)
		domain := newFakeHookable("tap1")
		domain.AcceptHook(recorder)

		Record(domain, FramesSent, 0, nil)
		Record(domain, FramesSent, 1, nil)
		Record(domain, FramesDropped, 2, nil)

		Expect(recorder.Count(FramesSent, "tap1")).To(Equal(int64(2)))
		Expect(recorder.Count(FramesDropped, "tap1")).To(Equal(int64(1)))
		Expect(recorder.Total(FramesSent)).To(Equal(int64(2)))
	})

	It("should be a no-op when nothing is hooked", func() {
		domain := newFakeHookable("tap2")

		Expect(func() { Record(domain, FramesSent, 0, nil) }).NotTo(Panic())
	})

	It("should record RTT samples in order", func() {
		recorder := NewRecorder(nil)
		domain := newFakeHookable("session1")
		domain.AcceptHook(recorder)

		RecordRTT(domain, 1, 0.01)
		RecordRTT(domain, 2, 0.02)

		Expect(recorder.RTTs("session1")).To(Equal([]sim.VTimeInSec{0.01, 0.02}))
	})
})
