package simdevice

import (
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gitlab.com/akita/akita/v3/sim"
	"go.uber.org/zap"
)

func testSimConfig() config.SimConfig {
	return config.SimConfig{
		ComputeSlots:         1,
		Lanes:                100,
		IterationTime:        time.Microsecond,
		DefaultBandwidthGBps: 1,
		BandwidthGBps:        map[string]float64{"HD": 2},
		MemoryBytes:          1 << 20,
	}
}

var _ = Describe("LinearCost", func() {
	var cost *LinearCost

	BeforeEach(func() {
		cost = NewLinearCost(testSimConfig())
	})

	It("should charge one wave per lane group", func() {
		Expect(duration(cost.KernelCost(100, 10))).To(Equal(10 * time.Microsecond))
		Expect(duration(cost.KernelCost(101, 10))).To(Equal(20 * time.Microsecond))
		Expect(duration(cost.KernelCost(1, 0))).To(Equal(time.Duration(0)))
	})

	It("should be linear in the tripcount", func() {
		one := cost.KernelCost(300, 1)
		Expect(float64(cost.KernelCost(300, 7))).To(BeNumerically("~", 7*float64(one), 1e-15))
	})

	It("should use the bandwidth of the transfer direction", func() {
		Expect(duration(cost.CopyCost(device.HostHeap, device.Local, 250))).To(Equal(time.Microsecond))
		Expect(duration(cost.CopyCost(device.Pinned, device.Local, 250))).To(Equal(500 * time.Nanosecond))
		Expect(cost.BytesPerSecond(device.Local, device.Pinned)).To(Equal(1e9))
	})
})

var _ = Describe("Device", func() {
	var (
		dev *Device
		cfg config.SimConfig
	)

	BeforeEach(func() {
		cfg = testSimConfig()
	})

	JustBeforeEach(func() {
		dev = New(cfg, zap.NewNop())
	})

	AfterEach(func() {
		Expect(dev.Close()).To(Succeed())
	})

	alloc := func(space device.Space, n int) device.Buffer {
		b, err := dev.Allocate(space, n)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	newContext := func(order device.Order) device.Context {
		ctx, err := dev.NewContext(device.ContextOptions{Order: order, Profiling: true})
		Expect(err).NotTo(HaveOccurred())
		return ctx
	}

	It("should not advance time without work", func() {
		Expect(dev.Now()).To(Equal(time.Duration(0)))
		Expect(dev.Capabilities().HostThreads).To(BeFalse())
		Expect(dev.Info().Backend).To(Equal(config.BackendSim))
	})

	It("should serialize an in-order context", func() {
		out := alloc(device.Local, 100)
		ctx := newContext(device.InOrder)
		first := ctx.Launch(out, 10)
		second := ctx.Launch(out, 10)
		Expect(ctx.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(20 * time.Microsecond))

		p1, ok := first.Profile()
		Expect(ok).To(BeTrue())
		p2, ok := second.Profile()
		Expect(ok).To(BeTrue())
		Expect(p2.Start).To(Equal(p1.End))
		Expect(p2.Elapsed()).To(Equal(10 * time.Microsecond))
	})

	It("should queue kernels when compute slots are exhausted", func() {
		out := alloc(device.Local, 100)
		ctx := newContext(device.OutOfOrder)
		ctx.Launch(out, 10)
		ctx.Launch(out, 10)
		Expect(ctx.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(20 * time.Microsecond))
	})

	Context("with two compute slots", func() {
		BeforeEach(func() {
			cfg.ComputeSlots = 2
		})

		It("should overlap kernels from different contexts", func() {
			out := alloc(device.Local, 100)
			a, b := newContext(device.InOrder), newContext(device.InOrder)
			a.Launch(out, 10)
			b.Launch(out, 10)
			Expect(a.Wait()).To(Succeed())
			Expect(b.Wait()).To(Succeed())
			Expect(dev.Now()).To(Equal(10 * time.Microsecond))
		})
	})

	It("should overlap copies with kernels", func() {
		out := alloc(device.Local, 100)
		src, dst := alloc(device.HostHeap, 250), alloc(device.Local, 250)
		a, b := newContext(device.InOrder), newContext(device.InOrder)
		a.Launch(out, 10)
		b.Copy(dst, src)
		Expect(a.Wait()).To(Succeed())
		Expect(b.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(10 * time.Microsecond))
	})

	It("should share one copy engine per direction", func() {
		host, local := alloc(device.HostHeap, 250), alloc(device.Local, 250)
		a, b := newContext(device.OutOfOrder), newContext(device.OutOfOrder)

		a.Copy(local, host)
		b.Copy(local, host)
		Expect(a.Wait()).To(Succeed())
		Expect(b.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(2 * time.Microsecond))

		a.Copy(local, host)
		b.Copy(host, local)
		Expect(a.Wait()).To(Succeed())
		Expect(b.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(3 * time.Microsecond))
	})

	It("should bound accelerator memory", func() {
		big := alloc(device.Local, 1<<18)
		_, err := dev.Allocate(device.Shared, 1)
		Expect(err).To(MatchError(bencherr.ErrAllocation))

		alloc(device.HostHeap, 1<<18)
		Expect(dev.Free(big)).To(Succeed())
		alloc(device.Shared, 1)
		Expect(dev.Free(big)).NotTo(Succeed())
	})

	It("should run empty commands without advancing time", func() {
		empty := alloc(device.Local, 0)
		Expect(empty.Len()).To(BeZero())
		ctx := newContext(device.InOrder)
		ctx.Launch(empty, 10)
		ctx.Copy(empty, alloc(device.HostHeap, 0))
		Expect(ctx.Wait()).To(Succeed())
		Expect(dev.Now()).To(Equal(time.Duration(0)))

		_, err := dev.Allocate(device.Local, -1)
		Expect(err).To(MatchError(bencherr.ErrConfiguration))
	})

	It("should report foreign buffers through Wait", func() {
		ctx := newContext(device.InOrder)
		ev := ctx.Launch(foreignBuffer{}, 1)
		Expect(ev.Wait()).To(HaveOccurred())
		_, ok := ev.Profile()
		Expect(ok).To(BeFalse())
		Expect(ctx.Wait()).To(HaveOccurred())
		Expect(ctx.Wait()).To(Succeed())
	})

	It("should be reachable through the device manager", func() {
		c := config.Default()
		c.Device.Backend = config.BackendSim
		d, err := device.Open(c, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&Device{}))
		Expect(device.Reset()).To(Succeed())
	})
})

var _ = Describe("Device scheduling", func() {
	var (
		mockCtrl       *gomock.Controller
		eventScheduler *MockEventScheduler
		timeTeller     *MockTimeTeller
		cost           *MockCostModel
		dev            *Device
		runs           int
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		eventScheduler = NewMockEventScheduler(mockCtrl)
		timeTeller = NewMockTimeTeller(mockCtrl)
		cost = NewMockCostModel(mockCtrl)
		runs = 0
		dev = newDevice(eventScheduler, timeTeller, func() error {
			runs++
			return nil
		}, cost, testSimConfig(), zap.NewNop())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule a ready event at submission time", func() {
		out, err := dev.Allocate(device.Local, 100)
		Expect(err).NotTo(HaveOccurred())
		ctx, err := dev.NewContext(device.ContextOptions{Order: device.OutOfOrder})
		Expect(err).NotTo(HaveOccurred())

		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(2.5)).AnyTimes()
		cost.EXPECT().KernelCost(100, int64(4)).Return(sim.VTimeInSec(1))
		var scheduled sim.Event
		eventScheduler.EXPECT().
			Schedule(gomock.AssignableToTypeOf(readyEvent{})).
			Do(func(e sim.Event) { scheduled = e })

		ctx.Launch(out, 4)
		Expect(scheduled.Time()).To(Equal(sim.VTimeInSec(2.5)))
		Expect(scheduled.Handler()).To(BeIdenticalTo(dev))
		Expect(scheduled.IsSecondary()).To(BeFalse())
	})

	It("should start an op on a free slot", func() {
		o := &op{res: dev.compute, cost: 3, ctx: &simContext{dev: dev}}
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(1))
		eventScheduler.EXPECT().Schedule(completeEvent{time: 4, handler: dev, op: o})

		Expect(dev.Handle(readyEvent{time: 1, handler: dev, op: o})).To(Succeed())
		Expect(dev.compute.busy).To(Equal(1))
	})

	It("should queue an op on a busy resource and start it on completion", func() {
		c := &simContext{dev: dev}
		running := &op{res: dev.compute, cost: 1, ctx: c}
		waiting := &op{res: dev.compute, cost: 2, ctx: c}
		dev.compute.busy = dev.compute.slots

		Expect(dev.Handle(readyEvent{time: 0, handler: dev, op: waiting})).To(Succeed())
		Expect(dev.compute.queue).To(ConsistOf(waiting))

		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(1))
		eventScheduler.EXPECT().Schedule(completeEvent{time: 3, handler: dev, op: waiting})
		Expect(dev.Handle(completeEvent{time: 1, handler: dev, op: running})).To(Succeed())
		Expect(running.done).To(BeTrue())
		Expect(dev.compute.queue).To(BeEmpty())
	})

	It("should release the in-order successor on completion", func() {
		c := &simContext{dev: dev, order: device.InOrder}
		successor := &op{res: dev.compute, ctx: c}
		first := &op{res: dev.compute, ctx: c, next: successor}
		dev.compute.busy = 1
		c.tail = successor

		eventScheduler.EXPECT().Schedule(readyEvent{time: 5, handler: dev, op: successor})
		Expect(dev.Handle(completeEvent{time: 5, handler: dev, op: first})).To(Succeed())
		Expect(first.next).To(BeNil())
		Expect(c.tail).To(BeIdenticalTo(successor))
	})

	It("should run the engine only while work is pending", func() {
		ctx, err := dev.NewContext(device.ContextOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Wait()).To(Succeed())
		Expect(runs).To(Equal(0))
	})
})

type foreignBuffer struct{}

func (foreignBuffer) Space() device.Space { return device.Local }
func (foreignBuffer) Len() int            { return 1 }
