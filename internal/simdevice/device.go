// Package simdevice is a deterministic virtual accelerator driven by an akita
// discrete-event engine. Submissions only consume virtual time, so timings
// are exactly reproducible and independent of the host.
package simdevice

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	"gitlab.com/akita/akita/v3/sim"
	"go.uber.org/zap"
)

func init() {
	device.RegisterFactory(config.BackendSim, func(cfg *config.Config, logger *zap.Logger) (device.Device, error) {
		return New(cfg.Device.Sim, logger), nil
	})
}

type scheduler interface {
	Schedule(e sim.Event)
}

type timeTeller interface {
	CurrentTime() sim.VTimeInSec
}

// Device models compute slots and one copy engine per transfer direction.
// Work on different resources overlaps; work on the same resource queues.
type Device struct {
	scheduler
	timeTeller
	run    func() error
	cost   CostModel
	cfg    config.SimConfig
	logger *zap.Logger

	mu          sync.Mutex
	compute     *resource
	copyEngines map[string]*resource
	buffers     map[*simBuffer]struct{}
	deviceBytes int64
	nextID      uint64
	closed      bool
}

// New builds a device on a fresh serial engine.
func New(cfg config.SimConfig, logger *zap.Logger) *Device {
	engine := sim.NewSerialEngine()
	return newDevice(engine, engine, engine.Run, NewLinearCost(cfg), cfg, logger)
}

func newDevice(
	s scheduler,
	t timeTeller,
	run func() error,
	cost CostModel,
	cfg config.SimConfig,
	logger *zap.Logger,
) *Device {
	logger = logger.Named("sim_device")
	d := &Device{
		scheduler:   s,
		timeTeller:  t,
		run:         run,
		cost:        cost,
		cfg:         cfg,
		logger:      logger,
		compute:     &resource{name: "compute", slots: max(cfg.ComputeSlots, 1)},
		copyEngines: make(map[string]*resource),
		buffers:     make(map[*simBuffer]struct{}),
	}
	logger.Info("Sim device initialized",
		zap.Int("compute_slots", d.compute.slots),
		zap.Int("lanes", cfg.Lanes),
		zap.Duration("iteration_time", cfg.IterationTime))
	return d
}

func (d *Device) Info() device.Info {
	return device.Info{
		Name:          fmt.Sprintf("Virtual accelerator (%d slots x %d lanes)", d.compute.slots, d.cfg.Lanes),
		Backend:       config.BackendSim,
		TotalMemory:   d.cfg.MemoryBytes,
		ComputeUnits:  d.compute.slots,
		DriverVersion: "akita/v3",
	}
}

// Capabilities reports no host-thread support: the engine advances only on
// the goroutine that waits.
func (d *Device) Capabilities() device.Capabilities {
	return device.Capabilities{
		HostThreads:      false,
		MaxAllocElements: d.cfg.MemoryBytes / device.ElementSize,
		PinnedStrategy:   device.StrategyHeap,
	}
}

type simBuffer struct {
	space    device.Space
	elements int
}

func (b *simBuffer) Space() device.Space { return b.space }
func (b *simBuffer) Len() int            { return b.elements }

// Allocate reserves capacity only. Accelerator-side spaces share the
// configured memory size.
func (d *Device) Allocate(space device.Space, elements int) (device.Buffer, error) {
	if elements < 0 {
		return nil, bencherr.Configf("%s buffer of %d elements", space, elements)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, bencherr.Allocf("device is closed")
	}
	bytes := int64(elements) * device.ElementSize
	if onDevice(space) {
		if d.deviceBytes+bytes > d.cfg.MemoryBytes {
			return nil, bencherr.Allocf("%d bytes of %s memory requested, %d of %d in use",
				bytes, space, d.deviceBytes, d.cfg.MemoryBytes)
		}
		d.deviceBytes += bytes
	}
	b := &simBuffer{space: space, elements: elements}
	d.buffers[b] = struct{}{}
	return b, nil
}

func (d *Device) Free(buf device.Buffer) error {
	b, ok := buf.(*simBuffer)
	if !ok {
		return fmt.Errorf("buffer %T was not allocated by the sim device", buf)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, live := d.buffers[b]; !live {
		return fmt.Errorf("double free of %s buffer", b.space)
	}
	delete(d.buffers, b)
	if onDevice(b.space) {
		d.deviceBytes -= int64(b.elements) * device.ElementSize
	}
	return nil
}

func onDevice(space device.Space) bool {
	return space == device.Local || space == device.Shared
}

func (d *Device) NewContext(opts device.ContextOptions) (device.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("device is closed")
	}
	return &simContext{dev: d, order: opts.Order, profiling: opts.Profiling}, nil
}

// Now reads the virtual clock.
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return duration(d.CurrentTime())
}

// Close drains outstanding work and releases every buffer.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.run()
	if n := len(d.buffers); n > 0 {
		d.logger.Warn("releasing buffers still allocated at close", zap.Int("count", n))
	}
	d.buffers = nil
	d.deviceBytes = 0
	return err
}

// copyEngine returns the engine serving transfers from src to dst. Host to
// host copies and device to device copies each get their own engine too.
func (d *Device) copyEngine(src, dst device.Space) *resource {
	name := "copy_" + engineClass(src, dst)
	r, ok := d.copyEngines[name]
	if !ok {
		r = &resource{name: name, slots: 1}
		d.copyEngines[name] = r
	}
	return r
}

func engineClass(src, dst device.Space) string {
	switch {
	case !onDevice(src) && onDevice(dst):
		return "upload"
	case onDevice(src) && !onDevice(dst):
		return "download"
	case onDevice(src):
		return "device"
	default:
		return "host"
	}
}

// Handle advances submissions. It runs inside the engine, with d.mu held by
// the goroutine that started the engine.
func (d *Device) Handle(e sim.Event) error {
	switch e := e.(type) {
	case readyEvent:
		d.handleReady(e)
	case completeEvent:
		d.handleComplete(e)
	default:
		panic(fmt.Sprintf("sim device: unknown event type %T", e))
	}
	return nil
}

func (d *Device) handleReady(e readyEvent) {
	r := e.op.res
	if r.busy < r.slots {
		d.start(e.op)
		return
	}
	r.queue = append(r.queue, e.op)
}

func (d *Device) start(o *op) {
	now := d.CurrentTime()
	o.res.busy++
	o.profile.Start = duration(now)
	d.Schedule(completeEvent{time: now + o.cost, handler: d, op: o})
}

func (d *Device) handleComplete(e completeEvent) {
	o := e.op
	r := o.res
	r.busy--
	o.done = true
	o.profile.End = duration(e.time)

	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		d.start(next)
	}
	if o.next != nil {
		d.Schedule(readyEvent{time: e.time, handler: d, op: o.next})
		o.next = nil
	}
	if o.ctx.tail == o {
		o.ctx.tail = nil
	}
}

// resource is a pool of identical execution slots with a FIFO queue.
type resource struct {
	name  string
	slots int
	busy  int
	queue []*op
}
