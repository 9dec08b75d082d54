package simdevice

import (
	"fmt"

	"github.com/fxnlabs/concbench/internal/device"
	"gitlab.com/akita/akita/v3/sim"
)

type op struct {
	id      uint64
	ctx     *simContext
	res     *resource
	cost    sim.VTimeInSec
	profile device.Profile
	next    *op
	done    bool
	err     error
}

// simContext is a queue on the virtual device. An in-order context releases
// a submission only after its predecessor completed.
type simContext struct {
	dev       *Device
	order     device.Order
	profiling bool

	tail    *op
	pending []*op
	err     error
	closed  bool
}

func (c *simContext) Launch(out device.Buffer, tripcount int64) device.Event {
	b, ok := out.(*simBuffer)
	if !ok {
		return c.fail(fmt.Errorf("kernel output %T was not allocated by the sim device", out))
	}
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.submit(c.dev.compute, c.dev.cost.KernelCost(b.elements, tripcount))
}

func (c *simContext) Copy(dst, src device.Buffer) device.Event {
	d, ok := dst.(*simBuffer)
	if !ok {
		return c.fail(fmt.Errorf("copy destination %T was not allocated by the sim device", dst))
	}
	s, ok := src.(*simBuffer)
	if !ok {
		return c.fail(fmt.Errorf("copy source %T was not allocated by the sim device", src))
	}
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	elements := min(d.elements, s.elements)
	return c.submit(c.dev.copyEngine(s.space, d.space), c.dev.cost.CopyCost(s.space, d.space, elements))
}

// submit must be called with dev.mu held.
func (c *simContext) submit(r *resource, cost sim.VTimeInSec) device.Event {
	d := c.dev
	d.nextID++
	now := d.CurrentTime()
	o := &op{id: d.nextID, ctx: c, res: r, cost: cost}
	o.profile.Submit = duration(now)

	if c.order == device.InOrder && c.tail != nil && !c.tail.done {
		c.tail.next = o
	} else {
		d.Schedule(readyEvent{time: now, handler: d, op: o})
	}
	c.tail = o
	c.pending = append(c.pending, o)
	return &simEvent{ctx: c, op: o}
}

func (c *simContext) fail(err error) device.Event {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	return &simEvent{ctx: c, op: &op{ctx: c, done: true, err: err}}
}

// Wait runs the engine until the context drained. Other contexts progress
// along with it.
func (c *simContext) Wait() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.drain()
}

func (c *simContext) drain() error {
	for _, o := range c.pending {
		if o.done {
			continue
		}
		if err := c.dev.run(); err != nil {
			return err
		}
		break
	}
	for _, o := range c.pending {
		if !o.done {
			return fmt.Errorf("submission %d on %s never completed", o.id, o.res.name)
		}
	}
	c.pending = c.pending[:0]
	err := c.err
	c.err = nil
	return err
}

func (c *simContext) Close() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.drain()
}

type simEvent struct {
	ctx *simContext
	op  *op
}

func (e *simEvent) Wait() error {
	d := e.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !e.op.done {
		if err := d.run(); err != nil {
			return err
		}
	}
	if !e.op.done {
		return fmt.Errorf("submission %d on %s never completed", e.op.id, e.op.res.name)
	}
	return e.op.err
}

func (e *simEvent) Profile() (device.Profile, bool) {
	d := e.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !e.ctx.profiling || !e.op.done || e.op.res == nil {
		return device.Profile{}, false
	}
	return e.op.profile, true
}
