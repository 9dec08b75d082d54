package device

import (
	"fmt"
	"runtime"
	"sync"
)

// cpuContext executes in-order submissions on one worker goroutine and
// out-of-order submissions on a goroutine each.
type cpuContext struct {
	dev       *CPUDevice
	order     Order
	profiling bool

	// queue is the unbounded FIFO of an in-order context, so submission
	// never blocks however long the command list.
	queueMu   sync.Mutex
	queued    *sync.Cond
	queue     []func()
	shutdown  bool
	pending   sync.WaitGroup
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

func newCPUContext(dev *CPUDevice, opts ContextOptions) *cpuContext {
	c := &cpuContext{
		dev:       dev,
		order:     opts.Order,
		profiling: opts.Profiling,
	}
	if c.order == InOrder {
		c.queued = sync.NewCond(&c.queueMu)
		go c.worker()
	}
	return c
}

func (c *cpuContext) worker() {
	for {
		c.queueMu.Lock()
		for len(c.queue) == 0 && !c.shutdown {
			c.queued.Wait()
		}
		if len(c.queue) == 0 {
			c.queueMu.Unlock()
			return
		}
		task := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.queueMu.Unlock()
		task()
	}
}

func (c *cpuContext) enqueue(task func()) {
	c.queueMu.Lock()
	c.queue = append(c.queue, task)
	c.queueMu.Unlock()
	c.queued.Signal()
}

func (c *cpuContext) Launch(out Buffer, tripcount int64) Event {
	return c.submit(func() error {
		b, ok := out.(*cpuBuffer)
		if !ok {
			return fmt.Errorf("kernel output %T was not allocated by the CPU device", out)
		}
		runKernel(b.data, tripcount)
		return nil
	})
}

func (c *cpuContext) Copy(dst, src Buffer) Event {
	return c.submit(func() error {
		d, ok := dst.(*cpuBuffer)
		if !ok {
			return fmt.Errorf("copy destination %T was not allocated by the CPU device", dst)
		}
		s, ok := src.(*cpuBuffer)
		if !ok {
			return fmt.Errorf("copy source %T was not allocated by the CPU device", src)
		}
		copy(d.data, s.data)
		return nil
	})
}

func (c *cpuContext) submit(run func() error) Event {
	ev := &cpuEvent{done: make(chan struct{}), profiling: c.profiling}
	if c.profiling {
		ev.profile.Submit = c.dev.Now()
	}
	c.pending.Add(1)
	task := func() {
		defer c.pending.Done()
		if c.profiling {
			ev.profile.Start = c.dev.Now()
		}
		err := run()
		if c.profiling {
			ev.profile.End = c.dev.Now()
		}
		if err != nil {
			c.errMu.Lock()
			if c.err == nil {
				c.err = err
			}
			c.errMu.Unlock()
		}
		ev.err = err
		close(ev.done)
	}
	switch c.order {
	case InOrder:
		c.enqueue(task)
	case OutOfOrder:
		go task()
	default:
		panic(fmt.Sprintf("device: invalid context order %d", int(c.order)))
	}
	return ev
}

// Wait blocks until all submitted work is done and reports the first
// failure since the previous Wait.
func (c *cpuContext) Wait() error {
	c.pending.Wait()
	c.errMu.Lock()
	defer c.errMu.Unlock()
	err := c.err
	c.err = nil
	return err
}

func (c *cpuContext) Close() error {
	err := c.Wait()
	c.closeOnce.Do(func() {
		if c.queued != nil {
			c.queueMu.Lock()
			c.shutdown = true
			c.queueMu.Unlock()
			c.queued.Broadcast()
		}
		c.dev.forget(c)
	})
	return err
}

type cpuEvent struct {
	done      chan struct{}
	err       error
	profiling bool
	profile   Profile
}

func (e *cpuEvent) Wait() error {
	<-e.done
	return e.err
}

func (e *cpuEvent) Profile() (Profile, bool) {
	select {
	case <-e.done:
		return e.profile, e.profiling
	default:
		return Profile{}, false
	}
}

// runKernel fills out with BusyWait results, spreading work items across
// the host CPUs the way a kernel grid spreads across compute units.
func runKernel(out []float32, tripcount int64) {
	n := len(out)
	if n == 0 {
		return
	}
	workers := runtime.NumCPU()
	if n < workers {
		workers = n
	}
	if workers == 1 {
		for j := range out {
			out[j] = BusyWait(tripcount, float32(j))
		}
		return
	}
	perWorker := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += perWorker {
		end := min(start+perWorker, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				out[j] = BusyWait(tripcount, float32(j))
			}
		}(start, end)
	}
	wg.Wait()
}

