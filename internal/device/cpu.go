package device

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"go.uber.org/zap"
)

// CPUDevice emulates an accelerator on the host. Every context owns its own
// goroutines, so independent contexts really do run in parallel.
type CPUDevice struct {
	logger *zap.Logger
	epoch  time.Time
	alloc  allocator

	mu       sync.Mutex
	buffers  map[*cpuBuffer]struct{}
	contexts map[*cpuContext]struct{}
	closed   bool
}

type cpuBuffer struct {
	space  Space
	data   []float32
	raw    []byte
	locked bool
}

func (b *cpuBuffer) Space() Space        { return b.space }
func (b *cpuBuffer) Len() int            { return len(b.data) }
func (b *cpuBuffer) Float32s() []float32 { return b.data }

// NewCPUDevice probes the allocator and returns a ready device.
func NewCPUDevice(logger *zap.Logger) *CPUDevice {
	logger = logger.Named("cpu_device")
	d := &CPUDevice{
		logger:   logger,
		epoch:    time.Now(),
		alloc:    probeAllocator(logger),
		buffers:  make(map[*cpuBuffer]struct{}),
		contexts: make(map[*cpuContext]struct{}),
	}
	logger.Info("CPU device initialized",
		zap.Int("compute_units", runtime.NumCPU()),
		zap.Stringer("pinned_strategy", d.alloc.pinned))
	return d
}

// Info returns device information for CPU
func (d *CPUDevice) Info() Info {
	return Info{
		Name:          fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		Backend:       "cpu",
		TotalMemory:   getTotalSystemMemory(),
		ComputeUnits:  runtime.NumCPU(),
		Features:      cpuFeatures(),
		DriverVersion: runtime.Version(),
	}
}

func (d *CPUDevice) Capabilities() Capabilities {
	return Capabilities{
		HostThreads:      true,
		MaxAllocElements: getTotalSystemMemory() / 4 / ElementSize,
		PinnedStrategy:   d.alloc.pinned,
	}
}

func (d *CPUDevice) Allocate(space Space, elements int) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, bencherr.Allocf("device is closed")
	}
	if limit := d.Capabilities().MaxAllocElements; limit > 0 && int64(elements) > limit {
		return nil, bencherr.Allocf("%d elements of %s memory requested, the limit is %d", elements, space, limit)
	}
	buf, err := d.alloc.allocate(space, elements)
	if err != nil {
		return nil, err
	}
	d.buffers[buf] = struct{}{}
	return buf, nil
}

func (d *CPUDevice) Free(buf Buffer) error {
	b, ok := buf.(*cpuBuffer)
	if !ok {
		return fmt.Errorf("buffer %T was not allocated by the CPU device", buf)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, live := d.buffers[b]; !live {
		return fmt.Errorf("double free of %s buffer", b.space)
	}
	delete(d.buffers, b)
	return d.alloc.free(b)
}

func (d *CPUDevice) NewContext(opts ContextOptions) (Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("device is closed")
	}
	c := newCPUContext(d, opts)
	d.contexts[c] = struct{}{}
	return c, nil
}

func (d *CPUDevice) Now() time.Duration {
	return time.Since(d.epoch)
}

// Close waits for and closes every context and releases leaked buffers.
func (d *CPUDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	contexts := make([]*cpuContext, 0, len(d.contexts))
	for c := range d.contexts {
		contexts = append(contexts, c)
	}
	d.mu.Unlock()

	for _, c := range contexts {
		_ = c.Close()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.buffers); n > 0 {
		d.logger.Warn("releasing buffers still allocated at close", zap.Int("count", n))
	}
	for b := range d.buffers {
		_ = d.alloc.free(b)
		delete(d.buffers, b)
	}
	return nil
}

func (d *CPUDevice) forget(c *cpuContext) {
	d.mu.Lock()
	delete(d.contexts, c)
	d.mu.Unlock()
}
