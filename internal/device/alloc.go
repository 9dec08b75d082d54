package device

import (
	"fmt"
	"unsafe"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"go.uber.org/zap"
)

// AllocatorStrategy is how host-emulated memory of a space is obtained.
type AllocatorStrategy int

const (
	// StrategyHeap allocates from the Go heap.
	StrategyHeap AllocatorStrategy = iota
	// StrategyLockedMapping maps anonymous pages and locks them in RAM.
	StrategyLockedMapping
	// StrategyMapping maps anonymous pages without locking them, used when
	// the process may not lock memory.
	StrategyMapping
)

func (s AllocatorStrategy) String() string {
	switch s {
	case StrategyHeap:
		return "heap"
	case StrategyLockedMapping:
		return "locked-mapping"
	case StrategyMapping:
		return "mapping"
	}
	return fmt.Sprintf("AllocatorStrategy(%d)", int(s))
}

// allocator picks a strategy per space. The pinned strategy is probed once
// when the device is created.
type allocator struct {
	pinned AllocatorStrategy
	logger *zap.Logger
}

func probeAllocator(logger *zap.Logger) allocator {
	a := allocator{pinned: StrategyHeap, logger: logger}
	if !canMapPages {
		logger.Info("anonymous mappings unsupported, pinned memory uses the heap")
		return a
	}
	page, err := mapPages(pageProbeBytes)
	if err != nil {
		logger.Warn("page mapping probe failed, pinned memory uses the heap", zap.Error(err))
		return a
	}
	defer unmapPages(page)
	if err := lockPages(page); err != nil {
		logger.Warn("memory locking not permitted, pinned memory will not be locked", zap.Error(err))
		a.pinned = StrategyMapping
		return a
	}
	_ = unlockPages(page)
	a.pinned = StrategyLockedMapping
	return a
}

const pageProbeBytes = 4096

func (a allocator) strategyFor(space Space) AllocatorStrategy {
	switch space {
	case Pinned:
		return a.pinned
	case HostHeap, Local, Shared:
		return StrategyHeap
	}
	panic(fmt.Sprintf("device: invalid memory space %d", int(space)))
}

func (a allocator) allocate(space Space, elements int) (*cpuBuffer, error) {
	if elements < 0 {
		return nil, bencherr.Configf("%s buffer of %d elements", space, elements)
	}
	if elements == 0 {
		return &cpuBuffer{space: space, data: []float32{}}, nil
	}
	switch strategy := a.strategyFor(space); strategy {
	case StrategyHeap:
		data, err := heapFloat32s(elements)
		if err != nil {
			return nil, err
		}
		return &cpuBuffer{space: space, data: data}, nil
	case StrategyLockedMapping, StrategyMapping:
		raw, err := mapPages(elements * ElementSize)
		if err != nil {
			return nil, bencherr.Allocf("mapping %d bytes of %s memory: %v", elements*ElementSize, space, err)
		}
		buf := &cpuBuffer{
			space: space,
			data:  unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(raw))), elements),
			raw:   raw,
		}
		if strategy == StrategyLockedMapping {
			if err := lockPages(raw); err != nil {
				a.logger.Warn("could not lock buffer, continuing unpinned",
					zap.Stringer("space", space), zap.Int("elements", elements), zap.Error(err))
			} else {
				buf.locked = true
			}
		}
		return buf, nil
	default:
		panic(fmt.Sprintf("device: invalid allocator strategy %d", int(strategy)))
	}
}

func (a allocator) free(b *cpuBuffer) error {
	if b.raw == nil {
		b.data = nil
		return nil
	}
	if b.locked {
		_ = unlockPages(b.raw)
	}
	err := unmapPages(b.raw)
	b.raw, b.data = nil, nil
	return err
}

// heapFloat32s turns the makeslice length panic into an allocation error.
// Running out of memory is fatal to the runtime, so callers bound the request
// by Capabilities.MaxAllocElements first.
func heapFloat32s(elements int) (data []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bencherr.Allocf("heap allocation of %d elements: %v", elements, r)
		}
	}()
	return make([]float32, elements), nil
}
