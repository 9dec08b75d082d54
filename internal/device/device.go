// Package device abstracts the accelerator the benchmark drives: memory
// allocation per memory space, asynchronous execution contexts, and the
// clock used for timing.
package device

import (
	"fmt"
	"time"
)

// ElementSize is the width in bytes of one buffer element (float32).
const ElementSize = 4

// Space is the memory space a buffer lives in.
type Space int

const (
	// HostHeap is ordinary pageable host memory (M).
	HostHeap Space = iota
	// Pinned is page-locked host memory (H).
	Pinned
	// Local is memory owned by the accelerator (D).
	Local
	// Shared is unified memory visible to host and accelerator (S).
	Shared
)

// Spaces lists every memory space in canonical order.
var Spaces = []Space{HostHeap, Pinned, Local, Shared}

// Letter returns the one-letter token used on the command line.
func (s Space) Letter() byte {
	switch s {
	case HostHeap:
		return 'M'
	case Pinned:
		return 'H'
	case Local:
		return 'D'
	case Shared:
		return 'S'
	}
	panic(fmt.Sprintf("device: invalid memory space %d", int(s)))
}

func (s Space) String() string {
	switch s {
	case HostHeap:
		return "host-heap"
	case Pinned:
		return "pinned-host"
	case Local:
		return "device"
	case Shared:
		return "shared"
	}
	return fmt.Sprintf("Space(%d)", int(s))
}

// ParseSpace maps a command-line letter back to its space.
func ParseSpace(letter byte) (Space, bool) {
	for _, s := range Spaces {
		if s.Letter() == letter {
			return s, true
		}
	}
	return 0, false
}

// Order selects how a context executes its submissions.
type Order int

const (
	// InOrder contexts complete submissions in submission order.
	InOrder Order = iota
	// OutOfOrder contexts may run submissions concurrently with each other.
	OutOfOrder
)

func (o Order) String() string {
	switch o {
	case InOrder:
		return "in-order"
	case OutOfOrder:
		return "out-of-order"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// ContextOptions configures a new execution context.
type ContextOptions struct {
	Order     Order
	Profiling bool
}

// Info describes the device for reports.
type Info struct {
	Name          string   `json:"name" yaml:"name"`
	Backend       string   `json:"backend" yaml:"backend"`
	TotalMemory   int64    `json:"totalMemory" yaml:"totalMemory"` // in bytes
	ComputeUnits  int      `json:"computeUnits" yaml:"computeUnits"`
	Features      []string `json:"features,omitempty" yaml:"features,omitempty"`
	DriverVersion string   `json:"driverVersion" yaml:"driverVersion"`
}

// Capabilities is what the harness probes once before planning a run.
type Capabilities struct {
	// HostThreads reports whether several host goroutines may submit and
	// wait on distinct contexts at the same time.
	HostThreads bool
	// MaxAllocElements bounds a single buffer.
	MaxAllocElements int64
	// PinnedStrategy names the allocator chosen for pinned host memory.
	PinnedStrategy AllocatorStrategy
}

// Buffer is an allocation in one memory space.
type Buffer interface {
	Space() Space
	Len() int
}

// HostBuffer is a buffer whose contents the host can read and write.
type HostBuffer interface {
	Buffer
	Float32s() []float32
}

// Profile holds device-side timestamps of one submission, on the device clock.
type Profile struct {
	Submit time.Duration
	Start  time.Duration
	End    time.Duration
}

// Elapsed is the execution time between start and end.
func (p Profile) Elapsed() time.Duration {
	return p.End - p.Start
}

// Event tracks one submission.
type Event interface {
	// Wait blocks until the submission has completed.
	Wait() error
	// Profile returns device timestamps when the context was created with
	// profiling enabled and the submission has completed.
	Profile() (Profile, bool)
}

// Context is an independent asynchronous submission queue. Launch and Copy
// never block on the work they submit.
type Context interface {
	// Launch runs the synthetic kernel over every element of out, each
	// element performing tripcount rounds of 64 multiply-adds.
	Launch(out Buffer, tripcount int64) Event
	// Copy transfers src into dst.
	Copy(dst, src Buffer) Event
	// Wait blocks until everything submitted so far has completed.
	Wait() error
	Close() error
}

// Device is one accelerator.
type Device interface {
	Info() Info
	Capabilities() Capabilities
	// Allocate returns a buffer of elements float32 values in space.
	Allocate(space Space, elements int) (Buffer, error)
	Free(buf Buffer) error
	// NewContext always builds a fresh native context; contexts never share
	// internal state.
	NewContext(opts ContextOptions) (Context, error)
	// Now reads the clock used to time submissions.
	Now() time.Duration
	Close() error
}
