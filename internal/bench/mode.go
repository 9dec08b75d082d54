package bench

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/pool"
)

// Mode is how a run executes its commands.
type Mode string

const (
	Serial      Mode = "serial"
	InOrder     Mode = "in_order"
	OutOfOrder  Mode = "out_of_order"
	NoWait      Mode = "nowait"
	HostThreads Mode = "host_threads"
)

// Modes lists every mode in the order the CLI shows them.
var Modes = []Mode{InOrder, OutOfOrder, NoWait, HostThreads, Serial}

// ParseMode accepts a CLI mode token.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return "", bencherr.Configf("unknown mode %q (want one of %s)", s, strings.Join(names, "|"))
}

// Dispatch is the submission strategy of a mode.
type Dispatch int

const (
	// DispatchSerial submits one command and waits for it before the next.
	DispatchSerial Dispatch = iota
	// DispatchQueues submits everything from one goroutine, then waits once.
	DispatchQueues
	// DispatchThreads gives each context its own host goroutine.
	DispatchThreads
)

func (d Dispatch) String() string {
	switch d {
	case DispatchSerial:
		return "serial"
	case DispatchQueues:
		return "concurrent_queues"
	case DispatchThreads:
		return "concurrent_threads"
	}
	return fmt.Sprintf("Dispatch(%d)", int(d))
}

func (m Mode) Dispatch() Dispatch {
	switch m {
	case Serial:
		return DispatchSerial
	case InOrder, OutOfOrder, NoWait:
		return DispatchQueues
	case HostThreads:
		return DispatchThreads
	}
	panic(fmt.Sprintf("bench: invalid mode %q", string(m)))
}

// Order is the context order the mode's contexts are created with.
func (m Mode) Order() device.Order {
	switch m {
	case OutOfOrder, NoWait:
		return device.OutOfOrder
	case Serial, InOrder, HostThreads:
		return device.InOrder
	}
	panic(fmt.Sprintf("bench: invalid mode %q", string(m)))
}

// Policy is how many contexts the mode wants when the user did not say.
func (m Mode) Policy() pool.Policy {
	switch m {
	case InOrder, HostThreads:
		return pool.PerCommand
	case Serial, OutOfOrder, NoWait:
		return pool.Shared
	}
	panic(fmt.Sprintf("bench: invalid mode %q", string(m)))
}

func (m Mode) Concurrent() bool {
	return m.Dispatch() != DispatchSerial
}
