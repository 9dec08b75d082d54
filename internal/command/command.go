package command

import (
	"fmt"

	"github.com/fxnlabs/concbench/internal/device"
)

// Command is a fully parameterised unit of work.
type Command struct {
	Kind       Kind
	GlobalSize int64
	Tripcount  int64
}

func (c Command) String() string {
	switch c.Kind.Op {
	case Compute:
		return fmt.Sprintf("C(globalsize=%d, tripcount=%d)", c.GlobalSize, c.Tripcount)
	case Transfer:
		return fmt.Sprintf("%s(globalsize=%d)", c.Kind.Long(), c.GlobalSize)
	}
	panic(fmt.Sprintf("command: invalid op %d", int(c.Kind.Op)))
}

// Bytes is the amount of data a transfer moves; zero for the kernel.
func (c Command) Bytes() int64 {
	if c.Kind.Op == Transfer {
		return c.GlobalSize * device.ElementSize
	}
	return 0
}

// TotalBytes sums Bytes over cmds.
func TotalBytes(cmds []Command) int64 {
	var n int64
	for _, c := range cmds {
		n += c.Bytes()
	}
	return n
}

// Enqueue submits c on ctx using its buffers. It does not block.
func (c Command) Enqueue(ctx device.Context, b Buffers) device.Event {
	switch c.Kind.Op {
	case Compute:
		return ctx.Launch(b.Dst, c.Tripcount)
	case Transfer:
		return ctx.Copy(b.Dst, b.Src)
	}
	panic(fmt.Sprintf("command: invalid op %d", int(c.Kind.Op)))
}
