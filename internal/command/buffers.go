package command

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/device"
)

// Buffers are the operands of one command. A kernel only has Dst.
type Buffers struct {
	Src device.Buffer
	Dst device.Buffer
}

// BufferSet owns the buffers of a command list for one run.
type BufferSet struct {
	dev  device.Device
	bufs []Buffers
}

// patternPeriod is the period of the values written to transfer sources.
const patternPeriod = 251

// Allocate creates the buffers of every command. On failure everything
// allocated so far is released.
func Allocate(dev device.Device, cmds []Command) (*BufferSet, error) {
	s := &BufferSet{dev: dev, bufs: make([]Buffers, len(cmds))}
	for i, c := range cmds {
		if c.GlobalSize > int64(math.MaxInt) {
			_ = s.Free()
			return nil, bencherr.Allocf("command %d: %d elements exceed the addressable size", i, c.GlobalSize)
		}
		n := int(c.GlobalSize)
		switch c.Kind.Op {
		case Compute:
			out, err := dev.Allocate(device.Local, n)
			if err != nil {
				_ = s.Free()
				return nil, fmt.Errorf("command %d (%s): %w", i, c.Kind, err)
			}
			s.bufs[i].Dst = out
		case Transfer:
			src, err := dev.Allocate(c.Kind.Src, n)
			if err != nil {
				_ = s.Free()
				return nil, fmt.Errorf("command %d (%s) source: %w", i, c.Kind, err)
			}
			s.bufs[i].Src = src
			fill(src)
			dst, err := dev.Allocate(c.Kind.Dst, n)
			if err != nil {
				_ = s.Free()
				return nil, fmt.Errorf("command %d (%s) destination: %w", i, c.Kind, err)
			}
			s.bufs[i].Dst = dst
		default:
			panic(fmt.Sprintf("command: invalid op %d", int(c.Kind.Op)))
		}
	}
	return s, nil
}

func fill(b device.Buffer) {
	host, ok := b.(device.HostBuffer)
	if !ok {
		return
	}
	data := host.Float32s()
	for j := range data {
		data[j] = float32(j % patternPeriod)
	}
}

// Get returns the buffers of command i.
func (s *BufferSet) Get(i int) Buffers {
	return s.bufs[i]
}

// Len is the number of commands the set serves.
func (s *BufferSet) Len() int {
	return len(s.bufs)
}

// Free releases every buffer. It is safe to call more than once.
func (s *BufferSet) Free() error {
	var errs []error
	for i := range s.bufs {
		for _, b := range []*device.Buffer{&s.bufs[i].Src, &s.bufs[i].Dst} {
			if *b == nil {
				continue
			}
			if err := s.dev.Free(*b); err != nil {
				errs = append(errs, err)
			}
			*b = nil
		}
	}
	return errors.Join(errs...)
}
