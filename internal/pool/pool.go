// Package pool holds the execution contexts a benchmark run submits to.
package pool

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/device"
)

// Policy decides how many contexts a run gets when the user did not say.
type Policy int

const (
	// Shared runs every command on one context.
	Shared Policy = iota
	// PerCommand gives every command its own context.
	PerCommand
)

// Size returns override when positive, otherwise what policy asks for.
func Size(policy Policy, commandCount, override int) int {
	if override > 0 {
		return override
	}
	if policy == PerCommand && commandCount > 0 {
		return commandCount
	}
	return 1
}

// Pool is a fixed set of contexts. Command i runs on context i mod Len().
type Pool struct {
	contexts []device.Context
}

// New creates n fresh contexts on dev.
func New(dev device.Device, n int, opts device.ContextOptions) (*Pool, error) {
	if n < 1 {
		return nil, bencherr.Configf("pool needs at least one context, got %d", n)
	}
	p := &Pool{contexts: make([]device.Context, 0, n)}
	for i := 0; i < n; i++ {
		ctx, err := dev.NewContext(opts)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("creating context %d of %d: %w", i, n, err)
		}
		p.contexts = append(p.contexts, ctx)
	}
	return p, nil
}

func (p *Pool) Len() int {
	return len(p.contexts)
}

// Slot is the context index command i is assigned to.
func (p *Pool) Slot(i int) int {
	return i % len(p.contexts)
}

// Context returns the context command i is assigned to.
func (p *Pool) Context(i int) device.Context {
	return p.contexts[p.Slot(i)]
}

// Token tracks one submission.
type Token struct {
	Command int
	Slot    int
	event   device.Event
}

// Wait blocks until the submission completed.
func (t Token) Wait() error {
	return t.event.Wait()
}

// Profile returns device timestamps when profiling is enabled.
func (t Token) Profile() (device.Profile, bool) {
	return t.event.Profile()
}

// Submit enqueues cmd as command i without blocking.
func (p *Pool) Submit(i int, cmd command.Command, bufs command.Buffers) Token {
	slot := p.Slot(i)
	return Token{Command: i, Slot: slot, event: cmd.Enqueue(p.contexts[slot], bufs)}
}

// WaitSlot waits for every submission on one context.
func (p *Pool) WaitSlot(slot int) error {
	return p.contexts[slot].Wait()
}

// WaitAll waits for every context.
func (p *Pool) WaitAll() error {
	var errs []error
	for i, ctx := range p.contexts {
		if err := ctx.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("context %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close waits for and releases every context.
func (p *Pool) Close() error {
	var errs []error
	for i, ctx := range p.contexts {
		if err := ctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("context %d: %w", i, err))
		}
	}
	p.contexts = nil
	return errors.Join(errs...)
}
