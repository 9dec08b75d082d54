// Package allreduce is a miniapp that sums per-rank arrays with either a
// ring of point-to-point transfers or the collective all-reduce, and reports
// the slowest rank's time.
package allreduce

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/collective"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Algorithm selects how ranks combine their arrays.
type Algorithm string

const (
	Ring       Algorithm = "ring"
	Collective Algorithm = "collective"
)

// Options configure one run.
type Options struct {
	Ranks int
	// Power sizes the arrays at 2^Power elements.
	Power     int
	Space     device.Space
	Algorithm Algorithm
}

// DefaultPower is the array size exponent when none is given.
const DefaultPower = 20

// Result is what every rank agreed on.
type Result struct {
	Ranks     int
	Elements  int
	Algorithm Algorithm
	Space     device.Space
	// MaxElapsed is the slowest rank's time.
	MaxElapsed time.Duration
	// Expected is the value every element must hold.
	Expected float32
}

// Validate checks the rank count and array size.
func (o Options) Validate() error {
	if o.Ranks < 4 || o.Ranks%2 != 0 {
		return bencherr.Configf("ranks must be an even integer >= 4, got %d", o.Ranks)
	}
	if o.Power < 0 || o.Power > 30 {
		return bencherr.Configf("array size 2^%d is out of range", o.Power)
	}
	switch o.Algorithm {
	case Ring, Collective:
	default:
		return bencherr.Configf("unknown all-reduce algorithm %q", o.Algorithm)
	}
	return nil
}

// Run executes the miniapp with one goroutine per rank. Arrays live in
// opts.Space on dev, which must expose host-visible buffers.
func Run(ctx context.Context, dev device.Device, opts Options, logger *zap.Logger) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger = logger.Named("allreduce")
	world, err := collective.NewWorld(opts.Ranks)
	if err != nil {
		return nil, err
	}

	elements := 1 << opts.Power
	res := &Result{
		Ranks:     opts.Ranks,
		Elements:  elements,
		Algorithm: opts.Algorithm,
		Space:     opts.Space,
		Expected:  float32(opts.Ranks*(opts.Ranks-1)) / 2,
	}
	elapsed := make([]float64, opts.Ranks)

	// Ranks block on each other inside collectives, so none of them may
	// stop early; cancellation is only honoured before the ranks start.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var g errgroup.Group
	for rank := 0; rank < opts.Ranks; rank++ {
		comm := world.Comm(rank)
		g.Go(func() error {
			r := &rankState{comm: comm, dev: dev, elements: elements, space: opts.Space}
			seconds, err := r.run(opts.Algorithm, res.Expected)
			elapsed[comm.Rank()] = seconds
			if err != nil {
				return fmt.Errorf("rank %d: %w", comm.Rank(), err)
			}
			logger.Debug("Passed", zap.Int("rank", comm.Rank()), zap.Float64("seconds", seconds))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slowest := 0.0
	for _, s := range elapsed {
		slowest = math.Max(slowest, s)
	}
	res.MaxElapsed = time.Duration(slowest * float64(time.Second))
	metrics.AllreduceDuration.WithLabelValues(string(opts.Algorithm)).Observe(float64(res.MaxElapsed.Microseconds()))
	return res, nil
}

type rankState struct {
	comm     *collective.Comm
	dev      device.Device
	elements int
	space    device.Space
}

// run returns the slowest rank's time in seconds. Every rank reaches the
// max reduction, failed or not, so peers are never left waiting on it.
func (r *rankState) run(algo Algorithm, expected float32) (float64, error) {
	var (
		bufs    []device.Buffer
		seconds float64
		err     error
	)
	defer func() {
		for _, b := range bufs {
			_ = r.dev.Free(b)
		}
	}()

	va, vb, vc, err := r.allocate(&bufs)
	if err == nil {
		rank := float32(r.comm.Rank())
		fillConst(va, rank)
		fillConst(vb, rank)
		fillConst(vc, 0)

		start := time.Now()
		switch algo {
		case Collective:
			err = r.comm.AllReduceSum(va, vc)
		case Ring:
			err = r.ring(va, vb, vc)
		}
		seconds = time.Since(start).Seconds()
	}
	failed := 0.0
	if err != nil {
		failed = 1
	}
	if r.comm.AllReduceFloat64(failed, collective.Max) > 0 && err == nil {
		err = fmt.Errorf("a peer rank failed")
	}
	if err != nil {
		return seconds, err
	}
	seconds = r.comm.AllReduceFloat64(seconds, collective.Max)
	return seconds, verify(vc, expected)
}

func (r *rankState) allocate(bufs *[]device.Buffer) (va, vb, vc []float32, err error) {
	arrays := make([][]float32, 3)
	for i := range arrays {
		b, err := r.dev.Allocate(r.space, r.elements)
		if err != nil {
			return nil, nil, nil, err
		}
		*bufs = append(*bufs, b)
		host, ok := b.(device.HostBuffer)
		if !ok {
			return nil, nil, nil, bencherr.Configf("%s buffers of the %s device are not host visible",
				r.space, r.dev.Info().Backend)
		}
		arrays[i] = host.Float32s()
	}
	return arrays[0], arrays[1], arrays[2], nil
}

// ring passes every rank's array around the ring, accumulating each one
// into vc. Odd ranks send first so that blocking transfers pair up.
func (r *rankState) ring(va, vb, vc []float32) error {
	size := r.comm.Size()
	rank := r.comm.Rank()
	right, left := (rank+1)%size, (rank-1+size)%size

	accumulate(va, vc)
	for s := 1; s < size; s++ {
		if rank%2 == 1 {
			if err := r.comm.Send(right, va); err != nil {
				return err
			}
			if err := r.comm.Recv(left, vb); err != nil {
				return err
			}
		} else {
			if err := r.comm.Recv(left, vb); err != nil {
				return err
			}
			if err := r.comm.Send(right, va); err != nil {
				return err
			}
		}
		va, vb = vb, va
		accumulate(va, vc)
	}
	return nil
}

func accumulate(src, dst []float32) {
	for i, v := range src {
		dst[i] += v
	}
}

func fillConst(data []float32, v float32) {
	for i := range data {
		data[i] = v
	}
}

func verify(data []float32, expected float32) error {
	for i, v := range data {
		if math.Abs(float64(expected-v)) >= 1e-6 {
			return fmt.Errorf("element %d is %g, expected %g", i, v, expected)
		}
	}
	return nil
}
