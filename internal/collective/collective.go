// Package collective provides message passing between goroutine ranks of one
// process: blocking point-to-point transfers and all-reduce.
package collective

import (
	"fmt"
	"math"
	"sync"
)

// Op is a reduction operator.
type Op int

const (
	Sum Op = iota
	Max
)

func (o Op) String() string {
	switch o {
	case Sum:
		return "sum"
	case Max:
		return "max"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func (o Op) combine(acc, v float64) float64 {
	switch o {
	case Sum:
		return acc + v
	case Max:
		return math.Max(acc, v)
	}
	panic(fmt.Sprintf("collective: invalid op %d", int(o)))
}

// World is a fixed group of ranks.
type World struct {
	size    int
	links   [][]chan *envelope // links[from][to]
	reducer *reducer
}

type envelope struct {
	data   []float32
	copied chan int
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world needs at least one rank, got %d", size)
	}
	w := &World{size: size, links: make([][]chan *envelope, size), reducer: newReducer(size)}
	for from := range w.links {
		w.links[from] = make([]chan *envelope, size)
		for to := range w.links[from] {
			w.links[from][to] = make(chan *envelope)
		}
	}
	return w, nil
}

func (w *World) Size() int {
	return w.size
}

// Comm returns the communicator of one rank. Each rank must use its
// communicator from a single goroutine.
func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("collective: rank %d outside world of %d", rank, w.size))
	}
	return &Comm{world: w, rank: rank}
}

// Comm is one rank's view of the world.
type Comm struct {
	world *World
	rank  int
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.size }

// Send blocks until rank to has received data. data may be reused as soon
// as Send returns.
func (c *Comm) Send(to int, data []float32) error {
	if err := c.check(to); err != nil {
		return err
	}
	env := &envelope{data: data, copied: make(chan int, 1)}
	c.world.links[c.rank][to] <- env
	if n := <-env.copied; n != len(data) {
		return fmt.Errorf("rank %d sent %d elements to rank %d, which received %d", c.rank, len(data), to, n)
	}
	return nil
}

// Recv blocks until rank from sends, and copies the message into buf. The
// message must fit buf exactly.
func (c *Comm) Recv(from int, buf []float32) error {
	if err := c.check(from); err != nil {
		return err
	}
	env := <-c.world.links[from][c.rank]
	n := copy(buf, env.data)
	env.copied <- n
	if n != len(env.data) || n != len(buf) {
		return fmt.Errorf("rank %d received %d elements from rank %d into a buffer of %d", c.rank, len(env.data), from, len(buf))
	}
	return nil
}

func (c *Comm) check(peer int) error {
	if peer < 0 || peer >= c.world.size || peer == c.rank {
		return fmt.Errorf("rank %d: invalid peer %d", c.rank, peer)
	}
	return nil
}

// AllReduceFloat64 combines v across all ranks. Every rank must call it.
func (c *Comm) AllReduceFloat64(v float64, op Op) float64 {
	return c.world.reducer.reduce([]float64{v}, op)[0]
}

// AllReduceSum stores the element-wise sum of src over all ranks in dst.
func (c *Comm) AllReduceSum(src, dst []float32) error {
	if len(src) != len(dst) {
		return fmt.Errorf("rank %d: all-reduce of %d elements into %d", c.rank, len(src), len(dst))
	}
	contrib := make([]float64, len(src))
	for i, v := range src {
		contrib[i] = float64(v)
	}
	sum := c.world.reducer.reduce(contrib, Sum)
	if len(sum) != len(dst) {
		return fmt.Errorf("rank %d: ranks disagree on all-reduce length", c.rank)
	}
	for i, v := range sum {
		dst[i] = float32(v)
	}
	return nil
}

// Barrier returns once every rank has called it.
func (c *Comm) Barrier() {
	c.world.reducer.reduce(nil, Sum)
}

// reducer combines one contribution per rank per generation. The result of
// a generation stays readable until every rank has entered the next one.
type reducer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	arrived int
	gen     uint64
	acc     []float64
	result  []float64
}

func newReducer(size int) *reducer {
	r := &reducer{size: size}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *reducer) reduce(contrib []float64, op Op) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen := r.gen
	if r.arrived == 0 {
		r.acc = append([]float64(nil), contrib...)
	} else {
		for i := range r.acc {
			if i < len(contrib) {
				r.acc[i] = op.combine(r.acc[i], contrib[i])
			}
		}
		if len(contrib) != len(r.acc) {
			r.acc = r.acc[:min(len(r.acc), len(contrib))]
		}
	}
	r.arrived++
	if r.arrived == r.size {
		r.result = r.acc
		r.acc = nil
		r.arrived = 0
		r.gen++
		r.cond.Broadcast()
	} else {
		for gen == r.gen {
			r.cond.Wait()
		}
	}
	return append([]float64(nil), r.result...)
}
