// Package bench times command lists serially and concurrently.
package bench

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/metrics"
	"github.com/fxnlabs/concbench/internal/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Unmeasured marks a per-command time a concurrent run cannot observe.
const Unmeasured = time.Duration(math.MaxInt64)

// Options are the run settings shared by every Run call.
type Options struct {
	Repetitions int
	// Queues overrides the context count when positive.
	Queues    int
	Profiling bool
}

// Result is the outcome of one Run.
type Result struct {
	Mode Mode
	// Total is the best repetition time. Serial runs cap it by the sum of
	// the per-command minima.
	Total time.Duration
	// PerCommand holds the best time of each command, or Unmeasured.
	PerCommand []time.Duration
	// DeviceTimes holds the best device-side execution time of each command
	// when profiling is enabled.
	DeviceTimes []time.Duration
	// Samples are the total times of every repetition, in order.
	Samples  []time.Duration
	Contexts int
}

// Runner executes command lists on one device.
type Runner struct {
	dev    device.Device
	opts   Options
	logger *zap.Logger
}

func NewRunner(dev device.Device, opts Options, logger *zap.Logger) *Runner {
	if opts.Repetitions < 1 {
		opts.Repetitions = 1
	}
	return &Runner{dev: dev, opts: opts, logger: logger.Named("runner")}
}

// Run allocates the buffers of cmds, runs them Repetitions times in mode and
// frees everything before returning.
func (r *Runner) Run(ctx context.Context, mode Mode, cmds []command.Command) (res *Result, err error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, bencherr.Configf("no commands to run")
	}
	if mode.Dispatch() == DispatchThreads && !r.dev.Capabilities().HostThreads {
		return nil, bencherr.Configf("mode %s needs host-thread dispatch, which the %s device does not support",
			mode, r.dev.Info().Backend)
	}

	n := pool.Size(mode.Policy(), len(cmds), r.opts.Queues)
	if n < len(cmds) && mode.Concurrent() {
		r.logger.Debug("commands share contexts and will partly serialize",
			zap.Int("commands", len(cmds)), zap.Int("contexts", n))
	}

	bufs, err := command.Allocate(r.dev, cmds)
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := bufs.Free(); ferr != nil && err == nil {
			err = fmt.Errorf("freeing buffers: %w", ferr)
		}
	}()

	p, err := pool.New(r.dev, n, device.ContextOptions{Order: mode.Order(), Profiling: r.opts.Profiling})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing contexts: %w", cerr)
		}
	}()

	res = &Result{
		Mode:       mode,
		Total:      Unmeasured,
		PerCommand: make([]time.Duration, len(cmds)),
		Samples:    make([]time.Duration, 0, r.opts.Repetitions),
		Contexts:   n,
	}
	for i := range res.PerCommand {
		res.PerCommand[i] = Unmeasured
	}
	if r.opts.Profiling {
		res.DeviceTimes = make([]time.Duration, len(cmds))
		for i := range res.DeviceTimes {
			res.DeviceTimes[i] = Unmeasured
		}
	}

	phase := mode.Dispatch().String()
	for rep := 0; rep < r.opts.Repetitions; rep++ {
		var (
			total  time.Duration
			tokens []pool.Token
		)
		switch mode.Dispatch() {
		case DispatchSerial:
			total, tokens, err = r.serial(p, cmds, bufs, res.PerCommand)
		case DispatchQueues:
			total, tokens, err = r.queues(p, cmds, bufs)
		case DispatchThreads:
			total, tokens, err = r.threads(ctx, p, cmds, bufs)
		}
		if err != nil {
			return nil, fmt.Errorf("%s repetition %d: %w", mode, rep, err)
		}

		res.Samples = append(res.Samples, total)
		res.Total = min(res.Total, total)
		metrics.RepetitionDuration.WithLabelValues(phase, string(mode)).Observe(float64(total.Microseconds()))
		r.recordProfiles(tokens, res)
		r.logger.Debug("repetition finished",
			zap.String("mode", string(mode)),
			zap.Int("repetition", rep),
			zap.Int64("total_us", total.Microseconds()))
	}

	if mode.Dispatch() == DispatchSerial {
		var sum time.Duration
		for _, t := range res.PerCommand {
			sum += t
		}
		res.Total = min(res.Total, sum)
	}
	return res, nil
}

func (r *Runner) serial(p *pool.Pool, cmds []command.Command, bufs *command.BufferSet, best []time.Duration) (time.Duration, []pool.Token, error) {
	tokens := make([]pool.Token, len(cmds))
	start := r.dev.Now()
	for i, c := range cmds {
		s := r.dev.Now()
		tokens[i] = p.Submit(i, c, bufs.Get(i))
		if err := tokens[i].Wait(); err != nil {
			return 0, nil, fmt.Errorf("command %d (%s): %w", i, c.Kind, err)
		}
		best[i] = min(best[i], since(r.dev, s))
	}
	return since(r.dev, start), tokens, nil
}

func (r *Runner) queues(p *pool.Pool, cmds []command.Command, bufs *command.BufferSet) (time.Duration, []pool.Token, error) {
	tokens := make([]pool.Token, len(cmds))
	start := r.dev.Now()
	for i, c := range cmds {
		tokens[i] = p.Submit(i, c, bufs.Get(i))
	}
	if err := p.WaitAll(); err != nil {
		return 0, nil, err
	}
	return since(r.dev, start), tokens, nil
}

// threads fans the submission loop out over one goroutine per context. Each
// goroutine submits the commands of its context and waits on that context
// only.
func (r *Runner) threads(ctx context.Context, p *pool.Pool, cmds []command.Command, bufs *command.BufferSet) (time.Duration, []pool.Token, error) {
	tokens := make([]pool.Token, len(cmds))
	g, gctx := errgroup.WithContext(ctx)
	start := r.dev.Now()
	for slot := 0; slot < p.Len(); slot++ {
		g.Go(func() error {
			for i := slot; i < len(cmds); i += p.Len() {
				if err := gctx.Err(); err != nil {
					_ = p.WaitSlot(slot)
					return err
				}
				tokens[i] = p.Submit(i, cmds[i], bufs.Get(i))
			}
			return p.WaitSlot(slot)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return since(r.dev, start), tokens, nil
}

func (r *Runner) recordProfiles(tokens []pool.Token, res *Result) {
	if !r.opts.Profiling {
		return
	}
	for i, tok := range tokens {
		profile, ok := tok.Profile()
		if !ok {
			continue
		}
		elapsed := profile.Elapsed().Truncate(time.Microsecond)
		res.DeviceTimes[i] = min(res.DeviceTimes[i], elapsed)
		r.logger.Debug("device profile",
			zap.Int("command", i),
			zap.Int("slot", tok.Slot),
			zap.Duration("queued", profile.Start-profile.Submit),
			zap.Duration("elapsed", profile.Elapsed()))
	}
}

// since is the elapsed device-clock time truncated to microseconds.
func since(dev device.Device, start time.Duration) time.Duration {
	return (dev.Now() - start).Truncate(time.Microsecond)
}
