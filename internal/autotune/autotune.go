// Package autotune balances dissimilar commands so that each takes about as
// long as the fastest transfer.
package autotune

import (
	"context"
	"math"
	"time"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"go.uber.org/zap"
)

// Benchmarker runs a command list and reports its timings.
type Benchmarker interface {
	Run(ctx context.Context, mode bench.Mode, cmds []command.Command) (*bench.Result, error)
}

// Tuner calibrates the free parameter of every unresolved command kind with
// one serial measurement, assuming each command's time is linear in its
// parameter.
type Tuner struct {
	runner      Benchmarker
	maxElements int64
	logger      *zap.Logger
}

// NewTuner returns a tuner. Tuned sizes are capped at maxElements when it is
// positive.
func NewTuner(runner Benchmarker, maxElements int64, logger *zap.Logger) *Tuner {
	return &Tuner{runner: runner, maxElements: maxElements, logger: logger.Named("autotune")}
}

// Change is one parameter calibration replaced.
type Change struct {
	Param    command.Param
	Before   int64
	After    int64
	Observed time.Duration
	Clamped  bool
}

// Outcome describes a Tune call.
type Outcome struct {
	Skipped     bool
	Kinds       []command.Kind
	Calibration *bench.Result
	// MinTime is the fastest transfer time the others are scaled to.
	MinTime time.Duration
	Changes []Change
}

// Needed reports whether Tune would calibrate anything: there must be at
// least two distinct kinds and one of their parameters left to tune.
func (t *Tuner) Needed(table *command.Table, kinds []command.Kind) bool {
	distinct := command.Distinct(kinds)
	if len(distinct) < 2 {
		return false
	}
	for _, k := range distinct {
		if table.NeedsTuning(k.TunedParam()) {
			return true
		}
	}
	return false
}

// Tune runs the calibration pass and stores the new values in table. It
// runs at most once per table: tuned parameters are not tuned again.
func (t *Tuner) Tune(ctx context.Context, table *command.Table, kinds []command.Kind) (*Outcome, error) {
	distinct := command.Distinct(kinds)
	out := &Outcome{Kinds: distinct}
	if !t.Needed(table, kinds) {
		t.logger.Debug("no calibration needed", zap.Int("distinct_kinds", len(distinct)))
		out.Skipped = true
		return out, nil
	}

	cmds, err := table.Resolve(distinct)
	if err != nil {
		return nil, err
	}
	res, err := t.runner.Run(ctx, bench.Serial, cmds)
	if err != nil {
		return nil, err
	}
	out.Calibration = res

	minTime := bench.Unmeasured
	for i, k := range distinct {
		if k.Op == command.Compute {
			continue
		}
		minTime = min(minTime, res.PerCommand[i])
	}
	out.MinTime = minTime
	if minTime == bench.Unmeasured || minTime <= 0 {
		t.logger.Warn("calibration skipped",
			zap.Error(bencherr.Degeneratef("fastest transfer took %s", minTime)))
		out.Skipped = true
		return out, nil
	}

	for i, k := range distinct {
		p := k.TunedParam()
		if !table.NeedsTuning(p) {
			continue
		}
		observed := res.PerCommand[i]
		before := table.Get(p).Value
		if observed <= 0 {
			t.logger.Warn("keeping provisional value",
				zap.Stringer("parameter", p),
				zap.Int64("value", before),
				zap.Error(bencherr.Degeneratef("%s took %s", k, observed)))
			continue
		}

		after, clamped := t.clamp(p, scale(before, minTime, observed))
		if clamped {
			t.logger.Warn("clamping tuned value",
				zap.Stringer("parameter", p),
				zap.Int64("value", after))
		}
		table.Tune(p, after)
		out.Changes = append(out.Changes, Change{Param: p, Before: before, After: after, Observed: observed, Clamped: clamped})
		t.logger.Debug("parameter tuned",
			zap.Stringer("parameter", p),
			zap.Int64("before", before),
			zap.Int64("after", after),
			zap.Duration("observed", observed),
			zap.Duration("target", minTime))
	}
	return out, nil
}

// scale is value * target / observed, truncated.
func scale(value int64, target, observed time.Duration) int64 {
	v := float64(target) / float64(observed) * float64(value)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func (t *Tuner) clamp(p command.Param, v int64) (int64, bool) {
	if v < 1 {
		return 1, true
	}
	if p.Field == command.GlobalSize && t.maxElements > 0 && v > t.maxElements {
		return t.maxElements, true
	}
	return v, false
}
