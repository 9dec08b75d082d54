// Package harness runs the complete benchmark: defaults, calibration, the
// serial and concurrent measurements and the verdict.
package harness

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fxnlabs/concbench/internal/autotune"
	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/metrics"
	"github.com/fxnlabs/concbench/internal/report"
	"github.com/fxnlabs/concbench/internal/verdict"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Request is one benchmark invocation.
type Request struct {
	Mode bench.Mode
	// Tokens are the command tokens as given, e.g. "C" or "M2D".
	Tokens []string
	Table  *command.Table
	// DefaultTransferElements is the provisional transfer size; zero derives
	// it from the configured default memory size.
	DefaultTransferElements int64
	// Args are the remaining CLI options, recorded for the summary table.
	Args string
}

// Outcome is everything a run measured.
type Outcome struct {
	Commands   []command.Command
	Tuning     *autotune.Outcome
	Serial     *bench.Result
	Concurrent *bench.Result
	Verdict    *verdict.Verdict
}

// ExitCode is the process status for the outcome.
func (o *Outcome) ExitCode() int {
	return o.Verdict.Outcome.ExitCode()
}

type Params struct {
	fx.In

	Config *config.Config
	Device device.Device
	Runner *bench.Runner
	Tuner  *autotune.Tuner
	Logger *zap.Logger
	Out    io.Writer `name:"stdout"`
}

type Harness struct {
	cfg     *config.Config
	dev     device.Device
	runner  *bench.Runner
	tuner   *autotune.Tuner
	console *report.Console
	logger  *zap.Logger
}

func New(p Params) *Harness {
	return &Harness{
		cfg:     p.Config,
		dev:     p.Device,
		runner:  p.Runner,
		tuner:   p.Tuner,
		console: report.NewConsole(p.Out),
		logger:  p.Logger.Named("harness"),
	}
}

// Run executes req. Configuration and allocation errors abort before any
// verdict; a degenerate measurement aborts the verdict only.
func (h *Harness) Run(ctx context.Context, req Request) (*Outcome, error) {
	if _, err := bench.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	kinds, err := command.ParseKinds(req.Tokens)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, bencherr.Configf("need at least one COMMAND (C, M2D, D2M, H2D, D2H, ...)")
	}
	table := req.Table
	if table == nil {
		table = command.NewTable()
	}

	table.ApplyDefaults(kinds, h.defaults(req), h.logger)

	out := &Outcome{}
	if h.tuner.Needed(table, kinds) {
		h.console.Tuning()
		out.Tuning, err = h.tuner.Tune(ctx, table, kinds)
		if err != nil {
			return nil, err
		}
	}

	used := table.Used(kinds)
	h.console.Parameters(used)
	for _, e := range used {
		metrics.TunedParameter.WithLabelValues(e.Param.String(), e.Source.String()).Set(float64(e.Value))
	}

	out.Commands, err = table.Resolve(kinds)
	if err != nil {
		return nil, err
	}

	out.Serial, err = h.runner.Run(ctx, bench.Serial, out.Commands)
	if err != nil {
		return nil, err
	}
	h.console.Serial(out.Serial, out.Commands)
	for i, c := range out.Commands {
		metrics.CommandBestTime.WithLabelValues(strconv.Itoa(i), c.Kind.String()).Set(float64(out.Serial.PerCommand[i].Microseconds()))
	}
	metrics.BestTotalTime.WithLabelValues(string(bench.Serial)).Set(float64(out.Serial.Total.Microseconds()))

	_, theoretical, err := verdict.Theoretical(out.Serial)
	if err != nil {
		return nil, err
	}
	h.console.Theoretical(theoretical)
	if theoretical <= h.cfg.Bench.UnbalanceThreshold {
		h.logger.Warn("Large Unbalance Between Commands",
			zap.Float64("max_theoretical_speedup", theoretical),
			zap.Float64("threshold", h.cfg.Bench.UnbalanceThreshold))
		metrics.UnbalancedTotal.Inc()
	}

	out.Concurrent, err = h.runner.Run(ctx, req.Mode, out.Commands)
	if err != nil {
		return nil, err
	}
	h.console.Concurrent(out.Concurrent, out.Commands)
	metrics.BestTotalTime.WithLabelValues(string(req.Mode)).Set(float64(out.Concurrent.Total.Microseconds()))

	out.Verdict, err = verdict.Evaluate(out.Serial, out.Concurrent, h.cfg.Bench.Tolerance, h.cfg.Bench.UnbalanceThreshold)
	if err != nil {
		return nil, err
	}
	h.console.Speedup(out.Verdict)
	h.console.Outcome(out.Verdict)
	metrics.Speedup.WithLabelValues(metrics.SpeedupTheoretical).Set(out.Verdict.MaxTheoreticalSpeedup)
	metrics.Speedup.WithLabelValues(metrics.SpeedupActual).Set(out.Verdict.ActualSpeedup)
	metrics.VerdictTotal.WithLabelValues(strings.ToLower(out.Verdict.Outcome.String())).Inc()

	if path := h.cfg.Report.Path; path != "" {
		if err := report.WriteRecord(path, h.record(req, table, out)); err != nil {
			h.logger.Error("failed to write run record", zap.String("path", path), zap.Error(err))
		}
	}
	return out, nil
}

func (h *Harness) defaults(req Request) command.Defaults {
	transfer := req.DefaultTransferElements
	if transfer <= 0 {
		transfer = h.cfg.Bench.DefaultMemoryBytes / device.ElementSize
	}
	return command.Defaults{
		Tripcount:          command.DefaultTripcount,
		ComputeGlobalSize:  command.DefaultComputeGlobalSize,
		TransferGlobalSize: transfer,
		MaxElements:        h.dev.Capabilities().MaxAllocElements,
	}
}

func (h *Harness) record(req Request, table *command.Table, out *Outcome) *report.Record {
	params := make(map[string]int64)
	for _, e := range table.Used(out.kinds()) {
		params[e.Param.String()] = e.Value
	}
	return &report.Record{
		Env:                   h.cfg.Report.Env,
		Commands:              req.Tokens,
		Args:                  req.Args,
		Mode:                  string(req.Mode),
		Profiling:             h.cfg.Bench.EnableProfiling,
		Outcome:               out.Verdict.Outcome.String(),
		Finished:              time.Now().UTC(),
		Device:                h.dev.Info(),
		Params:                params,
		Serial:                report.NewTiming(out.Serial),
		Concurrent:            report.NewTiming(out.Concurrent),
		MaxTheoreticalSpeedup: out.Verdict.MaxTheoreticalSpeedup,
		ActualSpeedup:         out.Verdict.ActualSpeedup,
		Unbalanced:            out.Verdict.Unbalanced,
	}
}

func (o *Outcome) kinds() []command.Kind {
	kinds := make([]command.Kind, len(o.Commands))
	for i, c := range o.Commands {
		kinds[i] = c.Kind
	}
	return kinds
}
