package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/harness"
	"github.com/fxnlabs/concbench/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// paramFlags are the tuning table flags in listing order. Transfer sizes
// accept both globalsize_MD and globalsize_M2D.
func paramFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.Int64Flag{Name: "tripcount_C", Usage: "Kernel iterations per work item (-1 to autotune)"},
		&cli.Int64Flag{Name: "globalsize_C", Usage: "Kernel work items"},
	}
	for _, src := range device.Spaces {
		for _, dst := range device.Spaces {
			k := command.TransferKind(src, dst)
			flags = append(flags, &cli.Int64Flag{
				Name:    "globalsize_" + k.String(),
				Aliases: []string{"globalsize_" + k.Long()},
				Usage:   fmt.Sprintf("Elements copied by %s (-1 to autotune)", k.Long()),
			})
		}
	}
	return flags
}

func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.Int64Flag{Name: "globalsize_default_memory", Usage: "Provisional element count for transfers"},
		&cli.IntFlag{Name: "queues", Usage: "Number of contexts (-1 for one per command)"},
		&cli.IntFlag{Name: "repetitions", Usage: "Repetitions per measurement; the best is kept"},
		&cli.BoolFlag{Name: "enable_profiling", Usage: "Record device-side event times"},
		&cli.Float64Flag{Name: "tolerance", Usage: "Accepted shortfall from the theoretical speedup"},
		&cli.StringFlag{Name: "report", Usage: "Write a YAML run record to this path"},
		&cli.StringFlag{Name: "env", Usage: "Environment label stored in the run record"},
		&cli.BoolFlag{Name: "verbose", Usage: "Log every repetition"},
	}
	return append(paramFlags(), flags...)
}

func modeCommand(st *state, mode bench.Mode) *cli.Command {
	return &cli.Command{
		Name:      string(mode),
		Usage:     fmt.Sprintf("Compare a serial run with a %s run of the given commands", mode),
		ArgsUsage: "COMMAND... (C, M2D, D2M, H2D, D2H, ...)",
		Flags:     runFlags(),
		Action: func(c *cli.Context) error {
			req, err := st.request(c, mode)
			if err != nil {
				_ = cli.ShowSubcommandHelp(c)
				return err
			}
			if c.Bool("verbose") {
				if err := st.useLogger(logger.Verbose(st.cfg.Logger.Verbosity, true)); err != nil {
					return err
				}
				fmt.Fprintln(st.stdout, figure.NewFigure("concbench", "", true).String())
			}

			out, err := st.runHarness(c.Context, req)
			if err != nil {
				if errors.Is(err, bencherr.ErrConfiguration) {
					_ = cli.ShowSubcommandHelp(c)
				}
				return err
			}
			st.code = out.ExitCode()
			return nil
		},
	}
}

// request applies the command's flags to the configuration and builds the
// harness request.
func (st *state) request(c *cli.Context, mode bench.Mode) (harness.Request, error) {
	cfg := st.cfg
	if c.IsSet("queues") {
		cfg.Bench.Queues = c.Int("queues")
	}
	if c.IsSet("repetitions") {
		cfg.Bench.Repetitions = c.Int("repetitions")
	}
	if c.IsSet("enable_profiling") {
		cfg.Bench.EnableProfiling = c.Bool("enable_profiling")
	}
	if c.IsSet("tolerance") {
		cfg.Bench.Tolerance = c.Float64("tolerance")
	}
	if c.IsSet("report") {
		cfg.Report.Path = c.String("report")
	}
	if c.IsSet("env") {
		cfg.Report.Env = c.String("env")
	}
	if err := cfg.Validate(); err != nil {
		return harness.Request{}, err
	}

	table := command.NewTable()
	for name, v := range cfg.Bench.Parameters {
		if err := table.SetNamed(name, v); err != nil {
			return harness.Request{}, err
		}
	}
	var args []string
	for _, f := range paramFlags() {
		name := f.Names()[0]
		if !c.IsSet(name) {
			continue
		}
		v := c.Int64(name)
		if err := table.SetNamed(name, v); err != nil {
			return harness.Request{}, err
		}
		args = append(args, fmt.Sprintf("--%s %d", name, v))
	}
	for _, name := range []string{"globalsize_default_memory", "queues", "repetitions", "enable_profiling", "tolerance"} {
		if c.IsSet(name) {
			args = append(args, fmt.Sprintf("--%s %v", name, c.Value(name)))
		}
	}

	req := harness.Request{
		Mode:   mode,
		Tokens: c.Args().Slice(),
		Table:  table,
		Args:   strings.Join(args, " "),
	}
	if c.IsSet("globalsize_default_memory") {
		n := c.Int64("globalsize_default_memory")
		if n < 1 {
			return harness.Request{}, bencherr.Configf("globalsize_default_memory must be positive, got %d", n)
		}
		req.DefaultTransferElements = n
	}
	if len(req.Tokens) == 0 {
		return harness.Request{}, bencherr.Configf("need at least one COMMAND")
	}
	if _, err := command.ParseKinds(req.Tokens); err != nil {
		return harness.Request{}, err
	}
	return req, nil
}

func (st *state) runHarness(ctx context.Context, req harness.Request) (out *harness.Outcome, err error) {
	var h *harness.Harness
	app := fx.New(
		fx.Supply(st.cfg, st.logger),
		harness.Module,
		harness.Stdout(st.stdout),
		fx.Populate(&h),
		fx.NopLogger,
	)
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if serr := app.Stop(context.Background()); serr != nil {
			st.logger.Warn("failed to release the device", zap.Error(serr))
		}
	}()
	return h.Run(ctx, req)
}
