package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/logger"
	"github.com/fxnlabs/concbench/internal/metrics"
	"github.com/tebeka/atexit"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// state is shared by the commands of one invocation.
type state struct {
	stdout io.Writer
	cfg    *config.Config
	logger *zap.Logger
	// code is the process exit status.
	code int
}

func main() {
	st := &state{stdout: os.Stdout}
	atexit.Register(st.flush)

	run(st, os.Args)
	atexit.Exit(st.code)
}

func run(st *state, args []string) {
	if err := newApp(st).Run(args); err != nil {
		st.fail(err)
	}
}

func newApp(st *state) *cli.App {
	var (
		configPath string
		backend    string
		textfile   string
	)

	commands := make([]*cli.Command, 0, len(bench.Modes)+3)
	for _, mode := range bench.Modes {
		commands = append(commands, modeCommand(st, mode))
	}
	commands = append(commands, allreduceCommand(st), summarizeCommand(st), configCommand(st))

	return &cli.App{
		Name:      "concbench",
		Usage:     "Measure whether independent accelerator commands overlap",
		UsageText: "concbench [global options] MODE [options] COMMAND...",
		Writer:    st.stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to a YAML configuration file",
				EnvVars:     []string{"CONCBENCH_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "Device backend (cpu or sim)",
				Destination: &backend,
			},
			&cli.StringFlag{
				Name:        "metrics-textfile",
				Usage:       "Write Prometheus metrics to this file at exit",
				Destination: &textfile,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			if configPath != "" {
				st.cfg, err = config.LoadConfig(configPath)
				if err != nil {
					return err
				}
			} else {
				st.cfg = config.Default()
			}
			if backend != "" {
				st.cfg.Device.Backend = backend
			}
			if textfile != "" {
				st.cfg.Metrics.Textfile = textfile
			}
			return st.useLogger(st.cfg.Logger.Verbosity)
		},
		Commands: commands,
		// Reached only when the first argument is not a known mode or command.
		Action: func(c *cli.Context) error {
			_ = cli.ShowAppHelp(c)
			if c.NArg() == 0 {
				return bencherr.Configf("need a MODE (one of %v)", bench.Modes)
			}
			_, err := bench.ParseMode(c.Args().First())
			return err
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func (st *state) useLogger(verbosity string) error {
	l, err := logger.New(verbosity)
	if err != nil {
		return bencherr.Configf("logger verbosity %q: %v", verbosity, err)
	}
	if st.logger != nil {
		_ = st.logger.Sync()
	}
	st.logger = l
	return nil
}

// fail reports err on stderr and sets a failing exit status.
func (st *state) fail(err error) {
	st.code = 1
	if st.logger == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	msg := "run failed"
	switch {
	case errors.Is(err, bencherr.ErrConfiguration):
		msg = "invalid configuration"
	case errors.Is(err, bencherr.ErrAllocation):
		msg = "allocation failed"
	case errors.Is(err, bencherr.ErrMeasurementDegenerate):
		msg = "measurement too short to compare"
	}
	st.logger.Error(msg, zap.Error(err))
}

// flush runs at exit.
func (st *state) flush() {
	if st.cfg != nil && st.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(st.cfg.Metrics.Textfile); err != nil && st.logger != nil {
			st.logger.Error("failed to write metrics textfile", zap.String("path", st.cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	if st.logger != nil {
		_ = st.logger.Sync()
	}
}
