package harness

import (
	"context"
	"io"

	"github.com/fxnlabs/concbench/internal/autotune"
	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	_ "github.com/fxnlabs/concbench/internal/simdevice" // registers the sim backend
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires a Harness from a *config.Config, a *zap.Logger and the
// writer named "stdout".
var Module = fx.Module("harness",
	fx.Provide(
		NewDevice,
		NewRunner,
		NewTuner,
		New,
	),
)

// Stdout supplies the writer results are printed to.
func Stdout(w io.Writer) fx.Option {
	return fx.Provide(fx.Annotate(
		func() io.Writer { return w },
		fx.ResultTags(`name:"stdout"`),
	))
}

// NewDevice opens the configured backend through the process-wide manager
// and resets the manager when the application stops.
func NewDevice(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (device.Device, error) {
	dev, err := device.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	info := dev.Info()
	logger.Info("Device selected",
		zap.String("name", info.Name),
		zap.String("backend", info.Backend),
		zap.Int("compute_units", info.ComputeUnits),
		zap.Int64("total_memory", info.TotalMemory))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return device.Reset()
		},
	})
	return dev, nil
}

func NewRunner(dev device.Device, cfg *config.Config, logger *zap.Logger) *bench.Runner {
	return bench.NewRunner(dev, bench.Options{
		Repetitions: cfg.Bench.Repetitions,
		Queues:      cfg.Bench.Queues,
		Profiling:   cfg.Bench.EnableProfiling,
	}, logger)
}

func NewTuner(runner *bench.Runner, dev device.Device, logger *zap.Logger) *autotune.Tuner {
	return autotune.NewTuner(runner, dev.Capabilities().MaxAllocElements, logger)
}
