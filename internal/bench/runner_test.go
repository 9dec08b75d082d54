package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/simdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newSimDevice models a 10us kernel (100 work items, tripcount 10) and a
// 10us host to device copy (2500 elements at 1 GB/s).
func newSimDevice(t *testing.T) device.Device {
	dev := simdevice.New(config.SimConfig{
		ComputeSlots:         1,
		Lanes:                100,
		IterationTime:        time.Microsecond,
		DefaultBandwidthGBps: 1,
		MemoryBytes:          1 << 30,
	}, zap.NewNop())
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

var balanced = []command.Command{
	{Kind: command.ComputeKind, GlobalSize: 100, Tripcount: 10},
	{Kind: command.TransferKind(device.HostHeap, device.Local), GlobalSize: 2500},
}

func TestRunner_Serial(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 3, Queues: -1}, zap.NewNop())
	res, err := r.Run(context.Background(), Serial, balanced)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Microsecond, res.Total)
	assert.Equal(t, []time.Duration{10 * time.Microsecond, 10 * time.Microsecond}, res.PerCommand)
	assert.Len(t, res.Samples, 3)
	assert.Equal(t, 1, res.Contexts)
	assert.Nil(t, res.DeviceTimes)
}

func TestRunner_ConcurrentQueues(t *testing.T) {
	for _, mode := range []Mode{InOrder, OutOfOrder, NoWait} {
		t.Run(string(mode), func(t *testing.T) {
			r := NewRunner(newSimDevice(t), Options{Repetitions: 2, Queues: -1}, zap.NewNop())
			res, err := r.Run(context.Background(), mode, balanced)
			require.NoError(t, err)

			assert.Equal(t, 10*time.Microsecond, res.Total)
			for _, d := range res.PerCommand {
				assert.Equal(t, Unmeasured, d)
			}
		})
	}
}

func TestRunner_SharedInOrderContextSerializes(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 1, Queues: 1}, zap.NewNop())
	res, err := r.Run(context.Background(), InOrder, balanced)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Contexts)
	assert.Equal(t, 20*time.Microsecond, res.Total)
}

func TestRunner_Profiling(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 2, Queues: -1, Profiling: true}, zap.NewNop())
	res, err := r.Run(context.Background(), OutOfOrder, balanced)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Microsecond, 10 * time.Microsecond}, res.DeviceTimes)
}

func TestRunner_BestTotalIsMinimum(t *testing.T) {
	dev := device.NewCPUDevice(zap.NewNop())
	t.Cleanup(func() { _ = dev.Close() })
	cmds := []command.Command{
		{Kind: command.ComputeKind, GlobalSize: 64, Tripcount: 20},
		{Kind: command.TransferKind(device.Pinned, device.Local), GlobalSize: 4096},
	}

	for _, mode := range []Mode{Serial, HostThreads} {
		t.Run(string(mode), func(t *testing.T) {
			r := NewRunner(dev, Options{Repetitions: 5, Queues: -1}, zap.NewNop())
			res, err := r.Run(context.Background(), mode, cmds)
			require.NoError(t, err)
			require.Len(t, res.Samples, 5)
			for _, s := range res.Samples {
				assert.LessOrEqual(t, res.Total, s)
			}
			if mode == Serial {
				var sum time.Duration
				for _, d := range res.PerCommand {
					sum += d
				}
				assert.LessOrEqual(t, res.Total, sum)
			}
		})
	}
}

func TestRunner_HostThreadsNeedsCapability(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 1}, zap.NewNop())
	_, err := r.Run(context.Background(), HostThreads, balanced)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bencherr.ErrConfiguration))
}

func TestRunner_AllocationFailureIsFatal(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 1}, zap.NewNop())
	_, err := r.Run(context.Background(), Serial, []command.Command{
		{Kind: command.TransferKind(device.HostHeap, device.Local), GlobalSize: 1 << 29},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bencherr.ErrAllocation))
}

func TestRunner_NoCommands(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 1}, zap.NewNop())
	_, err := r.Run(context.Background(), Serial, nil)
	assert.True(t, errors.Is(err, bencherr.ErrConfiguration))
}

func TestRunner_ZeroSizeCommandsRun(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 2}, zap.NewNop())
	res, err := r.Run(context.Background(), InOrder, []command.Command{
		{Kind: command.ComputeKind, GlobalSize: 0, Tripcount: 10},
		{Kind: command.TransferKind(device.HostHeap, device.Local), GlobalSize: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.Total)
	assert.Len(t, res.Samples, 2)
}

func TestRunner_UnknownMode(t *testing.T) {
	r := NewRunner(newSimDevice(t), Options{Repetitions: 1}, zap.NewNop())
	var err error
	require.NotPanics(t, func() {
		_, err = r.Run(context.Background(), Mode("sideways"), balanced)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bencherr.ErrConfiguration))
}

func TestRunner_HostThreadsStopsWhenCancelled(t *testing.T) {
	dev := device.NewCPUDevice(zap.NewNop())
	t.Cleanup(func() { _ = dev.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(dev, Options{Repetitions: 1}, zap.NewNop())
	_, err := r.Run(ctx, HostThreads, []command.Command{
		{Kind: command.ComputeKind, GlobalSize: 64, Tripcount: 20},
		{Kind: command.TransferKind(device.HostHeap, device.Local), GlobalSize: 64},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
