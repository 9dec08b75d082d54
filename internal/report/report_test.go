package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cmds = []command.Command{
		{Kind: command.ComputeKind, GlobalSize: 1, Tripcount: 1200},
		{Kind: command.TransferKind(device.HostHeap, device.Local), GlobalSize: 250_000},
	}
	serial = &bench.Result{
		Mode:       bench.Serial,
		Total:      2000 * time.Microsecond,
		PerCommand: []time.Duration{1000 * time.Microsecond, 1000 * time.Microsecond},
		Samples:    []time.Duration{2010 * time.Microsecond, 2000 * time.Microsecond},
		Contexts:   1,
	}
	concurrent = &bench.Result{
		Mode:       bench.InOrder,
		Total:      1050 * time.Microsecond,
		PerCommand: []time.Duration{bench.Unmeasured, bench.Unmeasured},
		Samples:    []time.Duration{1050 * time.Microsecond, 1100 * time.Microsecond},
		Contexts:   2,
	}
)

func TestConsole(t *testing.T) {
	v, err := verdict.Evaluate(serial, concurrent, verdict.DefaultTolerance, verdict.DefaultUnbalanceThreshold)
	require.NoError(t, err)

	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Parameters([]command.Entry{{Param: command.ComputeKind.TunedParam(), Value: 1200}})
	c.Serial(serial, cmds)
	c.Theoretical(v.MaxTheoreticalSpeedup)
	c.Concurrent(concurrent, cmds)
	c.Speedup(v)
	c.Outcome(v)

	want := strings.Join([]string{
		"Parameters used:",
		"  tripcount_C: 1200",
		"Best Total Time Serial: 2000us",
		"  Best Time Command 0 (  C): 1000us",
		"  Best Time Command 1 ( MD): 1000us (1 GBytes/s)",
		"Maximum Theoretical Speedup: 2x",
		"Best Total Time //: 1050us (0.952381 GBytes/s)",
		"Speedup Relative to Serial: 1.90476x",
		"SUCCESS: Close from Theoretical Speedup",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTimeInfo(t *testing.T) {
	assert.Equal(t, "0us", TimeInfo(0, 4000))
	assert.Equal(t, "12us", TimeInfo(12*time.Microsecond+999, 0))
}

func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	rec := &Record{
		Env:        "ZE_AFFINITY_MASK=0.0",
		Commands:   []string{"C", "M2D"},
		Mode:       string(bench.InOrder),
		Outcome:    verdict.Success.String(),
		Params:     map[string]int64{"tripcount_C": 1200},
		Serial:     NewTiming(serial),
		Concurrent: NewTiming(concurrent),
	}
	require.NoError(t, WriteRecord(path, rec))

	got, err := ReadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Commands, got.Commands)
	assert.Equal(t, []int64{1000, 1000}, got.Serial.PerCommand)
	assert.Empty(t, got.Concurrent.PerCommand)
	assert.Equal(t, 2, got.Concurrent.Contexts)
	assert.InDelta(t, 2005, got.Serial.MeanUS, 1e-9)
	assert.InDelta(t, 7.0710678, got.Serial.StdDevUS, 1e-6)
}

func TestSummarizeFixtures(t *testing.T) {
	records, err := LoadRecords([]string{"../../fixtures/tests/report"})
	require.NoError(t, err)
	require.Len(t, records, 4)

	tables := Summarize(records)
	require.Len(t, tables, 2)

	main := tables[0]
	assert.Equal(t, "ZE_AFFINITY_MASK=0.0", main.Env)
	assert.Equal(t, []string{"in_order", "out_of_order"}, main.Modes)
	require.Len(t, main.Rows, 2)
	assert.Equal(t, "C M2D", main.Rows[0].Commands)
	assert.Equal(t, StatusSuccess, main.Rows[0].Status["in_order"])
	assert.Equal(t, StatusProfiledFailure, main.Rows[0].Status["out_of_order"])
	assert.Equal(t, "C D2M --queues 1", main.Rows[1].Commands)
	assert.Equal(t, StatusFailure, main.Rows[1].Status["in_order"])

	var buf bytes.Buffer
	require.NoError(t, WriteTables(&buf, tables))
	out := buf.String()
	assert.Contains(t, out, "ZE_AFFINITY_MASK=0.0\n")
	assert.Contains(t, out, "SUCCESS*")
	assert.Contains(t, out, "(default environment)")
}

func TestLoadRecordsMissing(t *testing.T) {
	_, err := LoadRecords([]string{"does-not-exist"})
	assert.Error(t, err)
}
