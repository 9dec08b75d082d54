// Package report renders benchmark results: the console listing of a run,
// the YAML run record, and the summary table over many records.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/command"
	"github.com/fxnlabs/concbench/internal/verdict"
)

// Console writes the human readable run listing.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Tuning() {
	fmt.Fprintln(c.w, "Performing Autotuning to Balance Commands Times")
}

func (c *Console) Parameters(entries []command.Entry) {
	fmt.Fprintln(c.w, "Parameters used:")
	for _, e := range entries {
		fmt.Fprintf(c.w, "  %s: %d\n", e.Param, e.Value)
	}
}

func (c *Console) Serial(res *bench.Result, cmds []command.Command) {
	fmt.Fprintf(c.w, "Best Total Time Serial: %dus\n", res.Total.Microseconds())
	for i, cmd := range cmds {
		fmt.Fprintf(c.w, "  Best Time Command %d (%3s): %s\n",
			i, cmd.Kind, TimeInfo(res.PerCommand[i], cmd.Bytes()))
	}
}

func (c *Console) Theoretical(speedup float64) {
	fmt.Fprintf(c.w, "Maximum Theoretical Speedup: %sx\n", Ratio(speedup))
}

func (c *Console) Concurrent(res *bench.Result, cmds []command.Command) {
	fmt.Fprintf(c.w, "Best Total Time //: %s\n", TimeInfo(res.Total, command.TotalBytes(cmds)))
}

func (c *Console) Speedup(v *verdict.Verdict) {
	fmt.Fprintf(c.w, "Speedup Relative to Serial: %sx\n", Ratio(v.ActualSpeedup))
}

func (c *Console) Outcome(v *verdict.Verdict) {
	fmt.Fprintln(c.w, v.Outcome.Message())
}

// TimeInfo formats a time in microseconds, with the achieved bandwidth when
// bytes were moved.
func TimeInfo(d time.Duration, bytes int64) string {
	us := d.Microseconds()
	if bytes == 0 || us <= 0 {
		return fmt.Sprintf("%dus", us)
	}
	return fmt.Sprintf("%dus (%s GBytes/s)", us, Ratio(1e-3*float64(bytes)/float64(us)))
}

// Ratio formats a speedup or bandwidth with six significant digits.
func Ratio(x float64) string {
	return fmt.Sprintf("%.6g", x)
}
