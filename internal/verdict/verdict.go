// Package verdict decides whether concurrent execution came close enough to
// the best speedup the command mix allows.
package verdict

import (
	"fmt"
	"time"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultTolerance          = 0.3
	DefaultUnbalanceThreshold = 1.5
)

// Outcome is the result of a comparison.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Message is the line printed for the outcome.
func (o Outcome) Message() string {
	switch o {
	case Success:
		return "SUCCESS: Close from Theoretical Speedup"
	case Failure:
		return "FAILURE: Far from Theoretical Speedup"
	}
	panic(fmt.Sprintf("verdict: invalid outcome %d", int(o)))
}

// ExitCode is the process exit status for the outcome.
func (o Outcome) ExitCode() int {
	if o == Success {
		return 0
	}
	return 1
}

// Verdict holds the speedups and the decision derived from them.
type Verdict struct {
	SerialTotal     time.Duration
	ConcurrentTotal time.Duration
	// SlowestCommand is the longest best serial time of any command.
	SlowestCommand time.Duration

	// MaxTheoreticalSpeedup is what perfect overlap would achieve.
	MaxTheoreticalSpeedup float64
	ActualSpeedup         float64
	Tolerance             float64
	// Unbalanced is set when the commands are too dissimilar for overlap to
	// pay off. It does not change the outcome.
	Unbalanced bool
	Outcome    Outcome
}

// Theoretical computes the best possible speedup of a serial result.
func Theoretical(serial *bench.Result) (slowest time.Duration, speedup float64, err error) {
	if len(serial.PerCommand) == 0 {
		return 0, 0, bencherr.Configf("serial result has no commands")
	}
	times := make([]float64, len(serial.PerCommand))
	for i, d := range serial.PerCommand {
		if d == bench.Unmeasured {
			return 0, 0, bencherr.Configf("command %d has no serial time", i)
		}
		times[i] = float64(d)
	}
	slowest = time.Duration(floats.Max(times))
	if slowest <= 0 {
		return slowest, 0, bencherr.Degeneratef("slowest command took %s", slowest)
	}
	return slowest, float64(serial.Total) / float64(slowest), nil
}

// Evaluate compares a serial and a concurrent result. Zero denominators are
// reported as degenerate measurements.
func Evaluate(serial, concurrent *bench.Result, tolerance, unbalanceThreshold float64) (*Verdict, error) {
	slowest, theoretical, err := Theoretical(serial)
	if err != nil {
		return nil, err
	}
	if concurrent.Total <= 0 || concurrent.Total == bench.Unmeasured {
		return nil, bencherr.Degeneratef("concurrent run took %s", concurrent.Total)
	}
	v := &Verdict{
		SerialTotal:           serial.Total,
		ConcurrentTotal:       concurrent.Total,
		SlowestCommand:        slowest,
		MaxTheoreticalSpeedup: theoretical,
		ActualSpeedup:         float64(serial.Total) / float64(concurrent.Total),
		Tolerance:             tolerance,
		Unbalanced:            theoretical <= unbalanceThreshold,
	}
	v.Outcome = Decide(v.MaxTheoreticalSpeedup, v.ActualSpeedup, tolerance)
	return v, nil
}

// Decide passes when the theoretical speedup is below the actual speedup
// scaled by 1+tolerance.
func Decide(theoretical, actual, tolerance float64) Outcome {
	if theoretical < (1+tolerance)*actual {
		return Success
	}
	return Failure
}
