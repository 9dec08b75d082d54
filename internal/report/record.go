package report

import (
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/concbench/internal/bench"
	"github.com/fxnlabs/concbench/internal/device"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Record is the persisted outcome of one harness run.
type Record struct {
	Env       string           `yaml:"env"`
	Commands  []string         `yaml:"commands"`
	Args      string           `yaml:"args,omitempty"`
	Mode      string           `yaml:"mode"`
	Profiling bool             `yaml:"profiling"`
	Outcome   string           `yaml:"outcome"`
	Finished  time.Time        `yaml:"finished"`
	Device    device.Info      `yaml:"device"`
	Params    map[string]int64 `yaml:"parameters"`

	Serial     Timing `yaml:"serial"`
	Concurrent Timing `yaml:"concurrent"`

	MaxTheoreticalSpeedup float64 `yaml:"maxTheoreticalSpeedup"`
	ActualSpeedup         float64 `yaml:"actualSpeedup"`
	Unbalanced            bool    `yaml:"unbalanced"`
}

// Timing summarises the repetitions of one run in microseconds.
type Timing struct {
	Contexts   int       `yaml:"contexts"`
	BestUS     int64     `yaml:"bestUs"`
	MeanUS     float64   `yaml:"meanUs"`
	StdDevUS   float64   `yaml:"stddevUs"`
	SamplesUS  []int64   `yaml:"samplesUs"`
	PerCommand []int64   `yaml:"perCommandUs,omitempty"`
	DeviceUS   []int64   `yaml:"deviceUs,omitempty"`
}

// NewTiming converts a runner result. Unmeasured per-command times are
// left out.
func NewTiming(res *bench.Result) Timing {
	t := Timing{Contexts: res.Contexts, BestUS: res.Total.Microseconds()}
	samples := make([]float64, len(res.Samples))
	for i, s := range res.Samples {
		us := s.Microseconds()
		t.SamplesUS = append(t.SamplesUS, us)
		samples[i] = float64(us)
	}
	if len(samples) > 1 {
		t.MeanUS, t.StdDevUS = stat.MeanStdDev(samples, nil)
	} else if len(samples) == 1 {
		t.MeanUS = samples[0]
	}
	if res.Mode == bench.Serial {
		t.PerCommand = microseconds(res.PerCommand)
	}
	t.DeviceUS = microseconds(res.DeviceTimes)
	return t
}

func microseconds(ds []time.Duration) []int64 {
	var out []int64
	for _, d := range ds {
		if d == bench.Unmeasured {
			continue
		}
		out = append(out, d.Microseconds())
	}
	return out
}

// WriteRecord stores r as YAML at path.
func WriteRecord(path string, r *Record) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// ReadRecord loads a record written by WriteRecord.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse run record %s: %w", path, err)
	}
	return &r, nil
}
