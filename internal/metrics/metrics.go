package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Benchmark Runner Metrics
	RepetitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concbench_repetition_duration_us",
		Help:    "Duration of one benchmark repetition in microseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 20), // 10us to ~5s
	}, []string{"phase", "mode"})

	CommandBestTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "concbench_command_best_time_us",
		Help: "Best serial time of each command in microseconds",
	}, []string{"index", "command"})

	BestTotalTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "concbench_best_total_time_us",
		Help: "Best total time of the final runs in microseconds",
	}, []string{"mode"})

	// Verdict Metrics
	Speedup = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "concbench_speedup",
		Help: "Speedup of the last run relative to serial execution",
	}, []string{"kind"})

	VerdictTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concbench_verdict_total",
		Help: "Total number of verdicts by outcome",
	}, []string{"outcome"})

	UnbalancedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concbench_unbalanced_total",
		Help: "Runs whose commands were too unbalanced to overlap well",
	})

	// Autotuner Metrics
	TunedParameter = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "concbench_parameter_value",
		Help: "Value used for each tuning parameter",
	}, []string{"parameter", "source"})

	// Allreduce Metrics
	AllreduceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concbench_allreduce_duration_us",
		Help:    "Slowest rank time of one all-reduce in microseconds",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	}, []string{"algorithm"})
)

// Speedup kinds.
const (
	SpeedupTheoretical = "theoretical"
	SpeedupActual      = "actual"
)

// WriteTextfile writes the default registry in the text exposition format,
// for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
