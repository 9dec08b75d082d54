package config

import (
	"os"
	"time"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"gopkg.in/yaml.v3"
)

const (
	BackendCPU = "cpu"
	BackendSim = "sim"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Device  DeviceConfig `yaml:"device"`
	Bench   BenchConfig  `yaml:"bench"`
	Metrics struct {
		// Textfile is a node_exporter textfile collector target written at exit.
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Report struct {
		Path string `yaml:"path"`
		Env  string `yaml:"env"`
	} `yaml:"report"`
}

type DeviceConfig struct {
	Backend string    `yaml:"backend"`
	Sim     SimConfig `yaml:"sim"`
}

// SimConfig describes the virtual accelerator used by the sim backend.
type SimConfig struct {
	ComputeSlots  int           `yaml:"computeSlots"`
	Lanes         int           `yaml:"lanes"`
	IterationTime time.Duration `yaml:"iterationTime"`
	LaunchLatency time.Duration `yaml:"launchLatency"`
	CopyLatency   time.Duration `yaml:"copyLatency"`
	// BandwidthGBps is keyed by transfer direction, e.g. "HD" or "DM".
	BandwidthGBps        map[string]float64 `yaml:"bandwidthGBps"`
	DefaultBandwidthGBps float64            `yaml:"defaultBandwidthGBps"`
	MemoryBytes          int64              `yaml:"memoryBytes"`
}

type BenchConfig struct {
	Repetitions        int     `yaml:"repetitions"`
	Queues             int     `yaml:"queues"`
	Tolerance          float64 `yaml:"tolerance"`
	UnbalanceThreshold float64 `yaml:"unbalanceThreshold"`
	DefaultMemoryBytes int64   `yaml:"defaultMemoryBytes"`
	EnableProfiling    bool    `yaml:"enableProfiling"`
	// Parameters holds literal tuning values such as tripcount_C or globalsize_MD.
	Parameters map[string]int64 `yaml:"parameters"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Device = DeviceConfig{
		Backend: BackendCPU,
		Sim: SimConfig{
			ComputeSlots:         1,
			Lanes:                1024,
			IterationTime:        25 * time.Nanosecond,
			LaunchLatency:        0,
			CopyLatency:          0,
			BandwidthGBps:        map[string]float64{},
			DefaultBandwidthGBps: 20,
			MemoryBytes:          16 << 30,
		},
	}
	c.Bench = BenchConfig{
		Repetitions:        10,
		Queues:             -1,
		Tolerance:          0.3,
		UnbalanceThreshold: 1.5,
		DefaultMemoryBytes: 1e9,
		Parameters:         map[string]int64{},
	}
	return &c
}

// LoadConfig reads path over the defaults, so omitted keys keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values the harness cannot run with.
func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendCPU, BackendSim:
	default:
		return bencherr.Configf("unknown device backend %q", c.Device.Backend)
	}
	if c.Bench.Repetitions < 1 {
		return bencherr.Configf("repetitions must be at least 1, got %d", c.Bench.Repetitions)
	}
	if c.Bench.Tolerance < 0 {
		return bencherr.Configf("tolerance must not be negative, got %g", c.Bench.Tolerance)
	}
	if c.Bench.Queues == 0 || c.Bench.Queues < -1 {
		return bencherr.Configf("queues must be -1 (automatic) or positive, got %d", c.Bench.Queues)
	}
	if c.Device.Backend == BackendSim {
		s := c.Device.Sim
		if s.ComputeSlots < 1 || s.Lanes < 1 {
			return bencherr.Configf("sim device needs at least one compute slot and lane")
		}
		if s.DefaultBandwidthGBps <= 0 {
			return bencherr.Configf("sim device default bandwidth must be positive")
		}
	}
	return nil
}
