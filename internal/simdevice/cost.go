package simdevice

import (
	"math"
	"time"

	"github.com/fxnlabs/concbench/internal/config"
	"github.com/fxnlabs/concbench/internal/device"
	"gitlab.com/akita/akita/v3/sim"
)

// A CostModel estimates how long a submission occupies its resource.
type CostModel interface {
	KernelCost(elements int, tripcount int64) sim.VTimeInSec
	CopyCost(src, dst device.Space, elements int) sim.VTimeInSec
}

// LinearCost charges a fixed latency plus a term linear in the work size.
// Kernels run in waves of Lanes work items; copies move bytes at the
// bandwidth configured for their direction.
type LinearCost struct {
	lanes         int
	iterationTime sim.VTimeInSec
	launchLatency sim.VTimeInSec
	copyLatency   sim.VTimeInSec
	bandwidth     map[string]float64
	defaultBW     float64
}

// NewLinearCost builds the cost model described by cfg.
func NewLinearCost(cfg config.SimConfig) *LinearCost {
	bw := make(map[string]float64, len(cfg.BandwidthGBps))
	for k, v := range cfg.BandwidthGBps {
		if v > 0 {
			bw[k] = v * 1e9
		}
	}
	return &LinearCost{
		lanes:         max(cfg.Lanes, 1),
		iterationTime: seconds(cfg.IterationTime),
		launchLatency: seconds(cfg.LaunchLatency),
		copyLatency:   seconds(cfg.CopyLatency),
		bandwidth:     bw,
		defaultBW:     cfg.DefaultBandwidthGBps * 1e9,
	}
}

func (c *LinearCost) KernelCost(elements int, tripcount int64) sim.VTimeInSec {
	waves := (elements + c.lanes - 1) / c.lanes
	return c.launchLatency +
		sim.VTimeInSec(float64(waves)*float64(tripcount))*c.iterationTime
}

func (c *LinearCost) CopyCost(src, dst device.Space, elements int) sim.VTimeInSec {
	bytes := float64(elements) * device.ElementSize
	return c.copyLatency + sim.VTimeInSec(bytes/c.BytesPerSecond(src, dst))
}

// BytesPerSecond is the copy bandwidth from src to dst.
func (c *LinearCost) BytesPerSecond(src, dst device.Space) float64 {
	if bw, ok := c.bandwidth[direction(src, dst)]; ok {
		return bw
	}
	return c.defaultBW
}

func direction(src, dst device.Space) string {
	return string([]byte{src.Letter(), dst.Letter()})
}

func seconds(d time.Duration) sim.VTimeInSec {
	return sim.VTimeInSec(d.Seconds())
}

func duration(t sim.VTimeInSec) time.Duration {
	return time.Duration(math.Round(float64(t) * float64(time.Second)))
}
