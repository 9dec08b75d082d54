package simdevice

import "gitlab.com/akita/akita/v3/sim"

// readyEvent fires when a submission no longer waits on its predecessor.
type readyEvent struct {
	time    sim.VTimeInSec
	handler sim.Handler
	op      *op
}

func (e readyEvent) Time() sim.VTimeInSec {
	return e.time
}

func (e readyEvent) Handler() sim.Handler {
	return e.handler
}

func (e readyEvent) IsSecondary() bool {
	return false
}

// completeEvent fires when a submission releases its resource.
type completeEvent struct {
	time    sim.VTimeInSec
	handler sim.Handler
	op      *op
}

func (e completeEvent) Time() sim.VTimeInSec {
	return e.time
}

func (e completeEvent) Handler() sim.Handler {
	return e.handler
}

func (e completeEvent) IsSecondary() bool {
	return false
}
