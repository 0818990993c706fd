package core

import "time"

type Clock struct {
	startTime float64
	elapsed   float64
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.startTime != 0 {
		c.elapsed = float64(time.Now().UnixNano()) - c.startTime
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = float64(time.Now().UnixNano())
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = 0
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// ElapsedSeconds returns elapsed time converted from nanoseconds.
func (c *Clock) ElapsedSeconds() float64 {
	return c.elapsed / float64(time.Second)
}

// FixedStepAccumulator drives the deterministic simulation phase. Each frame
// the variable delta is accumulated and the simulation ticks zero or more
// times at a fixed step, carrying the remainder.
type FixedStepAccumulator struct {
	step        float64
	accumulated float64
	maxTicks    int
}

func NewFixedStepAccumulator(step float64, maxTicks int) *FixedStepAccumulator {
	if maxTicks <= 0 {
		maxTicks = 8
	}
	return &FixedStepAccumulator{step: step, maxTicks: maxTicks}
}

func (a *FixedStepAccumulator) Step() float64 {
	return a.step
}

// Advance adds delta and returns the number of fixed ticks to run this
// frame, clamped so a long stall cannot spiral the simulation.
func (a *FixedStepAccumulator) Advance(delta float64) int {
	a.accumulated += delta
	ticks := 0
	for a.accumulated >= a.step && ticks < a.maxTicks {
		a.accumulated -= a.step
		ticks++
	}
	if ticks == a.maxTicks {
		// Drop whatever is left rather than running the simulation ever further behind.
		a.accumulated = 0
	}
	return ticks
}
