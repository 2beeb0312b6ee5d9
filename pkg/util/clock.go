package util

import "time"

// Clock abstracts wall time so engine creation timestamps are testable.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock is a fixed clock for tests. Advance moves it forward.
type ManualClock struct {
	T time.Time
}

func (c *ManualClock) Now() time.Time { return c.T }

func (c *ManualClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
