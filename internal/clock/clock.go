// Package clock abstracts the timer primitive so the agent scheduler and
// report generator can be driven deterministically in tests.
package clock

import "time"

// Clock fires callbacks and produces wait channels after a delay.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellation handle for a pending callback.
type Timer interface {
	Stop() bool
}

// New returns a Clock backed by the time package.
func New() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
