package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock. After returns an already-fired channel so
// in-cycle waits complete immediately; AfterFunc callbacks are queued until
// the test calls Fire. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fake    *Fake
	Delay   time.Duration
	fn      func()
	stopped bool
}

// NewFake returns a Fake clock reporting the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// SetNow moves the reported time.
func (f *Fake) SetNow(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// After fires immediately; ladder waits do not block under the fake clock.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now()
	return ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fake: f, Delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Fire runs every pending callback synchronously and returns how many ran.
// Callbacks scheduled while firing are left pending for the next call.
func (f *Fake) Fire() int {
	f.mu.Lock()
	pending := f.timers
	f.timers = nil
	f.mu.Unlock()

	fired := 0
	for _, t := range pending {
		if t.stopped {
			continue
		}
		t.fn()
		fired++
	}
	return fired
}

// PendingDelays reports the delays of armed, unfired timers in arming order.
func (f *Fake) PendingDelays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var delays []time.Duration
	for _, t := range f.timers {
		if !t.stopped {
			delays = append(delays, t.Delay)
		}
	}
	return delays
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
