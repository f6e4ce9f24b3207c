package resilience

import "time"

// fakeClock fires After immediately, so retry-schedule tests exercise the
// real wait/attempt counting logic without blocking on real sleeps.
type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Time{} }

func (fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}
