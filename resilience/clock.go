package resilience

import "time"

// Clock abstracts the passage of time so retry/backoff waits can be driven
// by a fake in tests instead of a real sleep.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
