package ports

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
