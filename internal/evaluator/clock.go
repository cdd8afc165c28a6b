package evaluator

import "time"

// Clock supplies the evaluation instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. Values carry a monotonic reading, so
// anti-spam intervals are immune to wall clock steps.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
