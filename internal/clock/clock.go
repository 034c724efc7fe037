package clock

import "time"

// Clock provides time reads and delayed callbacks for deterministic tests.
// Params: none.
// Returns: current wall-clock time and scheduled timers.
type Clock interface {
	Now() time.Time
	AfterFunc(delay time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled callback.
// Params: none.
// Returns: false from Stop when callback already fired or was stopped.
type Timer interface {
	Stop() bool
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc schedules fn on its own goroutine after delay.
// Params: delay and callback.
// Returns: runtime timer handle.
func (RealClock) AfterFunc(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}
