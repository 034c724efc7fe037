package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a clock advanced explicitly by tests.
// Params: start time passed to NewManual.
// Returns: deterministic Now and synchronous timer firing on Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	owner   *Manual
	seq     int
	fireAt  time.Time
	fn      func()
	stopped bool
	fired   bool
}

// NewManual creates manual clock positioned at start.
// Params: initial time.
// Returns: manual clock.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers callback fired once Advance passes its deadline.
// Params: delay and callback.
// Returns: stoppable timer handle.
func (m *Manual) AfterFunc(delay time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	timer := &manualTimer{owner: m, seq: m.seq, fireAt: m.now.Add(delay), fn: fn}
	m.timers = append(m.timers, timer)
	return timer
}

// Advance moves time forward and runs due callbacks in deadline order.
// Params: step duration.
// Returns: callbacks executed synchronously on caller goroutine.
func (m *Manual) Advance(step time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(step)
	due := make([]*manualTimer, 0, len(m.timers))
	pending := m.timers[:0]
	for _, timer := range m.timers {
		if timer.stopped {
			continue
		}
		if !timer.fireAt.After(m.now) {
			timer.fired = true
			due = append(due, timer)
			continue
		}
		pending = append(pending, timer)
	}
	m.timers = pending
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].fireAt.Equal(due[j].fireAt) {
			return due[i].seq < due[j].seq
		}
		return due[i].fireAt.Before(due[j].fireAt)
	})
	for _, timer := range due {
		timer.fn()
	}
}

// Pending reports number of timers not yet fired or stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, timer := range m.timers {
		if !timer.stopped {
			count++
		}
	}
	return count
}

// Stop cancels timer when it has not fired yet.
func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
