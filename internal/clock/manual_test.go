package clock

import (
	"testing"
	"time"
)

func TestManualAdvanceFiresDueTimersInOrder(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	var fired []string
	clk.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "late") })
	clk.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early") })
	stopped := clk.AfterFunc(150*time.Millisecond, func() { fired = append(fired, "stopped") })
	if !stopped.Stop() {
		t.Fatalf("expected first Stop to report true")
	}

	clk.Advance(50 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatalf("expected no callbacks yet, got %v", fired)
	}
	clk.Advance(200 * time.Millisecond)
	if len(fired) != 2 || fired[0] != "early" || fired[1] != "late" {
		t.Fatalf("unexpected firing order: %v", fired)
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", clk.Pending())
	}
	if got := clk.Now(); !got.Equal(start.Add(250 * time.Millisecond)) {
		t.Fatalf("unexpected now: %s", got)
	}
}

func TestManualStopAfterFireReturnsFalse(t *testing.T) {
	t.Parallel()

	clk := NewManual(time.Unix(0, 0).UTC())
	timer := clk.AfterFunc(time.Second, func() {})
	clk.Advance(time.Second)
	if timer.Stop() {
		t.Fatalf("expected Stop after fire to report false")
	}
}
