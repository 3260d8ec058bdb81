package usage

import (
	"sync"
	"testing"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

// fakeIdle is an IdleFunc backed by a settable duration.
type fakeIdle struct {
	mu   sync.Mutex
	idle time.Duration
}

func (f *fakeIdle) set(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle = d
}

func (f *fakeIdle) probe() (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle, nil
}

func newTestUsageClock(t *testing.T) (*Clock, *fakeIdle, *timeclock.TestClock) {
	t.Helper()
	idle := &fakeIdle{}
	tc := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	cfg := Config{IdleTimeout: 5 * time.Minute, TickInterval: 5 * time.Second}
	return NewClock(idle.probe, cfg, nil, tc, zerolog.Nop()), idle, tc
}

func TestSessionLifecycle(t *testing.T) {
	c, idle, tc := newTestUsageClock(t)

	// Activity opens a session.
	idle.set(0)
	c.Tick()
	if !c.IsActive() {
		t.Fatal("expected active after activity tick")
	}

	// 30 minutes of use, then the user walks away.
	tc.Advance(30 * time.Minute)
	idle.set(6 * time.Minute)
	c.Tick()

	if c.IsActive() {
		t.Fatal("expected idle after idle tick")
	}
	if got := c.UsageTodayMinutes(); got != 30 {
		t.Errorf("UsageTodayMinutes() = %d, want 30", got)
	}

	pending := c.TakePendingSessions()
	if len(pending) != 1 {
		t.Fatalf("pending sessions = %d, want 1", len(pending))
	}
	s := pending[0]
	if s.EndedAt == nil {
		t.Fatal("closed session missing EndedAt")
	}
	wantMin := int(s.EndedAt.Sub(s.StartedAt) / time.Minute)
	if s.DurationMinutes != wantMin || s.DurationMinutes != 30 {
		t.Errorf("DurationMinutes = %d, want %d", s.DurationMinutes, wantMin)
	}

	// At-most-once: the queue is drained.
	if rest := c.TakePendingSessions(); len(rest) != 0 {
		t.Errorf("second drain returned %d sessions, want 0", len(rest))
	}
}

func TestOpenSessionCountsTowardUsage(t *testing.T) {
	c, idle, tc := newTestUsageClock(t)

	idle.set(0)
	c.Tick()
	tc.Advance(12 * time.Minute)

	if got := c.UsageTodayMinutes(); got != 12 {
		t.Errorf("UsageTodayMinutes() = %d, want 12", got)
	}

	sessions := c.SessionsToday()
	if len(sessions) != 1 || sessions[0].EndedAt != nil {
		t.Fatalf("SessionsToday() = %+v, want one open session", sessions)
	}
}

func TestPenalty(t *testing.T) {
	c, idle, tc := newTestUsageClock(t)

	idle.set(0)
	c.Tick()
	tc.Advance(10 * time.Minute)

	c.ApplyPenalty(30)

	if got := c.PenaltyMinutes(); got != 30 {
		t.Errorf("PenaltyMinutes() = %d, want 30", got)
	}
	if got := c.EffectiveUsageMinutes(); got != 40 {
		t.Errorf("EffectiveUsageMinutes() = %d, want 40", got)
	}
	// Penalties do not open or close sessions.
	if !c.IsActive() {
		t.Error("penalty should not end the session")
	}
}

func TestDayRollover(t *testing.T) {
	c, idle, tc := newTestUsageClock(t)

	idle.set(0)
	c.Tick()
	tc.Advance(2 * time.Hour)
	c.ApplyPenalty(15)

	// Jump past midnight while still active.
	tc.CurrentTime = time.Date(2026, 3, 3, 0, 0, 5, 0, time.UTC)
	c.Tick()

	if got := c.UsageTodayMinutes(); got != 0 {
		t.Errorf("UsageTodayMinutes() after rollover = %d, want 0", got)
	}
	if got := c.PenaltyMinutes(); got != 0 {
		t.Errorf("PenaltyMinutes() after rollover = %d, want 0", got)
	}
	if got := c.Date(); !got.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date() = %v, want 2026-03-03", got)
	}

	// The pre-midnight session was closed and queued for sync.
	pending := c.TakePendingSessions()
	if len(pending) != 1 {
		t.Fatalf("pending sessions = %d, want 1", len(pending))
	}
	// The user never left: a fresh session opened against the new day.
	if !c.IsActive() {
		t.Error("expected a fresh session after rollover")
	}
}

func TestNegativeDurationClamped(t *testing.T) {
	c, idle, tc := newTestUsageClock(t)

	idle.set(0)
	c.Tick()

	// Wall clock stepped backwards between open and close.
	tc.CurrentTime = tc.CurrentTime.Add(-time.Hour)
	idle.set(10 * time.Minute)
	c.Tick()

	pending := c.TakePendingSessions()
	if len(pending) != 1 {
		t.Fatalf("pending sessions = %d, want 1", len(pending))
	}
	if pending[0].DurationMinutes != 0 {
		t.Errorf("DurationMinutes = %d, want 0", pending[0].DurationMinutes)
	}
	if got := c.UsageTodayMinutes(); got != 0 {
		t.Errorf("UsageTodayMinutes() = %d, want 0", got)
	}
}
