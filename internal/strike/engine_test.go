package strike

import (
	"testing"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

func newTestEngine(enabled bool, threshold float64, clock timeclock.Clock) *Engine {
	settings := func() Settings {
		return Settings{Enabled: enabled, ScreamThreshold: threshold, PenaltyMinutes: 30}
	}
	return NewEngine(settings, 10*time.Second, clock, zerolog.Nop())
}

func TestProcessNoiseEscalation(t *testing.T) {
	clock := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(true, 85, clock)

	// Strikes 1..6 walk the cycle twice.
	want := []Action{
		ActionWarnLight, ActionWarnStrong, ActionTimePenalty,
		ActionWarnLight, ActionWarnStrong, ActionTimePenalty,
	}
	for i, w := range want {
		if got := e.ProcessNoise(90); got != w {
			t.Fatalf("strike %d: got %v, want %v", i+1, got, w)
		}
		clock.Advance(11 * time.Second)
	}
	if e.Strikes() != 6 {
		t.Errorf("Strikes() = %d, want 6", e.Strikes())
	}
	if e.PenaltyCount() != 2 {
		t.Errorf("PenaltyCount() = %d, want 2", e.PenaltyCount())
	}
}

func TestProcessNoiseCooldown(t *testing.T) {
	// Samples of 90dB at t=0, t=3s, t=12s: the second falls inside the
	// cooldown, the third lands after it.
	clock := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(true, 85, clock)

	if got := e.ProcessNoise(90); got != ActionWarnLight {
		t.Fatalf("t=0: got %v, want %v", got, ActionWarnLight)
	}
	clock.Advance(3 * time.Second)
	if got := e.ProcessNoise(90); got != ActionNone {
		t.Fatalf("t=3s: got %v, want %v (cooldown)", got, ActionNone)
	}
	clock.Advance(9 * time.Second)
	if got := e.ProcessNoise(90); got != ActionWarnStrong {
		t.Fatalf("t=12s: got %v, want %v", got, ActionWarnStrong)
	}
	if e.Strikes() != 2 {
		t.Errorf("Strikes() = %d, want 2", e.Strikes())
	}
}

func TestProcessNoiseBelowThreshold(t *testing.T) {
	e := newTestEngine(true, 85, &timeclock.TestClock{CurrentTime: time.Now()})

	if got := e.ProcessNoise(84.9); got != ActionNone {
		t.Errorf("got %v, want %v", got, ActionNone)
	}
	if e.Strikes() != 0 {
		t.Errorf("Strikes() = %d, want 0", e.Strikes())
	}
}

func TestProcessNoiseDisabled(t *testing.T) {
	e := newTestEngine(false, 85, &timeclock.TestClock{CurrentTime: time.Now()})

	if got := e.ProcessNoise(120); got != ActionNone {
		t.Errorf("got %v, want %v", got, ActionNone)
	}
}

func TestCyclePosition(t *testing.T) {
	tests := []struct {
		strikes int
		want    int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 1},
		{6, 3},
		{7, 1},
	}

	for _, tt := range tests {
		clock := &timeclock.TestClock{CurrentTime: time.Now()}
		e := newTestEngine(true, 85, clock)
		for i := 0; i < tt.strikes; i++ {
			e.ProcessNoise(90)
			clock.Advance(time.Minute)
		}
		if got := e.CyclePosition(); got != tt.want {
			t.Errorf("CyclePosition() after %d strikes = %d, want %d", tt.strikes, got, tt.want)
		}
	}
}

func TestReset(t *testing.T) {
	clock := &timeclock.TestClock{CurrentTime: time.Now()}
	e := newTestEngine(true, 85, clock)
	e.ProcessNoise(90)
	e.Reset()

	if e.Strikes() != 0 {
		t.Errorf("Strikes() after reset = %d, want 0", e.Strikes())
	}
	// Cooldown is cleared: the next scream strikes immediately.
	if got := e.ProcessNoise(90); got != ActionWarnLight {
		t.Errorf("after reset: got %v, want %v", got, ActionWarnLight)
	}
}
