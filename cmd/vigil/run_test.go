package main

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kidwatch/vigil/internal/actuate"
	"github.com/kidwatch/vigil/internal/noise"
	"github.com/kidwatch/vigil/internal/storage"
	"github.com/kidwatch/vigil/internal/strike"
	"github.com/kidwatch/vigil/internal/syncer"
	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/kidwatch/vigil/internal/usage"
)

// A short scream on top of a quiet window must strike even though the
// window average stays far below the threshold.
func TestNoiseHandlerStrikesOnInstantaneousLevel(t *testing.T) {
	clock := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	state := syncer.NewState(zerolog.Nop())
	engine := strike.NewEngine(state.StrikeSettings, strike.DefaultCooldown, clock, zerolog.Nop())
	usageClock := usage.NewClock(
		func() (time.Duration, error) { return 0, nil },
		usage.Config{}, nil, clock, zerolog.Nop(),
	)
	notifier := actuate.NewLogNotifier(4, zerolog.Nop())

	var journaled []string
	journal := func(eventType, description string, noiseDB float64) {
		journaled = append(journaled, eventType)
	}

	agg := noise.NewAggregator(10, 10)
	for i := 0; i < 99; i++ {
		agg.Ingest(40)
	}
	agg.Ingest(95)

	if avg := agg.Average(); avg >= state.StrikeSettings().ScreamThreshold {
		t.Fatalf("average = %.1f, scenario needs it below the threshold", avg)
	}
	if cur := agg.Current(); cur != 95 {
		t.Fatalf("current = %.1f, want 95", cur)
	}

	handler := noiseHandler(engine, state, usageClock, notifier, journal, zerolog.Nop())
	handler(agg.Current(), agg.Average(), agg.Peak())

	if got := engine.Strikes(); got != 1 {
		t.Fatalf("strikes = %d, want 1", got)
	}
	if len(journaled) != 1 || journaled[0] != storage.EventStrike {
		t.Errorf("journaled = %v, want [%s]", journaled, storage.EventStrike)
	}
	select {
	case n := <-notifier.Pending():
		if n.Severity != actuate.SeverityWarning {
			t.Errorf("severity = %v, want %v", n.Severity, actuate.SeverityWarning)
		}
	default:
		t.Error("no notification queued for the strike")
	}

	// Quiet samples after the scream must not strike again.
	clock.Advance(time.Minute)
	agg.Ingest(40)
	handler(agg.Current(), agg.Average(), agg.Peak())
	if got := engine.Strikes(); got != 1 {
		t.Errorf("strikes after quiet sample = %d, want 1", got)
	}
}
