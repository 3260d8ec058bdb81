package storage

import (
	"sort"
	"testing"
	"time"
)

func TestEventKeysSortChronologically(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		base,
		base.Add(time.Nanosecond),
		base.Add(500 * time.Millisecond),
		base.Add(999 * time.Millisecond),
		base.Add(time.Second),
	}

	keys := make([]string, len(stamps))
	for i, ts := range stamps {
		keys[i] = Event{Timestamp: ts, Type: EventStrike}.Key()
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("keys not in chronological order:\n%q", keys)
	}
}

func TestEventKeyNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	at := time.Date(2026, 3, 2, 11, 0, 0, 0, loc)

	local := Event{Timestamp: at, Type: EventBlock}.Key()
	utc := Event{Timestamp: at.UTC(), Type: EventBlock}.Key()
	if local != utc {
		t.Errorf("key differs by zone: %q vs %q", local, utc)
	}
}
