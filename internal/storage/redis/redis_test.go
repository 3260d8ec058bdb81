package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kidwatch/vigil/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := Open(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestJournalRoundTrip(t *testing.T) {
	store := openTestStore(t)
	journal := store.Journal()
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	events := []storage.Event{
		{Timestamp: base, Type: storage.EventStrike, Description: "strike 1", NoiseDB: 92},
		{Timestamp: base.Add(time.Second), Type: storage.EventTimePenalty, Description: "penalty"},
	}
	for _, event := range events {
		if err := journal.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pending, err := journal.Pending(ctx, 50)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Type != storage.EventStrike || pending[0].NoiseDB != 92 {
		t.Errorf("first pending = %+v, want the strike event", pending[0])
	}

	if err := journal.MarkSynced(ctx, []string{events[0].Key()}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, err = journal.Pending(ctx, 50)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Type != storage.EventTimePenalty {
		t.Errorf("pending after sync = %+v, want only the penalty event", pending)
	}
}

func TestJournalTrim(t *testing.T) {
	store := openTestStore(t)
	journal := store.Journal()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	total := storage.MaxJournalEvents + 10
	for i := 0; i < total; i++ {
		event := storage.Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      storage.EventSessionEnd,
		}
		if err := journal.Append(ctx, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	recent, err := journal.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != storage.MaxJournalEvents {
		t.Errorf("journal holds %d events, want %d", len(recent), storage.MaxJournalEvents)
	}
}

func TestSettings(t *testing.T) {
	store := openTestStore(t)
	settings := store.Settings()
	ctx := context.Background()

	if _, err := settings.Get(ctx, "schedule"); err != storage.ErrNotFound {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	if err := settings.SetBatch(ctx, map[string]string{
		"daily_limit_minutes": "90",
		"password_hash":       "abc",
	}); err != nil {
		t.Fatalf("set batch: %v", err)
	}

	got, err := settings.Get(ctx, "password_hash")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "abc" {
		t.Errorf("password_hash = %q, want %q", got, "abc")
	}

	all, err := settings.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d entries, want 2", len(all))
	}
}
