package actuate

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLockUnlockIdempotent(t *testing.T) {
	calls := 0
	la := NewLocalActions(zerolog.Nop())
	la.LockFunc = func() error {
		calls++
		return nil
	}

	if err := la.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := la.Lock(); err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	if calls != 1 {
		t.Errorf("lock hook called %d times, want 1", calls)
	}
	if !la.Locked() {
		t.Error("Locked() = false after Lock")
	}

	if err := la.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if la.Locked() {
		t.Error("Locked() = true after Unlock")
	}
}

func TestLockHookFailureKeepsState(t *testing.T) {
	la := NewLocalActions(zerolog.Nop())
	la.LockFunc = func() error { return errors.New("no session") }

	if err := la.Lock(); err == nil {
		t.Fatal("expected error from failing hook")
	}
	if la.Locked() {
		t.Error("state changed despite hook failure")
	}
}

func TestRuleSetCopies(t *testing.T) {
	rs := NewRuleSet()
	apps := []string{"roblox", "steam"}
	rs.SetBlockedApps(apps)
	apps[0] = "mutated"

	got := rs.BlockedApps()
	if len(got) != 2 || got[0] != "roblox" {
		t.Errorf("BlockedApps = %v", got)
	}
	got[1] = "mutated"
	if rs.BlockedApps()[1] != "steam" {
		t.Error("returned slice aliases internal state")
	}
}

func TestLogNotifierDropsOldestWhenFull(t *testing.T) {
	ln := NewLogNotifier(2, zerolog.Nop())
	ln.Notify(Notification{Title: "a"})
	ln.Notify(Notification{Title: "b"})
	ln.Notify(Notification{Title: "c"})

	first := <-ln.Pending()
	second := <-ln.Pending()
	if first.Title != "b" || second.Title != "c" {
		t.Errorf("pending = %q, %q, want b, c", first.Title, second.Title)
	}
	select {
	case n := <-ln.Pending():
		t.Errorf("unexpected extra notification %q", n.Title)
	default:
	}
}
