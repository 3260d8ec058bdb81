// Package storage defines the local persistence interfaces for the agent:
// the append-only event journal and the settings store. Backends live in the
// bolt and redis subpackages.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// MaxJournalEvents bounds the journal; the oldest entries are dropped first.
const MaxJournalEvents = 1000

// Store is the root storage interface.
type Store interface {
	Close() error
	Journal() JournalStore
	Settings() SettingsStore
}

// JournalStore manages the append-only event journal. Events are keyed by
// (timestamp, type) so re-syncing after a failure is idempotent on the
// remote side.
type JournalStore interface {
	// Append records an event, trimming the journal to MaxJournalEvents.
	Append(ctx context.Context, event Event) error
	// Pending returns up to limit unsynced events, oldest first.
	Pending(ctx context.Context, limit int) ([]Event, error)
	// MarkSynced flags the given events as delivered to the remote store.
	MarkSynced(ctx context.Context, keys []string) error
	// Recent returns the newest n events, newest first.
	Recent(ctx context.Context, n int) ([]Event, error)
}

// SettingsStore manages local configuration values.
type SettingsStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes a single value.
	Set(ctx context.Context, key, value string) error
	// SetBatch writes all pairs in one atomic operation, so a settings sync
	// touches the disk once instead of once per field.
	SetBatch(ctx context.Context, values map[string]string) error
	// All returns every stored key/value pair.
	All(ctx context.Context) (map[string]string, error)
}
