package storage

import (
	"fmt"
	"time"
)

// Event types recorded in the journal.
const (
	EventStrike       = "strike"
	EventTimePenalty  = "time_penalty"
	EventBlock        = "block"
	EventUnblock      = "unblock"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventCommand      = "command"
	EventCalibration  = "calibration"
	EventAppStarted   = "app_started"
	EventAppClosed    = "app_closed"
)

// Event is one journal entry awaiting (or already) synced to the remote
// events table.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	NoiseDB     float64   `json:"noise_db,omitempty"`
	Synced      bool      `json:"synced"`
}

// keyTimeFormat is RFC3339 with a fixed-width fractional second. Trailing
// zeros are kept so keys sort byte-wise in timestamp order; RFC3339Nano
// drops them and breaks ordering within a second.
const keyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Key is the journal key for the event: timestamp plus type, matching the
// remote upsert key so duplicates collapse on retry.
func (e Event) Key() string {
	return fmt.Sprintf("%s|%s", e.Timestamp.UTC().Format(keyTimeFormat), e.Type)
}
