// Package actuate holds the side-effect surface of the agent: screen
// locking, shutdown, app and site blocking, and user-facing notifications.
// Everything behind these interfaces is platform work; the default
// implementations only log, which keeps the agent runnable anywhere and the
// decision engines testable.
package actuate

import (
	"time"

	"github.com/rs/zerolog"
)

// ScreenLocker locks and unlocks the session.
type ScreenLocker interface {
	Lock() error
	Unlock() error
	Locked() bool
}

// SystemActions covers machine-level effects.
type SystemActions interface {
	Shutdown(delay time.Duration) error
}

// AppBlocker enforces the guardian's blocked application list.
type AppBlocker interface {
	SetBlockedApps(names []string)
	BlockedApps() []string
}

// SiteBlocker enforces the guardian's blocked domain list.
type SiteBlocker interface {
	SetBlockedSites(domains []string)
	BlockedSites() []string
}

// Severity of a notification shown to the child.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Notification is one message for the on-screen surface.
type Notification struct {
	Severity Severity
	Title    string
	Message  string
	At       time.Time
}

// Notifier delivers notifications. Notify must not block the caller.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier queues notifications on a bounded channel and logs each one.
// When the queue is full the oldest pending notification is dropped; a
// stalled display must never stall a decision engine.
type LogNotifier struct {
	queue  chan Notification
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier with the given queue capacity.
func NewLogNotifier(capacity int, logger zerolog.Logger) *LogNotifier {
	if capacity <= 0 {
		capacity = 16
	}
	return &LogNotifier{
		queue:  make(chan Notification, capacity),
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Notify queues n without blocking.
func (ln *LogNotifier) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	ln.logger.Info().
		Str("severity", n.Severity.String()).
		Str("title", n.Title).
		Str("message", n.Message).
		Msg("Notification")

	for {
		select {
		case ln.queue <- n:
			return
		default:
			select {
			case <-ln.queue:
			default:
			}
		}
	}
}

// Pending returns the channel a display surface consumes from.
func (ln *LogNotifier) Pending() <-chan Notification {
	return ln.queue
}
