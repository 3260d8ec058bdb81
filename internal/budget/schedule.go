package budget

import (
	"fmt"
	"time"
)

// Window is one weekday's allowed interval in "HH:MM" wall-clock strings.
// A window whose start is after its end wraps past midnight.
type Window struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// Schedule maps a weekday key to its allowed window. Keys are "0" (Monday)
// through "6" (Sunday), the encoding used by the remote store. An empty
// schedule means unrestricted hours; a day missing from a non-empty schedule
// is fully disallowed.
type Schedule map[string]Window

// weekdayKey converts Go's Sunday-based weekday to the remote store's
// Monday-based key.
func weekdayKey(t time.Time) string {
	return fmt.Sprintf("%d", (int(t.Weekday())+6)%7)
}

func parseClock(s string) (minuteOfDay int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the instant falls inside the allowed hours.
func (s Schedule) Contains(now time.Time) bool {
	if len(s) == 0 {
		return true
	}

	window, ok := s[weekdayKey(now)]
	if !ok {
		return false
	}

	start, err := parseClock(window.Start)
	if err != nil {
		// Unparseable schedule never locks the machine.
		return true
	}
	end, err := parseClock(window.End)
	if err != nil {
		return true
	}

	current := now.Hour()*60 + now.Minute()
	if start <= end {
		return start <= current && current <= end
	}
	// Overnight window, e.g. 20:00-02:00.
	return current >= start || current <= end
}

// Equal reports whether two schedules describe the same windows.
func (s Schedule) Equal(other Schedule) bool {
	if len(s) != len(other) {
		return false
	}
	for day, window := range s {
		if other[day] != window {
			return false
		}
	}
	return true
}
