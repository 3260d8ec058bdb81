// Package budget enforces the daily usage limit and the weekly allowed-hours
// schedule, producing block and warning actions.
package budget

import (
	"sync"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

// Action is the enforcement decision produced by one budget check.
type Action int

const (
	ActionNone Action = iota
	ActionWarning15Min
	ActionWarning5Min
	ActionBlock
	ActionOutsideHours
)

// String returns the journal/log name of the action.
func (a Action) String() string {
	switch a {
	case ActionWarning15Min:
		return "warning_15min"
	case ActionWarning5Min:
		return "warning_5min"
	case ActionBlock:
		return "block"
	case ActionOutsideHours:
		return "outside_hours"
	default:
		return "none"
	}
}

const (
	warn15Threshold = 15
	warn5Threshold  = 5
)

// Settings are the remotely configurable budget parameters, read on every
// check so settings sync takes effect without a restart.
type Settings struct {
	DailyLimitMinutes int
	Schedule          Schedule
}

// SettingsFunc supplies the current budget settings.
type SettingsFunc func() Settings

// UsageFunc supplies today's effective usage in minutes (real plus penalty).
type UsageFunc func() int

// Status is the projection of budget state pushed to the remote store.
type Status struct {
	EffectiveLimitMinutes int
	UsedMinutes           int
	RemainingMinutes      int
	ExtraMinutes          int
	RemovedMinutes        int
	Blocked               bool
}

// Engine is the budget state machine. Check is called from a single periodic
// loop; the override methods and getters are safe from any goroutine.
type Engine struct {
	settings SettingsFunc
	usage    UsageFunc
	clock    timeclock.Clock
	logger   zerolog.Logger

	mu             sync.Mutex
	blocked        bool
	warned15       bool
	warned5        bool
	extraMinutes   int
	removedMinutes int
	lastResetDate  time.Time
}

// NewEngine creates a budget engine. A nil clock uses system time.
func NewEngine(settings SettingsFunc, usage UsageFunc, clock timeclock.Clock, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = timeclock.RealClock{}
	}
	e := &Engine{
		settings: settings,
		usage:    usage,
		clock:    clock,
		logger:   logger.With().Str("component", "budget-engine").Logger(),
	}
	e.lastResetDate = dateOf(clock.Now())
	return e
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// checkDayResetLocked clears flags and overrides when the date changes.
func (e *Engine) checkDayResetLocked(now time.Time) {
	today := dateOf(now)
	if today.Equal(e.lastResetDate) {
		return
	}

	e.blocked = false
	e.warned15 = false
	e.warned5 = false
	e.extraMinutes = 0
	e.removedMinutes = 0
	e.lastResetDate = today

	e.logger.Info().
		Str("date", today.Format("2006-01-02")).
		Msg("Day rollover, budget state reset")
}

// EffectiveLimitMinutes is base + extra - removed. It is deliberately not
// floored at zero: a negative limit blocks immediately.
func (e *Engine) EffectiveLimitMinutes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectiveLimitLocked()
}

func (e *Engine) effectiveLimitLocked() int {
	return e.settings().DailyLimitMinutes + e.extraMinutes - e.removedMinutes
}

// RemainingMinutes is the floor-at-zero remainder of the effective limit.
func (e *Engine) RemainingMinutes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remainingLocked()
}

func (e *Engine) remainingLocked() int {
	remaining := e.effectiveLimitLocked() - e.usage()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsBlocked reports whether usage is currently blocked.
func (e *Engine) IsBlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blocked
}

// Check evaluates the budget state machine. Call it periodically (every
// 30s or so). Each boundary crossing emits its action exactly once.
func (e *Engine) Check() Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.checkDayResetLocked(now)

	if !e.settings().Schedule.Contains(now) {
		if !e.blocked {
			e.blocked = true
			e.logger.Warn().Msg("Outside allowed hours, blocking")
			return ActionOutsideHours
		}
		return ActionNone
	}

	remaining := e.remainingLocked()

	if remaining <= 0 && !e.blocked {
		e.blocked = true
		e.logger.Warn().
			Int("limit_minutes", e.effectiveLimitLocked()).
			Msg("Daily limit reached, blocking")
		return ActionBlock
	}

	if e.blocked && remaining > 0 {
		e.blocked = false
		e.warned15 = false
		e.warned5 = false
		e.logger.Info().
			Int("remaining_minutes", remaining).
			Msg("Budget recovered, unblocking")
		return ActionNone
	}

	if e.blocked {
		return ActionNone
	}

	if remaining <= warn5Threshold && !e.warned5 {
		e.warned5 = true
		return ActionWarning5Min
	}
	if remaining <= warn15Threshold && !e.warned15 {
		e.warned15 = true
		return ActionWarning15Min
	}

	return ActionNone
}

// AddTime grants extra minutes for today (add_time remote command). If the
// grant pushes remaining above zero while blocked, the engine unblocks
// immediately; the caller releases the screen-lock actuator.
func (e *Engine) AddTime(minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.extraMinutes += minutes
	e.logger.Info().
		Int("minutes", minutes).
		Int("extra_total", e.extraMinutes).
		Msg("Extra time granted")

	if e.blocked && e.remainingLocked() > 0 {
		e.blocked = false
		e.warned15 = false
		e.warned5 = false
	}
}

// RemoveTime removes minutes from today's budget (remove_time remote
// command). A resulting deficit causes the next Check to block.
func (e *Engine) RemoveTime(minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removedMinutes += minutes
	e.logger.Info().
		Int("minutes", minutes).
		Int("removed_total", e.removedMinutes).
		Msg("Time removed")
}

// ForceLock blocks usage regardless of schedule and limit. Sticky until the
// next normal transition (or ForceUnlock) overrides it.
func (e *Engine) ForceLock() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.blocked = true
	e.logger.Warn().Msg("Force lock")
}

// ForceUnlock clears the block and the warn flags.
func (e *Engine) ForceUnlock() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.blocked = false
	e.warned15 = false
	e.warned5 = false
	e.logger.Info().Msg("Force unlock")
}

// Snapshot returns the budget status projection for sync and display.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		EffectiveLimitMinutes: e.effectiveLimitLocked(),
		UsedMinutes:           e.usage(),
		RemainingMinutes:      e.remainingLocked(),
		ExtraMinutes:          e.extraMinutes,
		RemovedMinutes:        e.removedMinutes,
		Blocked:               e.blocked,
	}
}
