// Package strike implements the cumulative noise-strike escalation cycle.
// Every third strike escalates from a light warning through a strong warning
// to a usage-time penalty.
package strike

import (
	"sync"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

// Action is the enforcement decision produced by one noise evaluation.
type Action int

const (
	ActionNone Action = iota
	ActionWarnLight
	ActionWarnStrong
	ActionTimePenalty
)

// String returns the journal/log name of the action.
func (a Action) String() string {
	switch a {
	case ActionWarnLight:
		return "warn_light"
	case ActionWarnStrong:
		return "warn_strong"
	case ActionTimePenalty:
		return "time_penalty"
	default:
		return "none"
	}
}

// DefaultCooldown is the minimum spacing between strikes, so one sustained
// scream does not burn through the whole cycle.
const DefaultCooldown = 10 * time.Second

// Settings are the remotely configurable strike parameters, read on every
// evaluation so settings sync takes effect without a restart.
type Settings struct {
	Enabled         bool
	ScreamThreshold float64
	PenaltyMinutes  int
}

// SettingsFunc supplies the current strike settings.
type SettingsFunc func() Settings

// Engine is the strike state machine. ProcessNoise is called from the noise
// monitor goroutine; the getters are safe from any goroutine.
type Engine struct {
	settings SettingsFunc
	cooldown time.Duration
	clock    timeclock.Clock
	logger   zerolog.Logger

	mu         sync.Mutex
	count      int
	lastStrike time.Time
}

// NewEngine creates a strike engine. A zero cooldown falls back to
// DefaultCooldown; a nil clock uses system time.
func NewEngine(settings SettingsFunc, cooldown time.Duration, clock timeclock.Clock, logger zerolog.Logger) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = timeclock.RealClock{}
	}
	return &Engine{
		settings: settings,
		cooldown: cooldown,
		clock:    clock,
		logger:   logger.With().Str("component", "strike-engine").Logger(),
	}
}

// ProcessNoise evaluates one sound level. It returns ActionNone while the
// feature is disabled, the level is below the scream threshold, or the
// cooldown since the previous strike has not elapsed. Otherwise it records a
// strike and returns the action for the new cycle position.
func (e *Engine) ProcessNoise(level float64) Action {
	s := e.settings()
	if !s.Enabled {
		return ActionNone
	}
	if level < s.ScreamThreshold {
		return ActionNone
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if !e.lastStrike.IsZero() && now.Sub(e.lastStrike) < e.cooldown {
		return ActionNone
	}

	e.count++
	e.lastStrike = now

	e.logger.Warn().
		Int("strikes", e.count).
		Float64("level_db", level).
		Float64("threshold_db", s.ScreamThreshold).
		Msg("Noise strike recorded")

	switch e.count % 3 {
	case 1:
		return ActionWarnLight
	case 2:
		return ActionWarnStrong
	default: // multiple of 3
		return ActionTimePenalty
	}
}

// Strikes returns the cumulative strike count.
func (e *Engine) Strikes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// CyclePosition returns the position within the current escalation cycle:
// 1, 2, or 3. Zero strikes yields 0.
func (e *Engine) CyclePosition() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count == 0 {
		return 0
	}
	if mod := e.count % 3; mod != 0 {
		return mod
	}
	return 3
}

// PenaltyCount returns how many time penalties the cycle has produced.
func (e *Engine) PenaltyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count / 3
}

// Reset zeroes the strike count and clears the cooldown. Reached locally
// after guardian authentication or via the reset_strikes remote command.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.count = 0
	e.lastStrike = time.Time{}
	e.logger.Info().Msg("Strikes reset")
}
