package syncer

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kidwatch/vigil/internal/budget"
	"github.com/kidwatch/vigil/internal/remote"
	"github.com/kidwatch/vigil/internal/storage"
	"github.com/kidwatch/vigil/internal/strike"
)

// Local settings keys. The same keys back both the persisted copy and the
// remote diff, so a value survives restarts without a re-fetch.
const (
	keyDailyLimit      = "daily_limit_minutes"
	keyStrikesEnabled  = "strikes_enabled"
	keyScreamThreshold = "scream_threshold_db"
	keyStrikePenalty   = "strike_penalty_minutes"
	keySchedule        = "schedule"
	keyPasswordHash    = "password_hash"
	keyAppBlockMode    = "app_block_mode"
)

// State holds the current guardian-controlled settings. The decision engines
// read it through closures on every check, so a remote change takes effect
// on the next tick without restarts or re-wiring.
type State struct {
	mu sync.RWMutex

	dailyLimitMinutes    int
	strikesEnabled       bool
	screamThresholdDB    float64
	strikePenaltyMinutes int
	schedule             budget.Schedule
	passwordHash         string
	appBlockMode         string

	logger zerolog.Logger
}

// NewState returns a State with the built-in defaults: 120 minute limit,
// strikes enabled at 85 dB with a 10 minute penalty, unrestricted hours.
func NewState(logger zerolog.Logger) *State {
	return &State{
		dailyLimitMinutes:    120,
		strikesEnabled:       true,
		screamThresholdDB:    85,
		strikePenaltyMinutes: 10,
		schedule:             budget.Schedule{},
		appBlockMode:         "blacklist",
		logger:               logger.With().Str("component", "settings").Logger(),
	}
}

// SeedDefaults replaces the built-in defaults with configured ones. Call it
// before Load; persisted and remote values still win over both.
func (s *State) SeedDefaults(limitMinutes int, strikesEnabled bool, thresholdDB float64, penaltyMinutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limitMinutes > 0 {
		s.dailyLimitMinutes = limitMinutes
	}
	s.strikesEnabled = strikesEnabled
	if thresholdDB > 0 {
		s.screamThresholdDB = thresholdDB
	}
	if penaltyMinutes > 0 {
		s.strikePenaltyMinutes = penaltyMinutes
	}
}

// Load restores persisted settings from the local store. Missing keys keep
// their defaults.
func (s *State) Load(ctx context.Context, store storage.SettingsStore) error {
	values, err := store.All(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := values[keyDailyLimit]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.dailyLimitMinutes = n
		}
	}
	if v, ok := values[keyStrikesEnabled]; ok {
		s.strikesEnabled = v == "true"
	}
	if v, ok := values[keyScreamThreshold]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.screamThresholdDB = f
		}
	}
	if v, ok := values[keyStrikePenalty]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.strikePenaltyMinutes = n
		}
	}
	if v, ok := values[keySchedule]; ok && v != "" {
		var sched budget.Schedule
		if err := json.Unmarshal([]byte(v), &sched); err == nil {
			s.schedule = sched
		} else {
			s.logger.Warn().Err(err).Msg("Ignoring corrupt stored schedule")
		}
	}
	if v, ok := values[keyPasswordHash]; ok {
		s.passwordHash = v
	}
	if v, ok := values[keyAppBlockMode]; ok && v != "" {
		s.appBlockMode = v
	}
	return nil
}

// Apply merges a fetched pc_settings row into the state and returns the
// changed keys as a batch for the local store. Nil fields in the row leave
// the current value untouched. An empty map means nothing changed.
func (s *State) Apply(row remote.SettingsRow) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[string]string)

	if row.DailyLimitMinutes != nil && *row.DailyLimitMinutes != s.dailyLimitMinutes {
		s.dailyLimitMinutes = *row.DailyLimitMinutes
		changed[keyDailyLimit] = strconv.Itoa(s.dailyLimitMinutes)
	}
	if row.StrikesEnabled != nil && *row.StrikesEnabled != s.strikesEnabled {
		s.strikesEnabled = *row.StrikesEnabled
		changed[keyStrikesEnabled] = strconv.FormatBool(s.strikesEnabled)
	}
	if row.ScreamThresholdDB != nil && *row.ScreamThresholdDB != s.screamThresholdDB {
		s.screamThresholdDB = *row.ScreamThresholdDB
		changed[keyScreamThreshold] = strconv.FormatFloat(s.screamThresholdDB, 'f', -1, 64)
	}
	if row.StrikePenaltyMinutes != nil && *row.StrikePenaltyMinutes != s.strikePenaltyMinutes {
		s.strikePenaltyMinutes = *row.StrikePenaltyMinutes
		changed[keyStrikePenalty] = strconv.Itoa(s.strikePenaltyMinutes)
	}
	if row.Schedule != nil {
		sched := make(budget.Schedule, len(row.Schedule))
		for day, w := range row.Schedule {
			sched[day] = budget.Window{Start: w.Start, End: w.End}
		}
		if !sched.Equal(s.schedule) {
			s.schedule = sched
			if buf, err := json.Marshal(sched); err == nil {
				changed[keySchedule] = string(buf)
			}
		}
	}
	if row.PasswordHash != nil && *row.PasswordHash != s.passwordHash {
		s.passwordHash = *row.PasswordHash
		changed[keyPasswordHash] = s.passwordHash
	}
	if row.AppBlockMode != nil && *row.AppBlockMode != s.appBlockMode {
		s.appBlockMode = *row.AppBlockMode
		changed[keyAppBlockMode] = s.appBlockMode
	}

	for key := range changed {
		s.logger.Info().Str("key", key).Msg("Setting updated from remote")
	}
	return changed
}

// BudgetSettings is the budget engine's settings source.
func (s *State) BudgetSettings() budget.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return budget.Settings{
		DailyLimitMinutes: s.dailyLimitMinutes,
		Schedule:          s.schedule,
	}
}

// StrikeSettings is the strike engine's settings source.
func (s *State) StrikeSettings() strike.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strike.Settings{
		Enabled:         s.strikesEnabled,
		ScreamThreshold: s.screamThresholdDB,
		PenaltyMinutes:  s.strikePenaltyMinutes,
	}
}

// PasswordHash returns the guardian password hash, empty when unset.
func (s *State) PasswordHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passwordHash
}

// AppBlockMode returns the blocking mode, "blacklist" or "whitelist".
func (s *State) AppBlockMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appBlockMode
}
