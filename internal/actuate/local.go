package actuate

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LocalActions is the default ScreenLocker and SystemActions implementation.
// It tracks lock state and logs the effects it would apply; hooking in real
// platform calls happens via the optional funcs.
type LocalActions struct {
	mu     sync.Mutex
	locked bool
	logger zerolog.Logger

	// Optional platform hooks. Nil hooks mean log-only behavior.
	LockFunc     func() error
	UnlockFunc   func() error
	ShutdownFunc func(delay time.Duration) error
}

func NewLocalActions(logger zerolog.Logger) *LocalActions {
	return &LocalActions{
		logger: logger.With().Str("component", "actions").Logger(),
	}
}

func (la *LocalActions) Lock() error {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.locked {
		return nil
	}
	if la.LockFunc != nil {
		if err := la.LockFunc(); err != nil {
			return err
		}
	}
	la.locked = true
	la.logger.Info().Msg("Screen locked")
	return nil
}

func (la *LocalActions) Unlock() error {
	la.mu.Lock()
	defer la.mu.Unlock()
	if !la.locked {
		return nil
	}
	if la.UnlockFunc != nil {
		if err := la.UnlockFunc(); err != nil {
			return err
		}
	}
	la.locked = false
	la.logger.Info().Msg("Screen unlocked")
	return nil
}

func (la *LocalActions) Locked() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.locked
}

func (la *LocalActions) Shutdown(delay time.Duration) error {
	la.logger.Warn().Dur("delay", delay).Msg("Shutdown requested")
	if la.ShutdownFunc != nil {
		return la.ShutdownFunc(delay)
	}
	return nil
}

// RuleSet is the default AppBlocker and SiteBlocker implementation: a
// thread-safe holder for the guardian's blocking rules that enforcement
// loops poll.
type RuleSet struct {
	mu    sync.RWMutex
	apps  []string
	sites []string
}

func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

func (rs *RuleSet) SetBlockedApps(names []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.apps = append([]string(nil), names...)
}

func (rs *RuleSet) BlockedApps() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]string(nil), rs.apps...)
}

func (rs *RuleSet) SetBlockedSites(domains []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.sites = append([]string(nil), domains...)
}

func (rs *RuleSet) BlockedSites() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]string(nil), rs.sites...)
}
