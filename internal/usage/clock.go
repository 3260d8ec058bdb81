// Package usage tracks active screen time: idle/active sessions partitioned
// by calendar day, noise penalties, and foreground app/site aggregates.
package usage

import (
	"sync"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is how long without input before the user counts as
// idle.
const DefaultIdleTimeout = 5 * time.Minute

// DefaultTickInterval is the cadence of the idle/active probe loop.
const DefaultTickInterval = 5 * time.Second

// Session is one contiguous stretch of active use. Once EndedAt is set the
// session is immutable.
type Session struct {
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationMinutes int        `json:"duration_minutes"`
}

// IdleFunc reports how long the user has been idle. Implementations wrap the
// platform input probe, which lives outside this module.
type IdleFunc func() (time.Duration, error)

// SessionCallback is invoked when a session opens or closes.
type SessionCallback func(event string, at time.Time)

// Clock is the usage clock: an Idle/Active state machine whose tick loop is
// the sole writer. Getters are safe from any goroutine.
type Clock struct {
	idleFunc     IdleFunc
	idleTimeout  time.Duration
	tickInterval time.Duration
	onSession    SessionCallback
	clock        timeclock.Clock
	logger       zerolog.Logger

	mu              sync.Mutex
	active          bool
	sessionStart    time.Time
	today           time.Time // midnight of the tracked date
	accumulated     time.Duration
	penalty         time.Duration
	sessionsToday   []Session
	pendingSessions []Session

	stopChan chan struct{}
	done     chan struct{}
}

// Config holds usage clock configuration.
type Config struct {
	IdleTimeout  time.Duration
	TickInterval time.Duration
}

// NewClock creates a usage clock. Zero config fields fall back to defaults;
// a nil clock uses system time.
func NewClock(idleFunc IdleFunc, cfg Config, onSession SessionCallback, clock timeclock.Clock, logger zerolog.Logger) *Clock {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if clock == nil {
		clock = timeclock.RealClock{}
	}
	c := &Clock{
		idleFunc:     idleFunc,
		idleTimeout:  cfg.IdleTimeout,
		tickInterval: cfg.TickInterval,
		onSession:    onSession,
		clock:        clock,
		logger:       logger.With().Str("component", "usage-clock").Logger(),
	}
	c.today = midnight(clock.Now())
	return c
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Start begins the tick loop. The user is assumed active at startup: the
// agent launches with the machine, so someone just turned it on.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.stopChan != nil {
		c.mu.Unlock()
		return
	}
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	c.startSessionLocked(c.clock.Now())
	stopChan, done := c.stopChan, c.done
	c.mu.Unlock()

	go c.run(stopChan, done)
	c.logger.Info().
		Dur("idle_timeout", c.idleTimeout).
		Msg("Usage clock started")
}

// Stop terminates the tick loop, closing any open session.
func (c *Clock) Stop() {
	c.mu.Lock()
	stopChan, done := c.stopChan, c.done
	c.stopChan, c.done = nil, nil
	c.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.logger.Warn().Msg("Usage clock did not stop in time")
	}

	c.mu.Lock()
	if c.active {
		c.endSessionLocked(c.clock.Now())
	}
	c.mu.Unlock()
}

func (c *Clock) run(stopChan, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick performs one probe cycle: day-rollover check, then the idle/active
// transition. Exported so tests and the host loop can drive it directly.
func (c *Clock) Tick() {
	idle, err := c.idleFunc()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Idle probe failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.checkDayResetLocked(now)

	if c.active {
		if idle >= c.idleTimeout {
			c.endSessionLocked(now)
		}
	} else {
		if idle < c.idleTimeout {
			c.startSessionLocked(now)
		}
	}
}

// checkDayResetLocked resets all daily counters when the wall-clock date
// changes, closing the open session against the old day first.
func (c *Clock) checkDayResetLocked(now time.Time) {
	today := midnight(now)
	if today.Equal(c.today) {
		return
	}

	if c.active {
		c.endSessionLocked(now)
		// Re-open immediately: the user is still at the keyboard, the new
		// day just gets a fresh session.
		defer c.startSessionLocked(now)
	}

	c.logger.Info().
		Str("date", today.Format("2006-01-02")).
		Msg("Day rollover, usage counters reset")

	c.today = today
	c.accumulated = 0
	c.penalty = 0
	c.sessionsToday = nil
}

func (c *Clock) startSessionLocked(now time.Time) {
	c.active = true
	c.sessionStart = now
	if c.onSession != nil {
		go c.onSession("started", now)
	}
}

func (c *Clock) endSessionLocked(now time.Time) {
	if c.sessionStart.IsZero() {
		c.active = false
		return
	}

	duration := now.Sub(c.sessionStart)
	if duration < 0 {
		// Clock went backwards; never record negative usage.
		duration = 0
	}

	ended := now
	session := Session{
		StartedAt:       c.sessionStart,
		EndedAt:         &ended,
		DurationMinutes: int(duration / time.Minute),
	}
	c.sessionsToday = append(c.sessionsToday, session)
	c.pendingSessions = append(c.pendingSessions, session)
	c.accumulated += duration
	c.active = false
	c.sessionStart = time.Time{}

	c.logger.Info().
		Int("duration_minutes", session.DurationMinutes).
		Msg("Usage session ended")

	if c.onSession != nil {
		go c.onSession("ended", now)
	}
}

// IsActive reports whether a session is currently open.
func (c *Clock) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// usageTodayLocked is today's active time including the open session.
func (c *Clock) usageTodayLocked() time.Duration {
	total := c.accumulated
	if c.active && !c.sessionStart.IsZero() {
		if elapsed := c.clock.Now().Sub(c.sessionStart); elapsed > 0 {
			total += elapsed
		}
	}
	return total
}

// UsageTodayMinutes returns today's active minutes, open session included.
func (c *Clock) UsageTodayMinutes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.usageTodayLocked() / time.Minute)
}

// PenaltyMinutes returns the noise-penalty minutes accrued today.
func (c *Clock) PenaltyMinutes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.penalty / time.Minute)
}

// EffectiveUsageMinutes returns real usage plus penalties, the number the
// budget engine charges against the daily limit.
func (c *Clock) EffectiveUsageMinutes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.usageTodayLocked()/time.Minute) + int(c.penalty/time.Minute)
}

// ApplyPenalty adds penalty minutes without touching the session state.
func (c *Clock) ApplyPenalty(minutes int) {
	if minutes <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.penalty += time.Duration(minutes) * time.Minute
	c.logger.Info().
		Int("penalty_minutes", minutes).
		Int("penalty_total_minutes", int(c.penalty/time.Minute)).
		Msg("Time penalty applied")
}

// TakePendingSessions drains the queue of closed sessions awaiting sync.
// Each closed session is returned exactly once.
func (c *Clock) TakePendingSessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.pendingSessions
	c.pendingSessions = nil
	return pending
}

// SessionsToday returns today's sessions; an open session is included as a
// projection with a nil EndedAt.
func (c *Clock) SessionsToday() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions := make([]Session, len(c.sessionsToday))
	copy(sessions, c.sessionsToday)
	if c.active && !c.sessionStart.IsZero() {
		elapsed := c.clock.Now().Sub(c.sessionStart)
		if elapsed < 0 {
			elapsed = 0
		}
		sessions = append(sessions, Session{
			StartedAt:       c.sessionStart,
			DurationMinutes: int(elapsed / time.Minute),
		})
	}
	return sessions
}

// Date returns the calendar day the counters currently belong to.
func (c *Clock) Date() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.today
}
