package platform

import (
	"time"

	"github.com/coreos/go-systemd/v22/login1"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// SessionControl locks and unlocks user sessions and powers the machine off
// through systemd-logind. A nil connection (no D-Bus, non-systemd host)
// turns every call into a logged no-op.
type SessionControl struct {
	conn   *login1.Conn
	bus    *dbus.Conn
	logger zerolog.Logger
}

// NewSessionControl connects to logind. The returned control is usable even
// when the connection fails.
func NewSessionControl(logger zerolog.Logger) *SessionControl {
	logger = logger.With().Str("component", "logind").Logger()
	conn, err := login1.New()
	if err != nil {
		logger.Warn().Err(err).Msg("logind unavailable, session control disabled")
		conn = nil
	}
	// go-systemd's login1 binding has no UnlockSessions wrapper, so keep a
	// direct bus connection for that one call.
	var bus *dbus.Conn
	if conn != nil {
		bus, err = dbus.ConnectSystemBus()
		if err != nil {
			logger.Warn().Err(err).Msg("system bus unavailable, session unlock disabled")
			bus = nil
		}
	}
	return &SessionControl{conn: conn, bus: bus, logger: logger}
}

// LockSessions locks every active session.
func (sc *SessionControl) LockSessions() error {
	if sc.conn == nil {
		sc.logger.Info().Msg("Would lock sessions (logind unavailable)")
		return nil
	}
	sc.conn.LockSessions()
	return nil
}

// UnlockSessions unlocks every session.
func (sc *SessionControl) UnlockSessions() error {
	if sc.conn == nil || sc.bus == nil {
		sc.logger.Info().Msg("Would unlock sessions (logind unavailable)")
		return nil
	}
	sc.bus.Object("org.freedesktop.login1", "/org/freedesktop/login1").
		Call("org.freedesktop.login1.Manager.UnlockSessions", 0)
	return nil
}

// PowerOff shuts the machine down after the given delay.
func (sc *SessionControl) PowerOff(delay time.Duration) error {
	if sc.conn == nil {
		sc.logger.Info().Dur("delay", delay).Msg("Would power off (logind unavailable)")
		return nil
	}
	if delay > 0 {
		time.AfterFunc(delay, func() {
			sc.conn.PowerOff(false)
		})
		return nil
	}
	sc.conn.PowerOff(false)
	return nil
}

// Available reports whether logind is reachable.
func (sc *SessionControl) Available() bool {
	return sc.conn != nil
}
