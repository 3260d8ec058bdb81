package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kidwatch/vigil/internal/actuate"
	"github.com/kidwatch/vigil/internal/metrics"
	"github.com/kidwatch/vigil/internal/remote"
	"github.com/kidwatch/vigil/internal/storage"
)

// pullCommands fetches and executes queued guardian commands. Every picked
// up command reaches a terminal status; a command whose status update fails
// may be re-applied next cycle, which is logged loudly rather than hidden.
func (a *Agent) pullCommands(ctx context.Context) error {
	cmds, err := a.deps.Remote.PendingCommands(ctx)
	if err != nil {
		return err
	}

	for _, cmd := range cmds {
		status := remote.CommandStatusExecuted
		if err := a.dispatch(ctx, cmd); err != nil {
			status = remote.CommandStatusFailed
			a.logger.Error().Err(err).
				Str("command", cmd.Command).
				Str("id", cmd.ID).
				Msg("Command failed")
		} else {
			a.logger.Info().
				Str("command", cmd.Command).
				Str("id", cmd.ID).
				Msg("Command executed")
		}
		metrics.CommandsExecuted.WithLabelValues(cmd.Command, status).Inc()

		if err := a.deps.Remote.SetCommandStatus(ctx, cmd.ID, status); err != nil {
			a.logger.Warn().Err(err).
				Str("command", cmd.Command).
				Str("id", cmd.ID).
				Msg("Status update failed, command may run again next cycle")
			return err
		}
	}
	return nil
}

func (a *Agent) dispatch(ctx context.Context, cmd remote.CommandRow) error {
	switch cmd.Command {
	case remote.CommandAddTime:
		var p remote.MinutesPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("add_time payload: %w", err)
		}
		a.deps.Budget.AddTime(p.Minutes)
		a.journal(ctx, storage.EventCommand, fmt.Sprintf("guardian added %d minutes", p.Minutes))
		a.notify(actuate.SeverityInfo, "Extra time", fmt.Sprintf("You got %d extra minutes today", p.Minutes))

	case remote.CommandRemoveTime:
		var p remote.MinutesPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("remove_time payload: %w", err)
		}
		a.deps.Budget.RemoveTime(p.Minutes)
		a.journal(ctx, storage.EventCommand, fmt.Sprintf("guardian removed %d minutes", p.Minutes))
		a.notify(actuate.SeverityWarning, "Time removed", fmt.Sprintf("%d minutes were removed from today", p.Minutes))

	case remote.CommandLock:
		a.deps.Budget.ForceLock()
		if err := a.deps.Locker.Lock(); err != nil {
			return fmt.Errorf("locking screen: %w", err)
		}
		a.journal(ctx, storage.EventBlock, "guardian locked the screen")

	case remote.CommandUnlock:
		a.deps.Budget.ForceUnlock()
		if err := a.deps.Locker.Unlock(); err != nil {
			return fmt.Errorf("unlocking screen: %w", err)
		}
		a.journal(ctx, storage.EventUnblock, "guardian unlocked the screen")

	case remote.CommandShutdown:
		var p remote.ShutdownPayload
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &p); err != nil {
				return fmt.Errorf("shutdown payload: %w", err)
			}
		}
		delay := time.Duration(p.DelaySeconds) * time.Second
		a.notify(actuate.SeverityCritical, "Shutting down", "The computer will shut down shortly")
		if err := a.deps.System.Shutdown(delay); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		a.journal(ctx, storage.EventCommand, "guardian requested shutdown")

	case remote.CommandResetStrikes:
		a.deps.Strikes.Reset()
		a.journal(ctx, storage.EventCommand, "guardian reset strikes")

	case remote.CommandUpdateSettings:
		// Settings are re-fetched every cycle; nothing to do beyond
		// acknowledging.

	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (a *Agent) journal(ctx context.Context, eventType, description string) {
	err := a.deps.Store.Journal().Append(ctx, storage.Event{
		Timestamp:   a.deps.Clock.Now(),
		Type:        eventType,
		Description: description,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("type", eventType).Msg("Journal append failed")
	}
}

func (a *Agent) notify(severity actuate.Severity, title, message string) {
	if a.deps.Notifier == nil {
		return
	}
	a.deps.Notifier.Notify(actuate.Notification{
		Severity: severity,
		Title:    title,
		Message:  message,
	})
}
