// Package syncer runs the periodic exchange with the guardian control
// plane: state snapshots, usage and journal uploads outbound, commands,
// settings and blocking rules inbound.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kidwatch/vigil/internal/actuate"
	"github.com/kidwatch/vigil/internal/budget"
	"github.com/kidwatch/vigil/internal/metrics"
	"github.com/kidwatch/vigil/internal/noise"
	"github.com/kidwatch/vigil/internal/remote"
	"github.com/kidwatch/vigil/internal/storage"
	"github.com/kidwatch/vigil/internal/strike"
	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/kidwatch/vigil/internal/usage"
)

const (
	// DefaultInterval is the base sync period.
	DefaultInterval = 30 * time.Second
	// DefaultMaxBackoff caps the delay between cycles while the control
	// plane is unreachable.
	DefaultMaxBackoff = 300 * time.Second
	// eventBatchSize bounds one journal upload.
	eventBatchSize = 50
	// aggregateEvery spaces out the chatty app and site uploads.
	aggregateEvery = 3
)

// Deps are the collaborators a sync Agent drives.
type Deps struct {
	Remote    *remote.Client
	Store     storage.Store
	Usage     *usage.Clock
	Apps      *usage.AppTracker
	Budget    *budget.Engine
	Strikes   *strike.Engine
	Noise     *noise.Aggregator
	State     *State
	Locker    actuate.ScreenLocker
	System    actuate.SystemActions
	AppRules  actuate.AppBlocker
	SiteRules actuate.SiteBlocker
	Notifier  actuate.Notifier
	Clock     timeclock.Clock
	Version   string
}

// Agent is the sync loop. Requests to the control plane happen only here;
// the decision engines never touch the network.
type Agent struct {
	deps       Deps
	interval   time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger

	cycle    int
	failures int

	// Retry buffers. Session drains are final, so failed rows are held until
	// a cycle succeeds. Aggregate snapshots are cumulative day totals, so the
	// buffers keep only the latest snapshot per (date, name).
	sessionBuf []remote.SessionRow
	appBuf     map[string]remote.AppUsageRow
	siteBuf    map[string]remote.SiteVisitRow

	stopChan chan struct{}
	done     chan struct{}
}

// NewAgent builds a sync Agent. Zero interval or maxBackoff get defaults.
func NewAgent(deps Deps, interval, maxBackoff time.Duration, logger zerolog.Logger) *Agent {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	if deps.Clock == nil {
		deps.Clock = timeclock.RealClock{}
	}
	return &Agent{
		deps:       deps,
		interval:   interval,
		maxBackoff: maxBackoff,
		logger:     logger.With().Str("component", "syncer").Logger(),
		appBuf:     make(map[string]remote.AppUsageRow),
		siteBuf:    make(map[string]remote.SiteVisitRow),
	}
}

// Start launches the sync loop.
func (a *Agent) Start() {
	if a.stopChan != nil {
		return
	}
	a.stopChan = make(chan struct{})
	a.done = make(chan struct{})
	a.logger.Info().
		Dur("interval", a.interval).
		Str("pc_id", a.deps.Remote.PCID()).
		Msg("Starting sync agent")
	go a.run(a.stopChan, a.done)
}

// Stop halts the loop and pushes a final offline snapshot so the guardian
// dashboard does not show a stale online device.
func (a *Agent) Stop() {
	if a.stopChan == nil {
		return
	}
	close(a.stopChan)
	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		a.logger.Warn().Msg("Timed out waiting for sync loop to stop")
	}
	a.stopChan = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownType := "graceful"
	row := a.snapshot()
	row.IsOnline = false
	row.AppRunning = false
	row.ShutdownType = &shutdownType
	if err := a.deps.Remote.UpdatePC(ctx, row); err != nil {
		a.logger.Warn().Err(err).Msg("Final offline snapshot failed")
	}
	a.logger.Info().Msg("Sync agent stopped")
}

func (a *Agent) run(stopChan, done chan struct{}) {
	defer close(done)
	for {
		a.RunCycle(context.Background())

		select {
		case <-stopChan:
			return
		case <-time.After(a.delay()):
		}
	}
}

// delay is the time until the next cycle: the base interval after a clean
// cycle, exponential backoff capped at maxBackoff after failures.
func (a *Agent) delay() time.Duration {
	if a.failures == 0 {
		return a.interval
	}
	d := a.interval
	for i := 0; i < a.failures && d < a.maxBackoff; i++ {
		d *= 2
	}
	if d > a.maxBackoff {
		d = a.maxBackoff
	}
	return d
}

// RunCycle performs one full sync exchange. Outbound and inbound steps fail
// independently; one unreachable table does not stop the rest of the cycle.
func (a *Agent) RunCycle(ctx context.Context) {
	if !a.deps.Remote.Paired() {
		return
	}
	metrics.SyncCyclesTotal.Inc()
	a.cycle++
	failed := false

	step := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			failed = true
			metrics.SyncFailuresTotal.WithLabelValues(name).Inc()
			a.logger.Warn().Err(err).Str("step", name).Msg("Sync step failed")
		}
	}

	step("snapshot", a.pushSnapshot)
	step("sessions", a.pushSessions)
	step("daily_usage", a.pushDailyUsage)
	if a.cycle%aggregateEvery == 0 {
		step("aggregates", a.pushAggregates)
	}
	step("events", a.pushEvents)

	step("commands", a.pullCommands)
	step("settings", a.pullSettings)
	step("blocking", a.pullBlockingRules)

	if failed {
		a.failures++
		a.logger.Debug().Int("failures", a.failures).Dur("next", a.delay()).Msg("Cycle had failures")
	} else {
		a.failures = 0
	}
}

func (a *Agent) snapshot() remote.PCRow {
	status := a.deps.Budget.Snapshot()
	now := a.deps.Clock.Now().UTC()
	row := remote.PCRow{
		IsOnline:              true,
		AppRunning:            true,
		IsLocked:              status.Blocked || a.deps.Locker.Locked(),
		UsageTodayMinutes:     status.UsedMinutes,
		EffectiveLimitMinutes: status.EffectiveLimitMinutes,
		CurrentNoiseDB:        a.deps.Noise.Average(),
		Strikes:               a.deps.Strikes.Strikes(),
		LastHeartbeat:         now,
		AppVersion:            a.deps.Version,
	}
	if a.deps.Usage.IsActive() {
		row.LastActivity = &now
	}
	metrics.UsageMinutesToday.Set(float64(status.UsedMinutes))
	metrics.EffectiveLimitMinutes.Set(float64(status.EffectiveLimitMinutes))
	if status.Blocked {
		metrics.Blocked.Set(1)
	} else {
		metrics.Blocked.Set(0)
	}
	return row
}

func (a *Agent) pushSnapshot(ctx context.Context) error {
	return a.deps.Remote.UpdatePC(ctx, a.snapshot())
}

func (a *Agent) pushSessions(ctx context.Context) error {
	for _, s := range a.deps.Usage.TakePendingSessions() {
		a.sessionBuf = append(a.sessionBuf, remote.SessionRow{
			UserID:          a.deps.Remote.UserID(),
			PCID:            a.deps.Remote.PCID(),
			StartedAt:       s.StartedAt.UTC(),
			EndedAt:         utcPtr(s.EndedAt),
			DurationMinutes: s.DurationMinutes,
		})
	}
	if len(a.sessionBuf) == 0 {
		return nil
	}
	if err := a.deps.Remote.InsertSessions(ctx, a.sessionBuf); err != nil {
		return err
	}
	metrics.SessionsClosed.Add(float64(len(a.sessionBuf)))
	a.sessionBuf = nil
	return nil
}

func (a *Agent) pushDailyUsage(ctx context.Context) error {
	return a.deps.Remote.UpsertDailyUsage(ctx, remote.DailyUsageRow{
		UserID:        a.deps.Remote.UserID(),
		PCID:          a.deps.Remote.PCID(),
		Date:          a.deps.Usage.Date().Format("2006-01-02"),
		TotalMinutes:  a.deps.Usage.EffectiveUsageMinutes(),
		SessionsCount: len(a.deps.Usage.SessionsToday()),
	})
}

func (a *Agent) pushAggregates(ctx context.Context) error {
	if a.deps.Apps == nil {
		return nil
	}
	date := a.deps.Usage.Date().Format("2006-01-02")
	apps, sites := a.deps.Apps.TakeAggregates()
	for _, u := range apps {
		// Snapshots are cumulative for the day; a newer one supersedes
		// whatever a failed upload left behind.
		a.appBuf[date+"|"+u.Name] = remote.AppUsageRow{
			UserID:  a.deps.Remote.UserID(),
			PCID:    a.deps.Remote.PCID(),
			Date:    date,
			Name:    u.Name,
			Seconds: u.Seconds,
		}
	}
	for _, v := range sites {
		a.siteBuf[date+"|"+v.Domain] = remote.SiteVisitRow{
			UserID:  a.deps.Remote.UserID(),
			PCID:    a.deps.Remote.PCID(),
			Date:    date,
			Domain:  v.Domain,
			Seconds: v.Seconds,
		}
	}

	appRows := make([]remote.AppUsageRow, 0, len(a.appBuf))
	for _, row := range a.appBuf {
		appRows = append(appRows, row)
	}
	siteRows := make([]remote.SiteVisitRow, 0, len(a.siteBuf))
	for _, row := range a.siteBuf {
		siteRows = append(siteRows, row)
	}

	if err := a.deps.Remote.UpsertAppUsage(ctx, appRows); err != nil {
		return err
	}
	a.appBuf = make(map[string]remote.AppUsageRow)
	if err := a.deps.Remote.UpsertSiteVisits(ctx, siteRows); err != nil {
		return err
	}
	a.siteBuf = make(map[string]remote.SiteVisitRow)
	return nil
}

func (a *Agent) pushEvents(ctx context.Context) error {
	events, err := a.deps.Store.Journal().Pending(ctx, eventBatchSize)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	rows := make([]remote.EventRow, 0, len(events))
	keys := make([]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, remote.EventRow{
			UserID:      a.deps.Remote.UserID(),
			PCID:        a.deps.Remote.PCID(),
			Timestamp:   e.Timestamp.UTC(),
			Type:        e.Type,
			Description: e.Description,
			NoiseDB:     e.NoiseDB,
		})
		keys = append(keys, e.Key())
	}

	if err := a.deps.Remote.UpsertEvents(ctx, rows); err != nil {
		return err
	}
	if err := a.deps.Store.Journal().MarkSynced(ctx, keys); err != nil {
		return fmt.Errorf("marking events synced: %w", err)
	}
	metrics.EventsSynced.Add(float64(len(rows)))
	return nil
}

func (a *Agent) pullSettings(ctx context.Context) error {
	row, err := a.deps.Remote.FetchSettings(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	changed := a.deps.State.Apply(*row)
	if len(changed) == 0 {
		return nil
	}
	if err := a.deps.Store.Settings().SetBatch(ctx, changed); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}

func (a *Agent) pullBlockingRules(ctx context.Context) error {
	apps, err := a.deps.Remote.BlockedApps(ctx)
	if err != nil {
		return err
	}
	a.deps.AppRules.SetBlockedApps(apps)

	sites, err := a.deps.Remote.BlockedSites(ctx)
	if err != nil {
		return err
	}
	a.deps.SiteRules.SetBlockedSites(sites)
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
