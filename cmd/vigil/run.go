package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kidwatch/vigil/internal/actuate"
	"github.com/kidwatch/vigil/internal/budget"
	"github.com/kidwatch/vigil/internal/config"
	"github.com/kidwatch/vigil/internal/metrics"
	"github.com/kidwatch/vigil/internal/noise"
	"github.com/kidwatch/vigil/internal/platform"
	"github.com/kidwatch/vigil/internal/remote"
	"github.com/kidwatch/vigil/internal/storage"
	boltstore "github.com/kidwatch/vigil/internal/storage/bolt"
	redisstore "github.com/kidwatch/vigil/internal/storage/redis"
	"github.com/kidwatch/vigil/internal/strike"
	"github.com/kidwatch/vigil/internal/syncer"
	"github.com/kidwatch/vigil/internal/systemd"
	"github.com/kidwatch/vigil/internal/usage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervision agent",
	Long:  `Run the Vigil agent: noise monitoring, usage tracking, budget enforcement, and remote sync.`,
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Vigil")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	// Restore guardian settings
	state := syncer.NewState(logger)
	state.SeedDefaults(cfg.Budget.DailyLimitMinutes, cfg.Strikes.Enabled, cfg.Strikes.ScreamThreshold, cfg.Strikes.PenaltyMinutes)
	if err := state.Load(context.Background(), store.Settings()); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore settings, using defaults")
	}

	journal := func(eventType, description string, noiseDB float64) {
		err := store.Journal().Append(context.Background(), storage.Event{
			Timestamp:   time.Now(),
			Type:        eventType,
			Description: description,
			NoiseDB:     noiseDB,
		})
		if err != nil {
			logger.Warn().Err(err).Str("type", eventType).Msg("Journal append failed")
		}
	}

	// Platform controls
	sessions := platform.NewSessionControl(logger)
	actions := actuate.NewLocalActions(logger)
	actions.LockFunc = sessions.LockSessions
	actions.UnlockFunc = sessions.UnlockSessions
	actions.ShutdownFunc = sessions.PowerOff
	rules := actuate.NewRuleSet()
	notifier := actuate.NewLogNotifier(16, logger)

	// Usage clock
	usageClock := usage.NewClock(
		platform.IdleProbe(logger),
		usage.Config{
			IdleTimeout:  config.ParseDuration(cfg.Usage.IdleTimeout, usage.DefaultIdleTimeout),
			TickInterval: config.ParseDuration(cfg.Usage.TickInterval, usage.DefaultTickInterval),
		},
		func(event string, at time.Time) {
			switch event {
			case "started":
				journal(storage.EventSessionStart, "activity session started", 0)
			case "ended":
				journal(storage.EventSessionEnd, "activity session ended", 0)
			}
		},
		nil,
		logger,
	)
	usageClock.Start()
	logger.Info().Msg("Usage clock started")

	// Foreground app tracking
	var appTracker *usage.AppTracker
	if cfg.Usage.TrackForeground {
		if probe := platform.ForegroundProbe(logger); probe != nil {
			appTracker = usage.NewAppTracker(
				probe,
				config.ParseDuration(cfg.Usage.ForegroundSample, 15*time.Second),
				nil,
				logger,
			)
			appTracker.Start()
			logger.Info().Msg("Foreground tracker started")
		}
	}

	// Budget engine
	budgetEngine := budget.NewEngine(state.BudgetSettings, usageClock.EffectiveUsageMinutes, nil, logger)

	// Strike engine and noise monitor
	strikeEngine := strike.NewEngine(
		state.StrikeSettings,
		config.ParseDuration(cfg.Strikes.Cooldown, strike.DefaultCooldown),
		nil,
		logger,
	)
	aggregator := noise.NewAggregator(cfg.Audio.WindowSeconds, cfg.Audio.SamplesPerSecond)

	var monitor *noise.Monitor
	if cfg.Audio.Enabled {
		monitor = noise.NewMonitor(
			aggregator,
			platform.AudioProbe(logger),
			noiseHandler(strikeEngine, state, usageClock, notifier, journal, logger),
			config.ParseDuration(cfg.Audio.SampleInterval, 100*time.Millisecond),
			logger,
		)
		monitor.Start()
		logger.Info().Msg("Noise monitor started")
	}

	// Budget enforcement loop
	enforceStop := make(chan struct{})
	enforceDone := make(chan struct{})
	go enforceBudget(
		budgetEngine, actions, notifier, journal, logger,
		config.ParseDuration(cfg.Budget.CheckInterval, 15*time.Second),
		enforceStop, enforceDone,
	)

	// Remote sync
	var syncAgent *syncer.Agent
	if cfg.Remote.URL != "" && cfg.Agent.PCID != "" {
		client := remote.NewClient(remote.Config{
			BaseURL:        cfg.Remote.URL,
			APIKey:         cfg.Remote.APIKey,
			DeviceToken:    cfg.Agent.DeviceToken,
			PCID:           cfg.Agent.PCID,
			UserID:         cfg.Agent.UserID,
			ConnectTimeout: config.ParseDuration(cfg.Remote.ConnectTimeout, 30*time.Second),
			ReadTimeout:    config.ParseDuration(cfg.Remote.ReadTimeout, 30*time.Second),
		}, logger)

		syncAgent = syncer.NewAgent(syncer.Deps{
			Remote:    client,
			Store:     store,
			Usage:     usageClock,
			Apps:      appTracker,
			Budget:    budgetEngine,
			Strikes:   strikeEngine,
			Noise:     aggregator,
			State:     state,
			Locker:    actions,
			System:    actions,
			AppRules:  rules,
			SiteRules: rules,
			Notifier:  notifier,
			Version:   version,
		},
			config.ParseDuration(cfg.Remote.SyncInterval, syncer.DefaultInterval),
			config.ParseDuration(cfg.Remote.MaxBackoff, syncer.DefaultMaxBackoff),
			logger,
		)
		syncAgent.Start()
		logger.Info().Str("url", cfg.Remote.URL).Msg("Sync agent started")
	} else {
		logger.Warn().Msg("Remote sync disabled: not paired or no remote url configured")
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", metricsAddr).Msg("Metrics server started")
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Debug().Err(err).Msg("sd_notify ready failed")
	}
	logger.Info().Msg("Vigil startup complete")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	if err := systemd.NotifyStopping(); err != nil {
		logger.Debug().Err(err).Msg("sd_notify stopping failed")
	}

	if monitor != nil {
		monitor.Stop()
	}
	if appTracker != nil {
		appTracker.Stop()
	}
	usageClock.Stop()
	close(enforceStop)
	<-enforceDone
	if syncAgent != nil {
		syncAgent.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Vigil stopped")
	return nil
}

// noiseHandler builds the monitor callback. Strikes are judged on the
// instantaneous sample; the rolling average would dilute a short scream
// below the threshold. The average only feeds the gauge.
func noiseHandler(
	strikeEngine *strike.Engine,
	state *syncer.State,
	usageClock *usage.Clock,
	notifier *actuate.LogNotifier,
	journal func(string, string, float64),
	logger zerolog.Logger,
) noise.UpdateFunc {
	return func(current, average, peak float64) {
		metrics.NoiseLevelDB.Set(average)
		handleStrikeAction(strikeEngine.ProcessNoise(current), current, state, usageClock, notifier, journal, logger)
	}
}

// handleStrikeAction applies the consequence of one strike decision.
func handleStrikeAction(
	action strike.Action,
	noiseDB float64,
	state *syncer.State,
	usageClock *usage.Clock,
	notifier *actuate.LogNotifier,
	journal func(string, string, float64),
	logger zerolog.Logger,
) {
	if action == strike.ActionNone {
		return
	}

	metrics.StrikesTotal.Inc()
	metrics.StrikeActions.WithLabelValues(action.String()).Inc()
	journal(storage.EventStrike, fmt.Sprintf("noise strike at %.1f dB", noiseDB), noiseDB)

	switch action {
	case strike.ActionWarnLight:
		notifier.Notify(actuate.Notification{
			Severity: actuate.SeverityWarning,
			Title:    "Too loud",
			Message:  "Please keep the noise down",
		})
	case strike.ActionWarnStrong:
		notifier.Notify(actuate.Notification{
			Severity: actuate.SeverityWarning,
			Title:    "Still too loud",
			Message:  "One more and you lose screen time",
		})
	case strike.ActionTimePenalty:
		penalty := state.StrikeSettings().PenaltyMinutes
		usageClock.ApplyPenalty(penalty)
		journal(storage.EventTimePenalty, fmt.Sprintf("%d minute penalty for repeated noise", penalty), noiseDB)
		notifier.Notify(actuate.Notification{
			Severity: actuate.SeverityCritical,
			Title:    "Time penalty",
			Message:  fmt.Sprintf("%d minutes deducted for repeated noise", penalty),
		})
		logger.Warn().Int("penalty_minutes", penalty).Msg("Time penalty applied")
	}
}

// enforceBudget runs the periodic budget check and drives the screen lock.
func enforceBudget(
	engine *budget.Engine,
	actions *actuate.LocalActions,
	notifier *actuate.LogNotifier,
	journal func(string, string, float64),
	logger zerolog.Logger,
	interval time.Duration,
	stopChan, done chan struct{},
) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			switch engine.Check() {
			case budget.ActionWarning15Min:
				notifier.Notify(actuate.Notification{
					Severity: actuate.SeverityWarning,
					Title:    "15 minutes left",
					Message:  "Your screen time is almost up",
				})
			case budget.ActionWarning5Min:
				notifier.Notify(actuate.Notification{
					Severity: actuate.SeverityWarning,
					Title:    "5 minutes left",
					Message:  "Save your work now",
				})
			case budget.ActionBlock:
				journal(storage.EventBlock, "daily limit reached", 0)
				notifier.Notify(actuate.Notification{
					Severity: actuate.SeverityCritical,
					Title:    "Time is up",
					Message:  "Your screen time for today is over",
				})
				if err := actions.Lock(); err != nil {
					logger.Error().Err(err).Msg("Failed to lock screen")
				}
			case budget.ActionOutsideHours:
				journal(storage.EventBlock, "outside allowed hours", 0)
				notifier.Notify(actuate.Notification{
					Severity: actuate.SeverityCritical,
					Title:    "Not now",
					Message:  "The computer is not available at this hour",
				})
				if err := actions.Lock(); err != nil {
					logger.Error().Err(err).Msg("Failed to lock screen")
				}
			case budget.ActionNone:
				if actions.Locked() && !engine.IsBlocked() {
					journal(storage.EventUnblock, "screen time available again", 0)
					if err := actions.Unlock(); err != nil {
						logger.Error().Err(err).Msg("Failed to unlock screen")
					}
				}
			}
		}
	}
}

// openStorage opens the configured storage backend.
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redisstore.Open(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return boltstore.Open(cfg.Path)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
