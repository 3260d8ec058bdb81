package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kidwatch/vigil/internal/config"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the Vigil configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, defaultConfig(), unknownKeys)
	}

	return nil
}

// defaultConfig builds a configuration holding only defaults, for diffing.
func defaultConfig() *config.Config {
	var cfg config.Config
	cfg.Agent.Hostname, _ = os.Hostname()
	cfg.Audio = config.AudioConfig{Enabled: true, SampleInterval: "100ms", WindowSeconds: 10, SamplesPerSecond: 10}
	cfg.Usage = config.UsageConfig{IdleTimeout: "5m", TickInterval: "5s", TrackForeground: true, ForegroundSample: "15s"}
	cfg.Strikes = config.StrikesConfig{Enabled: true, ScreamThreshold: 85.0, PenaltyMinutes: 10, Cooldown: "10s"}
	cfg.Budget = config.BudgetConfig{DailyLimitMinutes: 120, CheckInterval: "15s"}
	cfg.Remote = config.RemoteConfig{SyncInterval: "30s", MaxBackoff: "300s", ConnectTimeout: "30s", ReadTimeout: "30s"}
	cfg.Storage = config.StorageConfig{Type: "bolt", Path: "/var/lib/vigil/vigil.bolt", RedisAddr: "localhost:6379"}
	cfg.Metrics = config.MetricsConfig{Enabled: true, Port: 9090, BindAddress: "127.0.0.1"}
	cfg.Logging = config.LoggingConfig{Level: "info", Format: "json"}
	return &cfg
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	return map[string]bool{
		// Agent
		"agent.hostname":     true,
		"agent.pc_id":        true,
		"agent.user_id":      true,
		"agent.device_token": true,

		// Audio
		"audio.enabled":            true,
		"audio.sample_interval":    true,
		"audio.window_seconds":     true,
		"audio.samples_per_second": true,

		// Usage tracking
		"usage_tracking.idle_timeout":               true,
		"usage_tracking.tick_interval":              true,
		"usage_tracking.track_foreground":           true,
		"usage_tracking.foreground_sample_interval": true,

		// Strikes
		"strikes.enabled":             true,
		"strikes.scream_threshold_db": true,
		"strikes.penalty_minutes":     true,
		"strikes.cooldown":            true,

		// Budget
		"budget.daily_limit_minutes": true,
		"budget.check_interval":      true,

		// Remote
		"remote.url":             true,
		"remote.api_key":         true,
		"remote.sync_interval":   true,
		"remote.max_backoff":     true,
		"remote.connect_timeout": true,
		"remote.read_timeout":    true,

		// Storage
		"storage.type":           true,
		"storage.path":           true,
		"storage.redis_addr":     true,
		"storage.redis_password": true,
		"storage.redis_db":       true,

		// Metrics
		"metrics.enabled":      true,
		"metrics.port":         true,
		"metrics.bind_address": true,

		// Logging
		"logging.level":  true,
		"logging.format": true,
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[agent]")
	dumpField("  hostname", cfg.Agent.Hostname, defaultCfg.Agent.Hostname, yellow, green)
	dumpField("  pc_id", cfg.Agent.PCID, defaultCfg.Agent.PCID, yellow, green)
	dumpField("  user_id", cfg.Agent.UserID, defaultCfg.Agent.UserID, yellow, green)
	dumpField("  device_token", redactSecret(cfg.Agent.DeviceToken), redactSecret(defaultCfg.Agent.DeviceToken), yellow, green)

	_, _ = cyan.Println("\n[audio]")
	dumpField("  enabled", cfg.Audio.Enabled, defaultCfg.Audio.Enabled, yellow, green)
	dumpField("  sample_interval", cfg.Audio.SampleInterval, defaultCfg.Audio.SampleInterval, yellow, green)
	dumpField("  window_seconds", cfg.Audio.WindowSeconds, defaultCfg.Audio.WindowSeconds, yellow, green)
	dumpField("  samples_per_second", cfg.Audio.SamplesPerSecond, defaultCfg.Audio.SamplesPerSecond, yellow, green)

	_, _ = cyan.Println("\n[usage_tracking]")
	dumpField("  idle_timeout", cfg.Usage.IdleTimeout, defaultCfg.Usage.IdleTimeout, yellow, green)
	dumpField("  tick_interval", cfg.Usage.TickInterval, defaultCfg.Usage.TickInterval, yellow, green)
	dumpField("  track_foreground", cfg.Usage.TrackForeground, defaultCfg.Usage.TrackForeground, yellow, green)
	dumpField("  foreground_sample_interval", cfg.Usage.ForegroundSample, defaultCfg.Usage.ForegroundSample, yellow, green)

	_, _ = cyan.Println("\n[strikes]")
	dumpField("  enabled", cfg.Strikes.Enabled, defaultCfg.Strikes.Enabled, yellow, green)
	dumpField("  scream_threshold_db", cfg.Strikes.ScreamThreshold, defaultCfg.Strikes.ScreamThreshold, yellow, green)
	dumpField("  penalty_minutes", cfg.Strikes.PenaltyMinutes, defaultCfg.Strikes.PenaltyMinutes, yellow, green)
	dumpField("  cooldown", cfg.Strikes.Cooldown, defaultCfg.Strikes.Cooldown, yellow, green)

	_, _ = cyan.Println("\n[budget]")
	dumpField("  daily_limit_minutes", cfg.Budget.DailyLimitMinutes, defaultCfg.Budget.DailyLimitMinutes, yellow, green)
	dumpField("  check_interval", cfg.Budget.CheckInterval, defaultCfg.Budget.CheckInterval, yellow, green)

	_, _ = cyan.Println("\n[remote]")
	dumpField("  url", cfg.Remote.URL, defaultCfg.Remote.URL, yellow, green)
	dumpField("  api_key", redactSecret(cfg.Remote.APIKey), redactSecret(defaultCfg.Remote.APIKey), yellow, green)
	dumpField("  sync_interval", cfg.Remote.SyncInterval, defaultCfg.Remote.SyncInterval, yellow, green)
	dumpField("  max_backoff", cfg.Remote.MaxBackoff, defaultCfg.Remote.MaxBackoff, yellow, green)
	dumpField("  connect_timeout", cfg.Remote.ConnectTimeout, defaultCfg.Remote.ConnectTimeout, yellow, green)
	dumpField("  read_timeout", cfg.Remote.ReadTimeout, defaultCfg.Remote.ReadTimeout, yellow, green)

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	dumpField("  redis_addr", cfg.Storage.RedisAddr, defaultCfg.Storage.RedisAddr, yellow, green)
	dumpField("  redis_password", redactSecret(cfg.Storage.RedisPassword), redactSecret(defaultCfg.Storage.RedisPassword), yellow, green)
	dumpField("  redis_db", cfg.Storage.RedisDB, defaultCfg.Storage.RedisDB, yellow, green)

	_, _ = cyan.Println("\n[metrics]")
	dumpField("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled, yellow, green)
	dumpField("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port, yellow, green)
	dumpField("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactSecret redacts a secret if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
