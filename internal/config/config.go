package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete agent configuration
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Usage   UsageConfig   `mapstructure:"usage_tracking"`
	Strikes StrikesConfig `mapstructure:"strikes"`
	Budget  BudgetConfig  `mapstructure:"budget"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AgentConfig defines identity and pairing state
type AgentConfig struct {
	Hostname    string `mapstructure:"hostname"`
	PCID        string `mapstructure:"pc_id"`
	UserID      string `mapstructure:"user_id"`
	DeviceToken string `mapstructure:"device_token"`
}

// AudioConfig defines microphone sampling and the noise window
type AudioConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	SampleInterval   string `mapstructure:"sample_interval"`
	WindowSeconds    int    `mapstructure:"window_seconds"`
	SamplesPerSecond int    `mapstructure:"samples_per_second"`
}

// UsageConfig defines activity tracking settings
type UsageConfig struct {
	IdleTimeout      string `mapstructure:"idle_timeout"`
	TickInterval     string `mapstructure:"tick_interval"`
	TrackForeground  bool   `mapstructure:"track_foreground"`
	ForegroundSample string `mapstructure:"foreground_sample_interval"`
}

// StrikesConfig defines noise strike defaults. The guardian's remote
// settings override these once the device is paired.
type StrikesConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	ScreamThreshold float64 `mapstructure:"scream_threshold_db"`
	PenaltyMinutes  int     `mapstructure:"penalty_minutes"`
	Cooldown        string  `mapstructure:"cooldown"`
}

// BudgetConfig defines daily limit defaults
type BudgetConfig struct {
	DailyLimitMinutes int    `mapstructure:"daily_limit_minutes"`
	CheckInterval     string `mapstructure:"check_interval"`
}

// RemoteConfig defines the control plane connection
type RemoteConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	SyncInterval   string `mapstructure:"sync_interval"`
	MaxBackoff     string `mapstructure:"max_backoff"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
	ReadTimeout    string `mapstructure:"read_timeout"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type          string `mapstructure:"type"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// MetricsConfig defines the metrics endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Agent defaults
	hostname, _ := os.Hostname()
	v.SetDefault("agent.hostname", hostname)

	// Audio defaults
	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.sample_interval", "100ms")
	v.SetDefault("audio.window_seconds", 10)
	v.SetDefault("audio.samples_per_second", 10)

	// Usage tracking defaults
	v.SetDefault("usage_tracking.idle_timeout", "5m")
	v.SetDefault("usage_tracking.tick_interval", "5s")
	v.SetDefault("usage_tracking.track_foreground", true)
	v.SetDefault("usage_tracking.foreground_sample_interval", "15s")

	// Strike defaults
	v.SetDefault("strikes.enabled", true)
	v.SetDefault("strikes.scream_threshold_db", 85.0)
	v.SetDefault("strikes.penalty_minutes", 10)
	v.SetDefault("strikes.cooldown", "10s")

	// Budget defaults
	v.SetDefault("budget.daily_limit_minutes", 120)
	v.SetDefault("budget.check_interval", "15s")

	// Remote defaults
	v.SetDefault("remote.sync_interval", "30s")
	v.SetDefault("remote.max_backoff", "300s")
	v.SetDefault("remote.connect_timeout", "30s")
	v.SetDefault("remote.read_timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/vigil/vigil.bolt")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.bind_address", "127.0.0.1")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Storage.Type != "bolt" && cfg.Storage.Type != "redis" {
		return fmt.Errorf("invalid storage type: %q (want bolt or redis)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "bolt" {
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	if cfg.Audio.WindowSeconds <= 0 || cfg.Audio.SamplesPerSecond <= 0 {
		return fmt.Errorf("audio window and sample rate must be positive")
	}

	if cfg.Strikes.ScreamThreshold < 0 || cfg.Strikes.ScreamThreshold > 120 {
		return fmt.Errorf("scream threshold %v outside 0-120 dB", cfg.Strikes.ScreamThreshold)
	}

	if cfg.Remote.URL != "" && !strings.HasPrefix(cfg.Remote.URL, "http") {
		return fmt.Errorf("remote url must be http(s): %q", cfg.Remote.URL)
	}

	return nil
}

// ParseDuration parses s, returning fallback on empty or invalid input.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
