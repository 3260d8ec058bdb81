package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  path: "+filepath.Join(dir, "vigil.bolt")+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Budget.DailyLimitMinutes != 120 {
		t.Errorf("daily limit = %d, want 120", cfg.Budget.DailyLimitMinutes)
	}
	if cfg.Strikes.ScreamThreshold != 85.0 {
		t.Errorf("threshold = %v, want 85", cfg.Strikes.ScreamThreshold)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("storage type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Remote.SyncInterval != "30s" {
		t.Errorf("sync interval = %q, want 30s", cfg.Remote.SyncInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
storage:
  path: `+filepath.Join(dir, "vigil.bolt")+`
budget:
  daily_limit_minutes: 45
strikes:
  enabled: false
  scream_threshold_db: 92.5
remote:
  url: https://plane.example.com
  sync_interval: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Budget.DailyLimitMinutes != 45 {
		t.Errorf("daily limit = %d, want 45", cfg.Budget.DailyLimitMinutes)
	}
	if cfg.Strikes.Enabled {
		t.Error("strikes still enabled")
	}
	if cfg.Strikes.ScreamThreshold != 92.5 {
		t.Errorf("threshold = %v, want 92.5", cfg.Strikes.ScreamThreshold)
	}
	if cfg.Remote.URL != "https://plane.example.com" {
		t.Errorf("remote url = %q", cfg.Remote.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"bad storage type", "storage:\n  type: sqlite\n"},
		{"threshold out of range", "storage:\n  path: " + filepath.Join(dir, "a.bolt") + "\nstrikes:\n  scream_threshold_db: 400\n"},
		{"bad remote url", "storage:\n  path: " + filepath.Join(dir, "b.bolt") + "\nremote:\n  url: ftp://example.com\n"},
		{"bad metrics port", "storage:\n  path: " + filepath.Join(dir, "c.bolt") + "\nmetrics:\n  port: 99999\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("45s", time.Minute); got != 45*time.Second {
		t.Errorf("ParseDuration(45s) = %v", got)
	}
	if got := ParseDuration("", time.Minute); got != time.Minute {
		t.Errorf("empty fallback = %v", got)
	}
	if got := ParseDuration("nonsense", 2*time.Second); got != 2*time.Second {
		t.Errorf("invalid fallback = %v", got)
	}
}
