// Package remote is the HTTP client for the guardian control plane: a
// row-oriented store accessed with PostgREST conventions plus the pairing
// endpoints.
package remote

import (
	"encoding/json"
	"time"
)

// Command statuses. A status transition is terminal: once executed or
// failed, a command is never picked up again.
const (
	CommandStatusPending  = "pending"
	CommandStatusExecuted = "executed"
	CommandStatusFailed   = "failed"
)

// Command names the guardian can queue for the device.
const (
	CommandAddTime        = "add_time"
	CommandRemoveTime     = "remove_time"
	CommandLock           = "lock"
	CommandUnlock         = "unlock"
	CommandShutdown       = "shutdown"
	CommandResetStrikes   = "reset_strikes"
	CommandUpdateSettings = "update_settings"
)

// PCRow is the outbound state snapshot, upserted into the pcs table once per
// sync cycle. Write-only from the device's perspective.
type PCRow struct {
	IsOnline              bool       `json:"is_online"`
	AppRunning            bool       `json:"app_running"`
	ShutdownType          *string    `json:"shutdown_type"`
	IsLocked              bool       `json:"is_locked"`
	UsageTodayMinutes     int        `json:"usage_today_minutes"`
	EffectiveLimitMinutes int        `json:"effective_limit_minutes"`
	CurrentNoiseDB        float64    `json:"current_noise_db"`
	Strikes               int        `json:"strikes"`
	LastHeartbeat         time.Time  `json:"last_heartbeat"`
	LastActivity          *time.Time `json:"last_activity"`
	AppVersion            string     `json:"app_version"`
}

// CommandRow is one queued instruction from the commands table.
type CommandRow struct {
	ID      string          `json:"id"`
	PCID    string          `json:"pc_id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
	Status  string          `json:"status"`
}

// MinutesPayload is the payload of add_time and remove_time.
type MinutesPayload struct {
	Minutes int `json:"minutes"`
}

// ShutdownPayload is the payload of shutdown.
type ShutdownPayload struct {
	DelaySeconds int `json:"delay_seconds"`
}

// ScheduleWindow is one weekday's allowed interval in the pc_settings
// schedule, keyed "0" (Monday) through "6" (Sunday).
type ScheduleWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SettingsRow is the device's row in pc_settings. Pointer fields distinguish
// "not set by the guardian" from zero values.
type SettingsRow struct {
	PCID                 string                    `json:"pc_id"`
	DailyLimitMinutes    *int                      `json:"daily_limit_minutes"`
	StrikesEnabled       *bool                     `json:"strikes_enabled"`
	ScreamThresholdDB    *float64                  `json:"scream_threshold_db"`
	StrikePenaltyMinutes *int                      `json:"strike_penalty_minutes"`
	Schedule             map[string]ScheduleWindow `json:"schedule"`
	PasswordHash         *string                   `json:"password_hash"`
	AppBlockMode         *string                   `json:"app_block_mode"`
}

// SessionRow is one closed usage session, insert-only.
type SessionRow struct {
	UserID          string     `json:"user_id"`
	PCID            string     `json:"pc_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationMinutes int        `json:"duration_minutes"`
}

// DailyUsageRow is the per-day aggregate, upserted on (pc_id, date).
type DailyUsageRow struct {
	UserID        string `json:"user_id"`
	PCID          string `json:"pc_id"`
	Date          string `json:"date"`
	TotalMinutes  int    `json:"total_minutes"`
	SessionsCount int    `json:"sessions_count"`
}

// EventRow is one journal event, upserted on (pc_id, timestamp, type) so
// retries are idempotent.
type EventRow struct {
	UserID      string    `json:"user_id"`
	PCID        string    `json:"pc_id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	NoiseDB     float64   `json:"noise_db"`
}

// AppUsageRow is a per-app daily aggregate, upserted on (pc_id, date, name).
type AppUsageRow struct {
	UserID  string `json:"user_id"`
	PCID    string `json:"pc_id"`
	Date    string `json:"date"`
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// SiteVisitRow is a per-domain daily aggregate, upserted on
// (pc_id, date, domain).
type SiteVisitRow struct {
	UserID  string `json:"user_id"`
	PCID    string `json:"pc_id"`
	Date    string `json:"date"`
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
}

// BlockedAppRow is one row of the blocked_apps table, read-only here.
type BlockedAppRow struct {
	PCID string `json:"pc_id"`
	Name string `json:"name"`
}

// BlockedSiteRow is one row of the blocked_sites table, read-only here.
type BlockedSiteRow struct {
	PCID   string `json:"pc_id"`
	Domain string `json:"domain"`
}

// Pairing statuses returned by the pairing check endpoint.
const (
	PairingPending   = "pending"
	PairingConfirmed = "confirmed"
	PairingExpired   = "expired"
	PairingInvalid   = "invalid"
)

// PairingCheck is the response of the pairing check endpoint. PCID, UserID
// and DeviceToken are set once Status is confirmed.
type PairingCheck struct {
	Status      string `json:"status"`
	PCID        string `json:"pc_id"`
	UserID      string `json:"user_id"`
	DeviceToken string `json:"device_jwt"`
}
