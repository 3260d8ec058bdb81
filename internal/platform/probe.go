// Package platform provides the OS-facing probes and controls: idle time,
// foreground window, audio level, session locking and power management.
// Everything degrades to a safe no-op when the underlying facility is
// missing, so the agent runs headless and in CI.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// IdleProbe returns a probe for how long the user has been idle. It shells
// out to xprintidle; without it every probe reports zero idle, which errs on
// the side of counting usage.
func IdleProbe(logger zerolog.Logger) func() (time.Duration, error) {
	path, err := exec.LookPath("xprintidle")
	if err != nil {
		logger.Warn().Msg("xprintidle not found, idle detection disabled")
		return func() (time.Duration, error) { return 0, nil }
	}
	return func() (time.Duration, error) {
		out, err := exec.Command(path).Output()
		if err != nil {
			return 0, fmt.Errorf("xprintidle: %w", err)
		}
		ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing xprintidle output: %w", err)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
}

// ForegroundProbe returns a probe for the focused window: the owning process
// name and the window title. Requires xdotool.
func ForegroundProbe(logger zerolog.Logger) func() (string, string, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		logger.Warn().Msg("xdotool not found, foreground tracking disabled")
		return nil
	}
	return func() (string, string, error) {
		title, err := exec.Command(path, "getactivewindow", "getwindowname").Output()
		if err != nil {
			return "", "", fmt.Errorf("reading window title: %w", err)
		}
		pidOut, err := exec.Command(path, "getactivewindow", "getwindowpid").Output()
		if err != nil {
			return "", "", fmt.Errorf("reading window pid: %w", err)
		}
		pid := strings.TrimSpace(string(pidOut))
		comm, err := os.ReadFile("/proc/" + pid + "/comm")
		if err != nil {
			return "", "", fmt.Errorf("reading process name: %w", err)
		}
		return strings.TrimSpace(string(comm)), strings.TrimSpace(string(title)), nil
	}
}

// AudioProbe returns a sound level probe in dB. Audio capture needs a
// platform backend the agent does not bundle; without one every sample is
// silence and the strike engine simply never fires.
func AudioProbe(logger zerolog.Logger) func() (float64, error) {
	logger.Warn().Msg("No audio capture backend, noise monitoring reports silence")
	return func() (float64, error) { return 0, nil }
}
