package usage

import (
	"testing"
	"time"

	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

func TestAppTrackerAccrual(t *testing.T) {
	probe := func() (string, string, error) {
		return "chrome.exe", "Watch cats compilation - YouTube - Google Chrome", nil
	}
	tc := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	tracker := NewAppTracker(probe, 5*time.Second, tc, zerolog.Nop())

	for i := 0; i < 6; i++ {
		tracker.Sample()
		tc.Advance(5 * time.Second)
	}

	apps, sites := tracker.TakeAggregates()
	if len(apps) != 1 || apps[0].Name != "Google Chrome" || apps[0].Seconds != 30 {
		t.Errorf("apps = %+v, want Google Chrome with 30s", apps)
	}
	if len(sites) != 1 || sites[0].Domain != "youtube.com" || sites[0].Seconds != 30 {
		t.Errorf("sites = %+v, want youtube.com with 30s", sites)
	}
}

func TestAppTrackerNonBrowser(t *testing.T) {
	probe := func() (string, string, error) {
		return "roblox.exe", "Roblox", nil
	}
	tracker := NewAppTracker(probe, 5*time.Second, &timeclock.TestClock{CurrentTime: time.Now()}, zerolog.Nop())

	tracker.Sample()

	apps, sites := tracker.TakeAggregates()
	if len(apps) != 1 || apps[0].Name != "Roblox" {
		t.Errorf("apps = %+v, want Roblox", apps)
	}
	if len(sites) != 0 {
		t.Errorf("sites = %+v, want none for a non-browser app", sites)
	}
}

func TestAppTrackerDayRollover(t *testing.T) {
	probe := func() (string, string, error) {
		return "steam.exe", "Steam", nil
	}
	tc := &timeclock.TestClock{CurrentTime: time.Date(2026, 3, 2, 23, 59, 50, 0, time.UTC)}
	tracker := NewAppTracker(probe, 5*time.Second, tc, zerolog.Nop())

	tracker.Sample()
	tc.Advance(time.Minute) // crosses midnight
	tracker.Sample()

	apps, _ := tracker.TakeAggregates()
	if len(apps) != 1 || apps[0].Seconds != 5 {
		t.Errorf("apps = %+v, want Steam with only the post-midnight 5s", apps)
	}
}

func TestExtractDomain(t *testing.T) {
	tracker := NewAppTracker(nil, 5*time.Second, nil, zerolog.Nop())

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"url in title", "https://example.org/path - Google Chrome", "example.org"},
		{"known site keyword", "Minecraft servers - Mozilla Firefox", "minecraft.net"},
		{"unknown title", "Untitled document", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tracker.extractDomain(tt.title); got != tt.want {
				t.Errorf("extractDomain(%q) = %q, want %q", tt.title, got, tt.want)
			}
			// Cached answer stays stable.
			if got := tracker.extractDomain(tt.title); got != tt.want {
				t.Errorf("cached extractDomain(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}
