package usage

import (
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kidwatch/vigil/internal/timeclock"
	"github.com/rs/zerolog"
)

// ForegroundFunc reports the process name and window title of the foreground
// window. The platform probe lives outside this module.
type ForegroundFunc func() (process, title string, err error)

// AppUsage is one day's accrued seconds for a single application.
type AppUsage struct {
	Name    string
	Seconds int64
}

// SiteVisit is one day's accrued seconds for a single web domain.
type SiteVisit struct {
	Domain  string
	Seconds int64
}

// browserProcesses are the process names whose window titles carry a page
// title we can map to a domain.
var browserProcesses = map[string]bool{
	"chrome.exe":   true,
	"msedge.exe":   true,
	"firefox.exe":  true,
	"brave.exe":    true,
	"opera.exe":    true,
	"vivaldi.exe":  true,
	"iexplore.exe": true,
	"chrome":       true,
	"firefox":      true,
	"brave":        true,
}

var (
	// "Page Title - Google Chrome" and the em/en-dash variants.
	titleSeparatorRe = regexp.MustCompile(`(?i)\s[-–—]\s(Google Chrome|Microsoft Edge|Mozilla Firefox|Brave|Opera|Vivaldi|Internet Explorer)$`)
	urlInTitleRe     = regexp.MustCompile(`https?://([^/\s]+)`)
)

// knownSites maps keywords seen in page titles to canonical domains.
var knownSites = map[string]string{
	"youtube":       "youtube.com",
	"facebook":      "facebook.com",
	"instagram":     "instagram.com",
	"twitter":       "twitter.com",
	"reddit":        "reddit.com",
	"tiktok":        "tiktok.com",
	"twitch":        "twitch.tv",
	"discord":       "discord.com",
	"whatsapp":      "web.whatsapp.com",
	"telegram":      "web.telegram.org",
	"netflix":       "netflix.com",
	"roblox":        "roblox.com",
	"minecraft":     "minecraft.net",
	"wikipedia":     "wikipedia.org",
	"spotify":       "open.spotify.com",
	"github":        "github.com",
	"stackoverflow": "stackoverflow.com",
	"chatgpt":       "chatgpt.com",
	"gmail":         "mail.google.com",
	"google":        "google.com",
}

// friendlyAppNames maps process names to display names for the dashboard.
var friendlyAppNames = map[string]string{
	"chrome.exe":    "Google Chrome",
	"msedge.exe":    "Microsoft Edge",
	"firefox.exe":   "Mozilla Firefox",
	"brave.exe":     "Brave",
	"opera.exe":     "Opera",
	"discord.exe":   "Discord",
	"steam.exe":     "Steam",
	"roblox.exe":    "Roblox",
	"minecraft.exe": "Minecraft",
	"code.exe":      "Visual Studio Code",
	"explorer.exe":  "Windows Explorer",
}

// AppTracker samples the foreground window and accrues per-app and per-site
// seconds for the current day. The sampling loop is the sole writer.
type AppTracker struct {
	probe       ForegroundFunc
	interval    time.Duration
	clock       timeclock.Clock
	logger      zerolog.Logger
	domainCache *lru.Cache[string, string]

	mu       sync.Mutex
	today    time.Time
	apps     map[string]int64
	sites    map[string]int64
	stopChan chan struct{}
	done     chan struct{}
}

// NewAppTracker creates a tracker sampling at the given interval (default 5s).
func NewAppTracker(probe ForegroundFunc, interval time.Duration, clock timeclock.Clock, logger zerolog.Logger) *AppTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if clock == nil {
		clock = timeclock.RealClock{}
	}
	// Title strings repeat heavily while the user stays on one page; cache
	// the extraction instead of re-running the regexes every sample.
	cache, _ := lru.New[string, string](512)
	return &AppTracker{
		probe:       probe,
		interval:    interval,
		clock:       clock,
		logger:      logger.With().Str("component", "app-tracker").Logger(),
		domainCache: cache,
		today:       midnight(clock.Now()),
		apps:        make(map[string]int64),
		sites:       make(map[string]int64),
	}
}

// Start begins the sampling loop.
func (t *AppTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopChan != nil {
		return
	}
	t.stopChan = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stopChan, t.done)
	t.logger.Info().Dur("interval", t.interval).Msg("App tracker started")
}

// Stop terminates the sampling loop.
func (t *AppTracker) Stop() {
	t.mu.Lock()
	stopChan, done := t.stopChan, t.done
	t.stopChan, t.done = nil, nil
	t.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.logger.Warn().Msg("App tracker did not stop in time")
	}
}

func (t *AppTracker) run(stopChan, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			t.Sample()
		}
	}
}

// Sample performs one foreground probe, charging the sample interval to the
// app (and domain, for browsers) in front. Exported for tests.
func (t *AppTracker) Sample() {
	process, title, err := t.probe()
	if err != nil || process == "" {
		return
	}

	seconds := int64(t.interval / time.Second)
	process = strings.ToLower(process)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if today := midnight(now); !today.Equal(t.today) {
		t.today = today
		t.apps = make(map[string]int64)
		t.sites = make(map[string]int64)
	}

	t.apps[friendlyAppName(process)] += seconds

	if browserProcesses[process] {
		if domain := t.extractDomain(title); domain != "" {
			t.sites[domain] += seconds
		}
	}
}

func (t *AppTracker) extractDomain(title string) string {
	if title == "" {
		return ""
	}
	if cached, ok := t.domainCache.Get(title); ok {
		return cached
	}

	domain := ""
	if m := urlInTitleRe.FindStringSubmatch(title); m != nil {
		domain = strings.ToLower(m[1])
	} else {
		clean := strings.ToLower(strings.TrimSpace(titleSeparatorRe.ReplaceAllString(title, "")))
		for keyword, d := range knownSites {
			if strings.Contains(clean, keyword) {
				domain = d
				break
			}
		}
	}

	t.domainCache.Add(title, domain)
	return domain
}

func friendlyAppName(process string) string {
	if name, ok := friendlyAppNames[process]; ok {
		return name
	}
	return strings.TrimSuffix(process, ".exe")
}

// TakeAggregates returns today's per-app and per-site seconds. The maps are
// snapshots; accrual continues, so the sync agent upserts cumulative totals.
func (t *AppTracker) TakeAggregates() ([]AppUsage, []SiteVisit) {
	t.mu.Lock()
	defer t.mu.Unlock()

	apps := make([]AppUsage, 0, len(t.apps))
	for name, secs := range t.apps {
		apps = append(apps, AppUsage{Name: name, Seconds: secs})
	}
	sites := make([]SiteVisit, 0, len(t.sites))
	for domain, secs := range t.sites {
		sites = append(sites, SiteVisit{Domain: domain, Seconds: secs})
	}
	return apps, sites
}
