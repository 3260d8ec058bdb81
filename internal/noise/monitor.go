package noise

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SampleFunc produces one instantaneous sound level in dB. Implementations
// wrap the platform audio capture, which lives outside this module.
type SampleFunc func() (float64, error)

// UpdateFunc receives the aggregated state after each sample.
type UpdateFunc func(current, average, peak float64)

// Monitor drives an Aggregator from a SampleFunc at a fixed cadence on a
// background goroutine.
type Monitor struct {
	agg      *Aggregator
	sample   SampleFunc
	onUpdate UpdateFunc
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor sampling at the given cadence. A zero interval
// defaults to 100ms (10 samples/second).
func NewMonitor(agg *Aggregator, sample SampleFunc, onUpdate UpdateFunc, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Monitor{
		agg:      agg,
		sample:   sample,
		onUpdate: onUpdate,
		interval: interval,
		logger:   logger.With().Str("component", "noise-monitor").Logger(),
	}
}

// Start begins the sampling loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopChan != nil {
		return
	}
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stopChan, m.done)
	m.logger.Info().Dur("interval", m.interval).Msg("Noise monitor started")
}

// Stop terminates the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopChan, done := m.stopChan, m.done
	m.stopChan, m.done = nil, nil
	m.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		m.logger.Warn().Msg("Noise monitor did not stop in time")
	}
}

func (m *Monitor) run(stopChan, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			db, err := m.sample()
			if err != nil {
				// Capture failures are transient (device busy, driver
				// hiccup); keep the loop alive.
				m.logger.Debug().Err(err).Msg("Sample failed")
				continue
			}
			m.agg.Ingest(db)
			if m.onUpdate != nil {
				m.onUpdate(m.agg.Current(), m.agg.Average(), m.agg.Peak())
			}
		}
	}
}

// RMSToDB converts a raw RMS amplitude (16-bit full scale) into the dB-like
// scalar used across the agent, clamped to [MinDB, MaxDB].
func RMSToDB(rms float64) float64 {
	if rms < 1 {
		return 0
	}
	return clampDB(20*math.Log10(rms/32768.0) + 96)
}
