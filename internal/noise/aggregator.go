// Package noise converts instantaneous sound-level samples into the current
// level, rolling average, and rolling peak consumed by the strike engine.
package noise

import (
	"math"
	"sync"
)

const (
	// MinDB and MaxDB bound every stored sample. Malformed input is clamped,
	// never rejected, so the sampling loop keeps running.
	MinDB = 0.0
	MaxDB = 120.0

	// DefaultWindowSeconds is the rolling window length.
	DefaultWindowSeconds = 10

	// DefaultSamplesPerSecond is the expected ingest cadence.
	DefaultSamplesPerSecond = 10
)

// Aggregator keeps a fixed-capacity ring buffer of recent dB samples.
// The sampling loop is the only writer; all getters are safe from any
// goroutine.
type Aggregator struct {
	mu      sync.RWMutex
	samples []float64
	next    int
	filled  int
	current float64
}

// NewAggregator creates an aggregator whose window holds
// windowSeconds*samplesPerSecond samples. Non-positive arguments fall back to
// the defaults.
func NewAggregator(windowSeconds, samplesPerSecond int) *Aggregator {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	if samplesPerSecond <= 0 {
		samplesPerSecond = DefaultSamplesPerSecond
	}
	return &Aggregator{
		samples: make([]float64, windowSeconds*samplesPerSecond),
	}
}

// clampDB normalizes a sample into [MinDB, MaxDB]. NaN maps to MinDB.
func clampDB(db float64) float64 {
	if math.IsNaN(db) {
		return MinDB
	}
	if db < MinDB {
		return MinDB
	}
	if db > MaxDB {
		return MaxDB
	}
	return db
}

// Ingest appends a sample to the ring buffer, overwriting the oldest entry
// once the window is full.
func (a *Aggregator) Ingest(db float64) {
	db = clampDB(db)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = db
	a.samples[a.next] = db
	a.next = (a.next + 1) % len(a.samples)
	if a.filled < len(a.samples) {
		a.filled++
	}
}

// Current returns the most recently ingested level.
func (a *Aggregator) Current() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Average returns the mean level over the window, 0 when empty.
func (a *Aggregator) Average() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < a.filled; i++ {
		sum += a.samples[i]
	}
	return sum / float64(a.filled)
}

// Peak returns the highest level currently in the window, 0 when empty.
func (a *Aggregator) Peak() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	peak := 0.0
	for i := 0; i < a.filled; i++ {
		if a.samples[i] > peak {
			peak = a.samples[i]
		}
	}
	return peak
}

// Reset clears the window and the peak. Used after ambient-noise calibration.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next = 0
	a.filled = 0
	a.current = 0
}
