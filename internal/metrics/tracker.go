// Package metrics provides real-time metrics tracking for the pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/walletpulse/engine/internal/store"
)

// Snapshot is a point-in-time view of pipeline metrics.
type Snapshot struct {
	TrackersActive int
	EventsTotal    int64
	EventsByType   map[store.EventType]int64
	EventsByChain  map[store.Chain]int64
	AlertsTotal    int64
	EventRate      float64 // events per second over the last minute
	LastEventAt    time.Time
	Uptime         time.Duration
}

// Tracker counts pipeline activity. It implements the registry's sink
// surface, so it observes every published event and alert without extra
// plumbing.
type Tracker struct {
	mu              sync.RWMutex
	trackersActive  map[string]struct{}
	eventsTotal     int64
	eventsByType    map[store.EventType]int64
	eventsByChain   map[store.Chain]int64
	alertsTotal     int64
	eventTimestamps []time.Time // for rate calculation
	lastEventAt     time.Time
	startTime       time.Time
}

// NewTracker creates an empty metrics tracker.
func NewTracker() *Tracker {
	return &Tracker{
		trackersActive:  make(map[string]struct{}),
		eventsByType:    make(map[store.EventType]int64),
		eventsByChain:   make(map[store.Chain]int64),
		eventTimestamps: make([]time.Time, 0, 1000),
		startTime:       time.Now(),
	}
}

// SaveTracker records a tracker as active.
func (m *Tracker) SaveTracker(tracker store.TrackedWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackersActive[tracker.ID] = struct{}{}
	return nil
}

// DeleteTracker records a tracker removal.
func (m *Tracker) DeleteTracker(trackerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trackersActive, trackerID)
	return nil
}

// SaveEvent counts a published event.
func (m *Tracker) SaveEvent(event store.WalletEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsTotal++
	m.eventsByType[event.Type]++
	m.eventsByChain[event.Chain]++
	m.lastEventAt = time.Now()

	m.eventTimestamps = append(m.eventTimestamps, m.lastEventAt)

	// Keep only the last 60 seconds of timestamps
	cutoff := m.lastEventAt.Add(-60 * time.Second)
	validIdx := 0
	for i, ts := range m.eventTimestamps {
		if ts.After(cutoff) {
			validIdx = i
			break
		}
	}
	if validIdx > 0 {
		m.eventTimestamps = m.eventTimestamps[validIdx:]
	}
	return nil
}

// SaveAlert counts a raised alert.
func (m *Tracker) SaveAlert(alert store.AlertNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertsTotal++
	return nil
}

// Snapshot returns a point-in-time view of the counters.
func (m *Tracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rate := 0.0
	if len(m.eventTimestamps) > 0 {
		duration := time.Since(m.eventTimestamps[0]).Seconds()
		if duration > 0 {
			rate = float64(len(m.eventTimestamps)) / duration
		}
	}

	byType := make(map[store.EventType]int64, len(m.eventsByType))
	for k, v := range m.eventsByType {
		byType[k] = v
	}
	byChain := make(map[store.Chain]int64, len(m.eventsByChain))
	for k, v := range m.eventsByChain {
		byChain[k] = v
	}

	return Snapshot{
		TrackersActive: len(m.trackersActive),
		EventsTotal:    m.eventsTotal,
		EventsByType:   byType,
		EventsByChain:  byChain,
		AlertsTotal:    m.alertsTotal,
		EventRate:      rate,
		LastEventAt:    m.lastEventAt,
		Uptime:         time.Since(m.startTime),
	}
}
