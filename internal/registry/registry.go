package registry

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/walletpulse/engine/internal/store"
)

// FlowApplier updates per-token flow state from a published event.
type FlowApplier interface {
	ApplyEvent(event store.WalletEvent)
	TrackerFlows(trackerID string) []store.WalletFlow
	DropTracker(trackerID string)
}

// AlertEvaluator inspects a published event and returns a notification
// when it crosses a configured threshold, or nil.
type AlertEvaluator interface {
	Evaluate(event store.WalletEvent) *store.AlertNotification
}

// EventSink observes registry mutations for optional persistence. Sink
// errors are logged, never propagated.
type EventSink interface {
	SaveTracker(tracker store.TrackedWallet) error
	DeleteTracker(trackerID string) error
	SaveEvent(event store.WalletEvent) error
	SaveAlert(alert store.AlertNotification) error
}

// MultiSink fans registry mutations out to several sinks. The first error
// is returned after every sink has been tried.
type MultiSink []EventSink

func (m MultiSink) SaveTracker(tracker store.TrackedWallet) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveTracker(tracker); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) DeleteTracker(trackerID string) error {
	var firstErr error
	for _, s := range m {
		if err := s.DeleteTracker(trackerID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) SaveEvent(event store.WalletEvent) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveEvent(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) SaveAlert(alert store.AlertNotification) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveAlert(alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TrackerUpdate carries the mutable fields of UpdateTracker. Nil fields
// are left unchanged.
type TrackerUpdate struct {
	Alias  *string
	Chains []store.Chain
	Tags   []string
}

// Registry is the source of truth for tracked wallets, the ordered event
// log, and raised alerts. It is safe for concurrent use: one writer per
// active subscription plus the periodic fetcher.
type Registry struct {
	bus    *Bus
	flows  FlowApplier
	alerts AlertEvaluator

	mu            sync.RWMutex
	trackers      map[string]store.TrackedWallet
	events        []store.WalletEvent // most-recent-first
	seen          map[string]struct{} // (tracker, event id) pairs in the log
	notifications []store.AlertNotification
	sink          EventSink
}

// maxEventLog bounds the in-memory event log. The oldest events age out
// once the cap is reached. Var so tests can lower it.
var maxEventLog = 10000

func eventKey(trackerID, eventID string) string {
	return trackerID + "\x00" + eventID
}

// New creates a registry wired to the given bus, flow state, and alert
// engine.
func New(bus *Bus, flows FlowApplier, alerts AlertEvaluator) *Registry {
	return &Registry{
		bus:      bus,
		flows:    flows,
		alerts:   alerts,
		trackers: make(map[string]store.TrackedWallet),
		seen:     make(map[string]struct{}),
	}
}

// SetSink attaches an optional persistence sink.
func (r *Registry) SetSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Bus returns the registry's event bus.
func (r *Registry) Bus() *Bus {
	return r.bus
}

// AddTracker inserts a tracker. ID uniqueness is the caller's
// responsibility; an existing id is overwritten.
func (r *Registry) AddTracker(tracker store.TrackedWallet) error {
	if tracker.WalletAddress == "" {
		return ErrMissingAddress
	}
	if tracker.Alias == "" {
		return ErrMissingAlias
	}

	now := time.Now()
	if tracker.CreatedAt.IsZero() {
		tracker.CreatedAt = now
	}
	tracker.LastUpdated = now

	r.mu.Lock()
	r.trackers[tracker.ID] = tracker
	sink := r.sink
	r.mu.Unlock()

	slog.Info("tracker_added", "tracker", tracker.ID, "address", tracker.WalletAddress, "chains", len(tracker.Chains))

	if sink != nil {
		if err := sink.SaveTracker(tracker); err != nil {
			slog.Warn("sink_save_tracker_failed", "tracker", tracker.ID, "error", err)
		}
	}
	return nil
}

// RemoveTracker removes a tracker and purges all of its events, flows, and
// pending state. Removing an unknown id is a no-op.
func (r *Registry) RemoveTracker(trackerID string) {
	r.mu.Lock()
	_, existed := r.trackers[trackerID]
	delete(r.trackers, trackerID)

	if existed {
		kept := r.events[:0]
		for _, e := range r.events {
			if e.TrackerWalletID != trackerID {
				kept = append(kept, e)
			}
		}
		r.events = kept

		prefix := trackerID + "\x00"
		for k := range r.seen {
			if strings.HasPrefix(k, prefix) {
				delete(r.seen, k)
			}
		}
	}
	sink := r.sink
	r.mu.Unlock()

	if !existed {
		return
	}

	r.flows.DropTracker(trackerID)
	slog.Info("tracker_removed", "tracker", trackerID)

	if sink != nil {
		if err := sink.DeleteTracker(trackerID); err != nil {
			slog.Warn("sink_delete_tracker_failed", "tracker", trackerID, "error", err)
		}
	}
}

// UpdateTracker merges the given fields and bumps LastUpdated. Unknown ids
// are ignored.
func (r *Registry) UpdateTracker(trackerID string, update TrackerUpdate) {
	r.mu.Lock()
	tracker, ok := r.trackers[trackerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	if update.Alias != nil {
		tracker.Alias = *update.Alias
	}
	if update.Chains != nil {
		tracker.Chains = update.Chains
	}
	if update.Tags != nil {
		tracker.Tags = update.Tags
	}
	tracker.LastUpdated = time.Now()
	r.trackers[trackerID] = tracker
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		if err := sink.SaveTracker(tracker); err != nil {
			slog.Warn("sink_save_tracker_failed", "tracker", trackerID, "error", err)
		}
	}
}

// Tracker returns a tracker by id.
func (r *Registry) Tracker(trackerID string) (store.TrackedWallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracker, ok := r.trackers[trackerID]
	return tracker, ok
}

// Trackers returns all tracked wallets.
func (r *Registry) Trackers() []store.TrackedWallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.TrackedWallet, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, t)
	}
	return out
}

// PublishEvent appends the event to the log, updates flow state, notifies
// listeners, then runs alert evaluation. Events for removed trackers are
// discarded so a late in-flight message cannot resurrect state, and a
// (tracker, event id) pair already in the log is dropped so periodic
// refreshes can re-publish overlapping history safely.
func (r *Registry) PublishEvent(event store.WalletEvent) {
	key := eventKey(event.TrackerWalletID, event.ID)

	r.mu.Lock()
	if _, ok := r.trackers[event.TrackerWalletID]; !ok {
		r.mu.Unlock()
		slog.Debug("event_dropped_unknown_tracker", "tracker", event.TrackerWalletID, "tx", event.TxHash)
		return
	}
	if _, dup := r.seen[key]; dup {
		r.mu.Unlock()
		slog.Debug("event_dropped_duplicate", "tracker", event.TrackerWalletID, "tx", event.TxHash)
		return
	}
	r.seen[key] = struct{}{}
	r.events = append([]store.WalletEvent{event}, r.events...)
	if len(r.events) > maxEventLog {
		for _, old := range r.events[maxEventLog:] {
			delete(r.seen, eventKey(old.TrackerWalletID, old.ID))
		}
		r.events = r.events[:maxEventLog]
	}
	sink := r.sink
	r.mu.Unlock()

	r.flows.ApplyEvent(event)

	// A removal can complete between the log append above and the flow
	// apply. Re-check and purge so a removed tracker keeps no flow state.
	r.mu.RLock()
	_, alive := r.trackers[event.TrackerWalletID]
	r.mu.RUnlock()
	if !alive {
		r.flows.DropTracker(event.TrackerWalletID)
		return
	}

	r.bus.EmitEvent(event)

	if sink != nil {
		if err := sink.SaveEvent(event); err != nil {
			slog.Warn("sink_save_event_failed", "event", event.ID, "error", err)
		}
	}

	if alert := r.alerts.Evaluate(event); alert != nil {
		r.PublishAlert(*alert)
	}
}

// PublishAlert records the notification and notifies alert listeners.
func (r *Registry) PublishAlert(alert store.AlertNotification) {
	r.mu.Lock()
	r.notifications = append([]store.AlertNotification{alert}, r.notifications...)
	sink := r.sink
	r.mu.Unlock()

	slog.Info("alert_raised", "tracker", alert.AlertID, "event", alert.EventID, "title", alert.Title)
	r.bus.EmitAlert(alert)

	if sink != nil {
		if err := sink.SaveAlert(alert); err != nil {
			slog.Warn("sink_save_alert_failed", "alert", alert.ID, "error", err)
		}
	}
}

// TrackerEvents returns the events for one tracker, most recent first.
func (r *Registry) TrackerEvents(trackerID string) []store.WalletEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.WalletEvent
	for _, e := range r.events {
		if e.TrackerWalletID == trackerID {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the full event log, most recent first.
func (r *Registry) Events() []store.WalletEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]store.WalletEvent(nil), r.events...)
}

// Alerts returns raised notifications, most recent first.
func (r *Registry) Alerts() []store.AlertNotification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]store.AlertNotification(nil), r.notifications...)
}

// MarkAlertRead flips the read flag on a notification.
func (r *Registry) MarkAlertRead(alertID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == alertID {
			r.notifications[i].Read = true
			return
		}
	}
}
