package registry

import (
	"errors"
	"testing"

	"github.com/walletpulse/engine/internal/flow"
	"github.com/walletpulse/engine/internal/store"
)

// stubFlows records apply and drop calls.
type stubFlows struct {
	applied []store.WalletEvent
	dropped []string
}

func (s *stubFlows) ApplyEvent(event store.WalletEvent)               { s.applied = append(s.applied, event) }
func (s *stubFlows) TrackerFlows(trackerID string) []store.WalletFlow { return nil }
func (s *stubFlows) DropTracker(trackerID string)                     { s.dropped = append(s.dropped, trackerID) }

// stubAlerts raises a canned notification when armed.
type stubAlerts struct {
	notification *store.AlertNotification
}

func (s *stubAlerts) Evaluate(event store.WalletEvent) *store.AlertNotification {
	return s.notification
}

func newTestRegistry() (*Registry, *stubFlows, *stubAlerts) {
	flows := &stubFlows{}
	alerts := &stubAlerts{}
	return New(NewBus(), flows, alerts), flows, alerts
}

func testWallet(id string) store.TrackedWallet {
	return store.TrackedWallet{
		ID:            id,
		WalletAddress: "0xabc0000000000000000000000000000000000001",
		Alias:         "whale",
		Chains:        []store.Chain{store.ChainETH},
	}
}

func testEvent(trackerID, id string) store.WalletEvent {
	return store.WalletEvent{
		ID:              id,
		TrackerWalletID: trackerID,
		Type:            store.EventBuy,
		TokenAddress:    "0x1111111111111111111111111111111111111111",
		Amount:          "10",
	}
}

func TestAddTrackerValidation(t *testing.T) {
	r, _, _ := newTestRegistry()

	noAddr := testWallet("t1")
	noAddr.WalletAddress = ""
	if err := r.AddTracker(noAddr); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Expected ErrMissingAddress, got %v", err)
	}

	noAlias := testWallet("t1")
	noAlias.Alias = ""
	if err := r.AddTracker(noAlias); !errors.Is(err, ErrMissingAlias) {
		t.Errorf("Expected ErrMissingAlias, got %v", err)
	}

	if err := r.AddTracker(testWallet("t1")); err != nil {
		t.Errorf("Expected valid tracker to be accepted, got %v", err)
	}

	tracker, ok := r.Tracker("t1")
	if !ok {
		t.Fatal("Expected tracker to be stored")
	}
	if tracker.CreatedAt.IsZero() || tracker.LastUpdated.IsZero() {
		t.Error("Expected timestamps to be set on add")
	}
}

func TestPublishEventOrdering(t *testing.T) {
	r, flows, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))

	r.PublishEvent(testEvent("t1", "evt-1"))
	r.PublishEvent(testEvent("t1", "evt-2"))

	events := r.TrackerEvents("t1")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].ID != "evt-2" || events[1].ID != "evt-1" {
		t.Errorf("Expected most-recent-first ordering, got %s, %s", events[0].ID, events[1].ID)
	}
	if len(flows.applied) != 2 {
		t.Errorf("Expected flow state to see both events, got %d", len(flows.applied))
	}
}

func TestPublishEventUnknownTrackerDropped(t *testing.T) {
	r, flows, _ := newTestRegistry()

	r.PublishEvent(testEvent("ghost", "evt-1"))

	if len(r.Events()) != 0 {
		t.Error("Expected event for unknown tracker to be discarded")
	}
	if len(flows.applied) != 0 {
		t.Error("Expected flow state untouched for unknown tracker")
	}
}

func TestRemoveTrackerPurges(t *testing.T) {
	r, flows, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))
	r.AddTracker(testWallet("t2"))
	r.PublishEvent(testEvent("t1", "evt-1"))
	r.PublishEvent(testEvent("t2", "evt-2"))

	r.RemoveTracker("t1")

	if _, ok := r.Tracker("t1"); ok {
		t.Error("Expected tracker to be gone")
	}
	if events := r.TrackerEvents("t1"); len(events) != 0 {
		t.Errorf("Expected t1 events purged, got %d", len(events))
	}
	if events := r.TrackerEvents("t2"); len(events) != 1 {
		t.Errorf("Expected t2 events untouched, got %d", len(events))
	}
	if len(flows.dropped) != 1 || flows.dropped[0] != "t1" {
		t.Errorf("Expected flow drop for t1, got %v", flows.dropped)
	}

	// A late in-flight event must not resurrect state
	r.PublishEvent(testEvent("t1", "evt-late"))
	if events := r.TrackerEvents("t1"); len(events) != 0 {
		t.Error("Expected late event after removal to be discarded")
	}

	// Removing again is a no-op
	r.RemoveTracker("t1")
	if len(flows.dropped) != 1 {
		t.Errorf("Expected idempotent removal, got %v", flows.dropped)
	}
}

func TestUpdateTracker(t *testing.T) {
	r, _, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))

	alias := "renamed"
	r.UpdateTracker("t1", TrackerUpdate{
		Alias:  &alias,
		Chains: []store.Chain{store.ChainBase},
	})

	tracker, _ := r.Tracker("t1")
	if tracker.Alias != "renamed" {
		t.Errorf("Expected alias renamed, got %s", tracker.Alias)
	}
	if len(tracker.Chains) != 1 || tracker.Chains[0] != store.ChainBase {
		t.Errorf("Expected chains replaced, got %v", tracker.Chains)
	}

	// Unknown id is silently ignored
	r.UpdateTracker("ghost", TrackerUpdate{Alias: &alias})
}

func TestBusSubscription(t *testing.T) {
	r, _, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))
	r.AddTracker(testWallet("t2"))

	var got []string
	dispose := r.Bus().Subscribe("t1", func(e store.WalletEvent) {
		got = append(got, e.ID)
	})

	r.PublishEvent(testEvent("t1", "evt-1"))
	r.PublishEvent(testEvent("t2", "evt-other"))

	if len(got) != 1 || got[0] != "evt-1" {
		t.Errorf("Expected only t1 events delivered, got %v", got)
	}

	dispose()
	r.PublishEvent(testEvent("t1", "evt-2"))
	if len(got) != 1 {
		t.Errorf("Expected no delivery after dispose, got %v", got)
	}
}

func TestAlertFlow(t *testing.T) {
	r, _, alerts := newTestRegistry()
	r.AddTracker(testWallet("t1"))

	var received []store.AlertNotification
	r.Bus().SubscribeAlerts(func(a store.AlertNotification) {
		received = append(received, a)
	})

	alerts.notification = &store.AlertNotification{ID: "alert-1", AlertID: "t1", EventID: "evt-1"}
	r.PublishEvent(testEvent("t1", "evt-1"))

	if len(received) != 1 {
		t.Fatalf("Expected 1 alert delivered, got %d", len(received))
	}
	if len(r.Alerts()) != 1 {
		t.Fatalf("Expected 1 alert recorded, got %d", len(r.Alerts()))
	}

	r.MarkAlertRead("alert-1")
	if !r.Alerts()[0].Read {
		t.Error("Expected alert to be marked read")
	}
}

// removeDuringApply drops the tracker between the registry's log append
// and the flow update, then forwards to a real aggregator. It models a
// removal completing while an event is mid-publish.
type removeDuringApply struct {
	agg *flow.Aggregator
	reg *Registry
}

func (f *removeDuringApply) ApplyEvent(event store.WalletEvent) {
	f.reg.RemoveTracker(event.TrackerWalletID)
	f.agg.ApplyEvent(event)
}

func (f *removeDuringApply) TrackerFlows(trackerID string) []store.WalletFlow {
	return f.agg.TrackerFlows(trackerID)
}

func (f *removeDuringApply) DropTracker(trackerID string) {
	f.agg.DropTracker(trackerID)
}

func TestPublishEventRemovalDuringFlowApply(t *testing.T) {
	agg := flow.NewAggregator()
	flows := &removeDuringApply{agg: agg}
	r := New(NewBus(), flows, &stubAlerts{})
	flows.reg = r

	r.AddTracker(testWallet("t1"))
	r.PublishEvent(testEvent("t1", "evt-1"))

	if got := agg.TrackerFlows("t1"); len(got) != 0 {
		t.Errorf("Expected no flow state for the removed tracker, got %+v", got)
	}
	if got := r.TrackerEvents("t1"); len(got) != 0 {
		t.Errorf("Expected no events for the removed tracker, got %d", len(got))
	}
}

func TestPublishEventDeduplicates(t *testing.T) {
	r, flows, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))

	r.PublishEvent(testEvent("t1", "evt-1"))
	r.PublishEvent(testEvent("t1", "evt-1"))

	if got := len(r.TrackerEvents("t1")); got != 1 {
		t.Errorf("Expected 1 event after a duplicate publish, got %d", got)
	}
	if len(flows.applied) != 1 {
		t.Errorf("Expected flow state applied once, got %d applies", len(flows.applied))
	}

	// Removal purges the dedupe state along with the events
	r.RemoveTracker("t1")
	r.AddTracker(testWallet("t1"))
	r.PublishEvent(testEvent("t1", "evt-1"))
	if got := len(r.TrackerEvents("t1")); got != 1 {
		t.Errorf("Expected a republish to land after removal, got %d events", got)
	}
}

func TestEventLogBounded(t *testing.T) {
	old := maxEventLog
	maxEventLog = 3
	defer func() { maxEventLog = old }()

	r, _, _ := newTestRegistry()
	r.AddTracker(testWallet("t1"))

	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		r.PublishEvent(testEvent("t1", id))
	}

	events := r.Events()
	if len(events) != 3 {
		t.Fatalf("Expected log capped at 3 events, got %d", len(events))
	}
	if events[0].ID != "e5" || events[2].ID != "e3" {
		t.Errorf("Expected the newest events kept, got %s..%s", events[0].ID, events[2].ID)
	}

	// An aged-out id is publishable again
	r.PublishEvent(testEvent("t1", "e1"))
	if got := r.Events()[0].ID; got != "e1" {
		t.Errorf("Expected an aged-out id to republish, got %s", got)
	}
}
