// Package flow maintains per-token net flow state for each tracked wallet.
package flow

import (
	"strconv"
	"sync"

	"github.com/walletpulse/engine/internal/store"
)

// trackerFlows holds the flow table for one tracker. Each tracker has its
// own lock so concurrent applies to the same (tracker, token) pair are
// serialized without contending across trackers.
type trackerFlows struct {
	mu    sync.Mutex
	byTok map[string]store.WalletFlow
}

// Aggregator upserts WalletFlow entries as events are published. The
// invariant NetFlow == Inflow - Outflow holds after every apply.
type Aggregator struct {
	mu       sync.RWMutex
	trackers map[string]*trackerFlows
}

// NewAggregator creates an empty flow aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		trackers: make(map[string]*trackerFlows),
	}
}

func (a *Aggregator) forTracker(trackerID string) *trackerFlows {
	a.mu.RLock()
	tf, ok := a.trackers[trackerID]
	a.mu.RUnlock()
	if ok {
		return tf
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if tf, ok = a.trackers[trackerID]; ok {
		return tf
	}
	tf = &trackerFlows{byTok: make(map[string]store.WalletFlow)}
	a.trackers[trackerID] = tf
	return tf
}

// ApplyEvent updates the flow entry for the event's token. Inflow-type
// events add to inflow, outflow-type to outflow; events with no direction
// (e.g. SWAP with unresolved side) leave the counters alone but still
// refresh the USD snapshot.
func (a *Aggregator) ApplyEvent(event store.WalletEvent) {
	if event.TokenAddress == "" {
		return
	}

	amount, err := strconv.ParseFloat(event.Amount, 64)
	if err != nil {
		amount = 0
	}

	tf := a.forTracker(event.TrackerWalletID)
	tf.mu.Lock()
	defer tf.mu.Unlock()

	entry, ok := tf.byTok[event.TokenAddress]
	if !ok {
		entry = store.WalletFlow{
			TokenAddress: event.TokenAddress,
			TokenSymbol:  event.TokenSymbol,
		}
	}

	switch {
	case event.Type.IsInflow():
		entry.Inflow += amount
	case event.Type.IsOutflow():
		entry.Outflow += amount
	}
	entry.NetFlow = entry.Inflow - entry.Outflow

	// USD value is a refreshed snapshot at the latest event's price, not a
	// cumulative sum, so stale prices don't accumulate.
	entry.USDValue = event.USDValue
	if entry.TokenSymbol == "" {
		entry.TokenSymbol = event.TokenSymbol
	}

	tf.byTok[event.TokenAddress] = entry
}

// TrackerFlows returns a copy of the flow table for one tracker.
func (a *Aggregator) TrackerFlows(trackerID string) []store.WalletFlow {
	a.mu.RLock()
	tf, ok := a.trackers[trackerID]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()
	out := make([]store.WalletFlow, 0, len(tf.byTok))
	for _, entry := range tf.byTok {
		out = append(out, entry)
	}
	return out
}

// DropTracker removes all flow state for a tracker.
func (a *Aggregator) DropTracker(trackerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.trackers, trackerID)
}

// Seed replaces or inserts a flow entry directly, used when ingesting a
// provider portfolio snapshot.
func (a *Aggregator) Seed(trackerID string, f store.WalletFlow) {
	f.NetFlow = f.Inflow - f.Outflow

	tf := a.forTracker(trackerID)
	tf.mu.Lock()
	defer tf.mu.Unlock()
	tf.byTok[f.TokenAddress] = f
}
