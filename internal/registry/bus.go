// Package registry holds the set of tracked wallets and fans events out to
// subscribers.
package registry

import (
	"sync"

	"github.com/walletpulse/engine/internal/store"
)

// EventListener receives wallet events for a single tracker.
type EventListener func(store.WalletEvent)

// AlertListener receives every alert notification raised by the engine.
type AlertListener func(store.AlertNotification)

// Disposer removes a previously registered listener.
type Disposer func()

// Bus is an explicitly constructed pub/sub hub for wallet events and
// alerts. Delivery is synchronous: per-listener ordering follows publish
// order, ordering across listeners is unspecified.
type Bus struct {
	mu             sync.RWMutex
	nextID         int
	eventListeners map[string]map[int]EventListener // trackerID -> listeners
	alertListeners map[int]AlertListener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		eventListeners: make(map[string]map[int]EventListener),
		alertListeners: make(map[int]AlertListener),
	}
}

// Subscribe registers a listener for events of a single tracker and
// returns a disposer that removes it.
func (b *Bus) Subscribe(trackerID string, fn EventListener) Disposer {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	listeners, ok := b.eventListeners[trackerID]
	if !ok {
		listeners = make(map[int]EventListener)
		b.eventListeners[trackerID] = listeners
	}
	listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ls, ok := b.eventListeners[trackerID]; ok {
			delete(ls, id)
			if len(ls) == 0 {
				delete(b.eventListeners, trackerID)
			}
		}
	}
}

// SubscribeAlerts registers a global alert listener and returns a disposer.
func (b *Bus) SubscribeAlerts(fn AlertListener) Disposer {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.alertListeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.alertListeners, id)
	}
}

// EmitEvent delivers an event to every listener of its tracker.
func (b *Bus) EmitEvent(event store.WalletEvent) {
	b.mu.RLock()
	listeners := make([]EventListener, 0, len(b.eventListeners[event.TrackerWalletID]))
	for _, fn := range b.eventListeners[event.TrackerWalletID] {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// EmitAlert delivers an alert to every global alert listener.
func (b *Bus) EmitAlert(alert store.AlertNotification) {
	b.mu.RLock()
	listeners := make([]AlertListener, 0, len(b.alertListeners))
	for _, fn := range b.alertListeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(alert)
	}
}
