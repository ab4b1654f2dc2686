// Package stream maintains live WebSocket subscriptions to pending router
// transactions, one connection per (tracker, chain) pair.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/walletpulse/engine/internal/store"
)

// State describes a connection's lifecycle position.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateSubscribed   State = "SUBSCRIBED"
)

// Classifier turns a raw pending transaction into a wallet event, or nil
// when the transaction is not interpretable.
type Classifier interface {
	Classify(ctx context.Context, raw store.RawTx, tracker store.TrackedWallet, chain store.Chain) *store.WalletEvent
}

// Publisher receives classified events from live connections.
type Publisher interface {
	PublishEvent(event store.WalletEvent)
}

type connKey struct {
	trackerID string
	chain     store.Chain
}

// Manager owns all live connections. Connect and Disconnect are safe for
// concurrent use; each key holds at most one connection.
type Manager struct {
	apiKey     string
	routers    map[store.Chain][]string
	classifier Classifier
	publisher  Publisher
	dialer     Dialer

	mu    sync.Mutex
	conns map[connKey]*connection
}

// NewManager creates a manager using the real WebSocket dialer.
func NewManager(apiKey string, routers map[store.Chain][]string, classifier Classifier, publisher Publisher) *Manager {
	return &Manager{
		apiKey:     apiKey,
		routers:    routers,
		classifier: classifier,
		publisher:  publisher,
		dialer:     gorillaDialer{},
		conns:      make(map[connKey]*connection),
	}
}

// SetDialer replaces the transport. Used by tests.
func (m *Manager) SetDialer(d Dialer) {
	m.dialer = d
}

// Connect starts a live feed for the tracker on the given chain. Calling it
// again for the same pair while a connection exists is a no-op.
func (m *Manager) Connect(ctx context.Context, tracker store.TrackedWallet, chain store.Chain) error {
	endpoint := chain.WebSocketURL(m.apiKey)
	if endpoint == "" {
		slog.Debug("stream_chain_unsupported", "chain", chain, "tracker", tracker.ID)
		return nil
	}
	if m.apiKey == "" {
		return &ConfigurationError{Chain: string(chain), Reason: "missing API key"}
	}

	key := connKey{trackerID: tracker.ID, chain: chain}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[key]; exists {
		slog.Debug("stream_already_connected", "tracker", tracker.ID, "chain", chain)
		return nil
	}

	c := newConnection(endpoint, chain, tracker, m.routers[chain], m.classifier, m.publisher, m.dialer)
	m.conns[key] = c
	c.start(ctx)

	slog.Info("stream_connect", "tracker", tracker.ID, "chain", chain)
	return nil
}

// Disconnect tears down every connection belonging to the tracker.
func (m *Manager) Disconnect(trackerID string) {
	m.mu.Lock()
	var closing []*connection
	for key, c := range m.conns {
		if key.trackerID == trackerID {
			closing = append(closing, c)
			delete(m.conns, key)
		}
	}
	m.mu.Unlock()

	for _, c := range closing {
		c.stop()
	}

	if len(closing) > 0 {
		slog.Info("stream_disconnect", "tracker", trackerID, "connections", len(closing))
	}
}

// State reports the lifecycle state for the tracker/chain pair.
func (m *Manager) State(trackerID string, chain store.Chain) State {
	m.mu.Lock()
	c, ok := m.conns[connKey{trackerID: trackerID, chain: chain}]
	m.mu.Unlock()

	if !ok {
		return StateDisconnected
	}
	return c.state()
}

// ActiveConnections returns the number of live connections.
func (m *Manager) ActiveConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Shutdown closes every connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	closing := make([]*connection, 0, len(m.conns))
	for key, c := range m.conns {
		closing = append(closing, c)
		delete(m.conns, key)
	}
	m.mu.Unlock()

	for _, c := range closing {
		c.stop()
	}
}
