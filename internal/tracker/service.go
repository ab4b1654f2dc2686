// Package tracker is the consumer-facing facade over the tracking
// pipeline: registry, chain data clients, classifier, live streams, and
// the alert engine.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/walletpulse/engine/internal/chaindata"
	"github.com/walletpulse/engine/internal/classify"
	"github.com/walletpulse/engine/internal/flow"
	"github.com/walletpulse/engine/internal/registry"
	"github.com/walletpulse/engine/internal/store"
	"github.com/walletpulse/engine/internal/stream"
)

// Streamer is the live-feed surface the service drives.
type Streamer interface {
	Connect(ctx context.Context, tracker store.TrackedWallet, chain store.Chain) error
	Disconnect(trackerID string)
	Shutdown()
}

// Service coordinates tracker lifecycle, historical fetches, and live
// monitoring. All methods are safe for concurrent use.
type Service struct {
	registry   *registry.Registry
	flows      *flow.Aggregator
	alerts     AlertRuleStore
	classifier *classify.Classifier
	clients    []chaindata.Client
	streams    Streamer

	mu         sync.Mutex
	monitoring bool
	monitorCtx context.Context
	cancel     context.CancelFunc
}

// AlertRuleStore is the rule-management surface of the alert engine.
type AlertRuleStore interface {
	SetRules(trackerID string, rules []store.WalletAlertRule)
	DropTracker(trackerID string)
}

// NewService wires the pipeline together.
func NewService(reg *registry.Registry, flows *flow.Aggregator, alerts AlertRuleStore, classifier *classify.Classifier, clients []chaindata.Client, streams Streamer) *Service {
	return &Service{
		registry:   reg,
		flows:      flows,
		alerts:     alerts,
		classifier: classifier,
		clients:    clients,
		streams:    streams,
	}
}

// clientFor returns the first chain data client supporting the chain.
func (s *Service) clientFor(chain store.Chain) chaindata.Client {
	for _, c := range s.clients {
		if c.Supports(chain) {
			return c
		}
	}
	return nil
}

// AddTracker registers a wallet. When monitoring is active, live feeds for
// its chains start immediately.
func (s *Service) AddTracker(tracker store.TrackedWallet) error {
	if err := s.registry.AddTracker(tracker); err != nil {
		return err
	}

	s.mu.Lock()
	monitoring := s.monitoring
	ctx := s.monitorCtx
	s.mu.Unlock()

	if monitoring {
		s.connectTracker(ctx, tracker)
	}
	return nil
}

// RemoveTracker disconnects the tracker's live feeds, then purges all of
// its state. Removing an unknown id is a no-op.
func (s *Service) RemoveTracker(trackerID string) {
	s.streams.Disconnect(trackerID)
	s.alerts.DropTracker(trackerID)
	s.registry.RemoveTracker(trackerID)
}

// UpdateTracker merges the given fields into the tracker.
func (s *Service) UpdateTracker(trackerID string, update registry.TrackerUpdate) {
	s.registry.UpdateTracker(trackerID, update)
}

// SetAlertRules replaces the tracker's alert rule set.
func (s *Service) SetAlertRules(trackerID string, rules []store.WalletAlertRule) {
	s.alerts.SetRules(trackerID, rules)
}

// GetTrackerEvents returns the tracker's events, most recent first.
func (s *Service) GetTrackerEvents(trackerID string) []store.WalletEvent {
	return s.registry.TrackerEvents(trackerID)
}

// GetTrackerFlows returns the tracker's per-token flow aggregates.
func (s *Service) GetTrackerFlows(trackerID string) []store.WalletFlow {
	return s.flows.TrackerFlows(trackerID)
}

// GetAlerts returns raised notifications, most recent first.
func (s *Service) GetAlerts() []store.AlertNotification {
	return s.registry.Alerts()
}

// MarkAlertRead flips the read flag on a notification.
func (s *Service) MarkAlertRead(alertID string) {
	s.registry.MarkAlertRead(alertID)
}

// OnEvent subscribes to one tracker's live events.
func (s *Service) OnEvent(trackerID string, fn registry.EventListener) registry.Disposer {
	return s.registry.Bus().Subscribe(trackerID, fn)
}

// OnAlert subscribes to all raised alerts.
func (s *Service) OnAlert(fn registry.AlertListener) registry.Disposer {
	return s.registry.Bus().SubscribeAlerts(fn)
}

// FetchTrackerData pulls historical activity for one tracker on one chain:
// native transactions, the token portfolio, and directional transfers.
// Provider failures are logged and treated as zero results so one bad
// chain never aborts a refresh.
func (s *Service) FetchTrackerData(ctx context.Context, trackerID string, chain store.Chain) error {
	tracker, ok := s.registry.Tracker(trackerID)
	if !ok {
		return nil
	}

	client := s.clientFor(chain)
	if client == nil {
		slog.Debug("fetch_no_client", "tracker", trackerID, "chain", chain)
		return nil
	}

	txs, err := client.GetTransactions(ctx, tracker.WalletAddress, chain)
	if err != nil {
		logProviderError("fetch_transactions_failed", trackerID, chain, err)
		txs = nil
	}
	for _, raw := range txs {
		if event := s.classifier.Classify(ctx, raw, tracker, chain); event != nil {
			s.registry.PublishEvent(*event)
		}
	}

	portfolio, err := client.GetPortfolio(ctx, tracker.WalletAddress, chain)
	if err != nil {
		logProviderError("fetch_portfolio_failed", trackerID, chain, err)
	} else {
		for _, f := range portfolio.Flows {
			s.flows.Seed(trackerID, f)
		}
	}

	buys, err := client.DetectBuys(ctx, tracker.WalletAddress, chain)
	if err != nil {
		logProviderError("fetch_buys_failed", trackerID, chain, err)
		buys = nil
	}
	sells, err := client.DetectSells(ctx, tracker.WalletAddress, chain)
	if err != nil {
		logProviderError("fetch_sells_failed", trackerID, chain, err)
		sells = nil
	}
	for _, raw := range append(buys, sells...) {
		if event := s.classifier.Classify(ctx, raw, tracker, chain); event != nil {
			s.registry.PublishEvent(*event)
		}
	}

	return ctx.Err()
}

// FetchAllTrackerData refreshes every tracker. Trackers run concurrently;
// a tracker's chains run sequentially to keep provider load bounded.
func (s *Service) FetchAllTrackerData(ctx context.Context) {
	trackers := s.registry.Trackers()

	var wg sync.WaitGroup
	for _, tracker := range trackers {
		wg.Add(1)
		go func(t store.TrackedWallet) {
			defer wg.Done()
			for _, chain := range t.Chains {
				if ctx.Err() != nil {
					return
				}
				if err := s.FetchTrackerData(ctx, t.ID, chain); err != nil {
					slog.Warn("fetch_tracker_aborted", "tracker", t.ID, "chain", chain, "error", err)
					return
				}
			}
		}(tracker)
	}
	wg.Wait()
}

// StartTrackerMonitoring opens live feeds for one tracker's chains,
// independent of global monitoring. Unknown ids are a no-op, and starting
// an already-monitored tracker leaves its existing connections in place.
func (s *Service) StartTrackerMonitoring(ctx context.Context, trackerID string) {
	tracker, ok := s.registry.Tracker(trackerID)
	if !ok {
		return
	}
	s.connectTracker(ctx, tracker)
}

// StopTrackerMonitoring closes one tracker's live feeds. The tracker's
// state and every other tracker's feeds are untouched; stopping an
// unmonitored tracker is a no-op.
func (s *Service) StopTrackerMonitoring(trackerID string) {
	s.streams.Disconnect(trackerID)
}

// StartMonitoring opens live feeds for every tracker. Calling it while
// monitoring is already active is a no-op.
func (s *Service) StartMonitoring(ctx context.Context) {
	s.mu.Lock()
	if s.monitoring {
		s.mu.Unlock()
		return
	}
	s.monitoring = true
	s.monitorCtx, s.cancel = context.WithCancel(ctx)
	monitorCtx := s.monitorCtx
	s.mu.Unlock()

	slog.Info("monitoring_started")

	for _, tracker := range s.registry.Trackers() {
		s.connectTracker(monitorCtx, tracker)
	}
}

// StopMonitoring closes every live feed.
func (s *Service) StopMonitoring() {
	s.mu.Lock()
	if !s.monitoring {
		s.mu.Unlock()
		return
	}
	s.monitoring = false
	cancel := s.cancel
	s.cancel = nil
	s.monitorCtx = nil
	s.mu.Unlock()

	cancel()
	s.streams.Shutdown()
	slog.Info("monitoring_stopped")
}

// connectTracker opens a feed per chain, logging configuration gaps rather
// than failing.
func (s *Service) connectTracker(ctx context.Context, tracker store.TrackedWallet) {
	for _, chain := range tracker.Chains {
		if err := s.streams.Connect(ctx, tracker, chain); err != nil {
			var cfgErr *stream.ConfigurationError
			if errors.As(err, &cfgErr) {
				slog.Warn("stream_not_configured", "tracker", tracker.ID, "chain", chain, "reason", cfgErr.Reason)
				continue
			}
			slog.Warn("stream_connect_error", "tracker", tracker.ID, "chain", chain, "error", err)
		}
	}
}

func logProviderError(msg, trackerID string, chain store.Chain, err error) {
	var provErr *chaindata.ProviderError
	if errors.As(err, &provErr) {
		slog.Warn(msg, "tracker", trackerID, "chain", chain, "provider", provErr.Provider, "status", provErr.StatusCode, "error", err)
		return
	}
	slog.Warn(msg, "tracker", trackerID, "chain", chain, "error", err)
}
