// Package alert decides, per published event, whether to raise a
// notification.
package alert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/walletpulse/engine/internal/store"
)

// DefaultThresholdUSD is the fixed fallback threshold when no per-tracker
// rule matches an event.
const DefaultThresholdUSD = 10000

// maxSeenEvents bounds the dedupe window; the oldest alerted ids age out.
// Var so tests can lower it.
var maxSeenEvents = 8192

// Engine evaluates events against per-tracker rules, falling back to a
// fixed USD threshold. At most one notification is raised per event id
// within the dedupe window.
type Engine struct {
	threshold float64

	mu        sync.Mutex
	rules     map[string][]store.WalletAlertRule // trackerID -> rules
	seen      map[string]struct{}                // event ids already alerted
	seenOrder []string                           // insertion order, oldest first
}

// NewEngine creates an alert engine with the given default threshold.
// A non-positive threshold falls back to DefaultThresholdUSD.
func NewEngine(thresholdUSD float64) *Engine {
	if thresholdUSD <= 0 {
		thresholdUSD = DefaultThresholdUSD
	}
	return &Engine{
		threshold: thresholdUSD,
		rules:     make(map[string][]store.WalletAlertRule),
		seen:      make(map[string]struct{}),
	}
}

// SetRules replaces the rule set for a tracker.
func (e *Engine) SetRules(trackerID string, rules []store.WalletAlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[trackerID] = append([]store.WalletAlertRule(nil), rules...)
}

// DropTracker removes the rule set for a tracker.
func (e *Engine) DropTracker(trackerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, trackerID)
}

// ruleTypeFor maps an event type onto the rule class that governs it.
func ruleTypeFor(t store.EventType) (store.AlertRuleType, bool) {
	switch t {
	case store.EventBuy:
		return store.RuleLargeBuy, true
	case store.EventSell:
		return store.RuleLargeSell, true
	case store.EventTransferIn:
		return store.RuleInflow, true
	case store.EventTransferOut:
		return store.RuleOutflow, true
	}
	return "", false
}

// Evaluate returns a notification when the event crosses its threshold,
// or nil. A second evaluation of the same event id never alerts again.
func (e *Engine) Evaluate(event store.WalletEvent) *store.AlertNotification {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.seen[event.ID]; dup {
		return nil
	}

	threshold := e.threshold
	if ruleType, ok := ruleTypeFor(event.Type); ok {
		if rule, found := e.matchingRule(event.TrackerWalletID, ruleType); found {
			if !rule.Enabled {
				return nil
			}
			threshold = rule.Threshold
		}
	}

	if event.USDValue <= threshold {
		return nil
	}

	e.seen[event.ID] = struct{}{}
	e.seenOrder = append(e.seenOrder, event.ID)
	if len(e.seenOrder) > maxSeenEvents {
		delete(e.seen, e.seenOrder[0])
		e.seenOrder = e.seenOrder[1:]
	}

	return &store.AlertNotification{
		ID:      uuid.NewString(),
		AlertID: event.TrackerWalletID,
		EventID: event.ID,
		Title:   fmt.Sprintf("Large %s Detected: %s", event.Type, event.TokenSymbol),
		Message: fmt.Sprintf("%s %s (%s)", event.Amount, event.TokenSymbol, FormatUSD(event.USDValue)),
		Read:    false,

		CreatedAt: time.Now(),
	}
}

// matchingRule finds the tracker's rule for the given class.
func (e *Engine) matchingRule(trackerID string, ruleType store.AlertRuleType) (store.WalletAlertRule, bool) {
	for _, rule := range e.rules[trackerID] {
		if rule.Type == ruleType {
			return rule, true
		}
	}
	return store.WalletAlertRule{}, false
}

// FormatUSD renders a value as a currency string with thousand separators,
// e.g. 15000 -> "$15,000.00".
func FormatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	whole := int64(math.Floor(v))
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	return fmt.Sprintf("%s$%s.%02d", sign, strings.Join(groups, ","), cents)
}
