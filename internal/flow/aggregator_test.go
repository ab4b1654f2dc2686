package flow

import (
	"testing"

	"github.com/walletpulse/engine/internal/store"
)

const testToken = "0x1111111111111111111111111111111111111111"

func event(trackerID string, eventType store.EventType, amount string, usd float64) store.WalletEvent {
	return store.WalletEvent{
		ID:              "evt-" + amount,
		TrackerWalletID: trackerID,
		Type:            eventType,
		TokenAddress:    testToken,
		TokenSymbol:     "TKN",
		Amount:          amount,
		USDValue:        usd,
	}
}

func TestApplyEventNetFlow(t *testing.T) {
	a := NewAggregator()

	a.ApplyEvent(event("t1", store.EventBuy, "100", 500))
	a.ApplyEvent(event("t1", store.EventSell, "40", 200))

	flows := a.TrackerFlows("t1")
	if len(flows) != 1 {
		t.Fatalf("Expected 1 flow entry, got %d", len(flows))
	}

	f := flows[0]
	if f.Inflow != 100 {
		t.Errorf("Expected inflow 100, got %f", f.Inflow)
	}
	if f.Outflow != 40 {
		t.Errorf("Expected outflow 40, got %f", f.Outflow)
	}
	if f.NetFlow != 60 {
		t.Errorf("Expected net flow 60, got %f", f.NetFlow)
	}
	// USD value tracks the latest event, not a cumulative sum
	if f.USDValue != 200 {
		t.Errorf("Expected USD snapshot 200, got %f", f.USDValue)
	}
}

func TestApplyEventDirections(t *testing.T) {
	tests := []struct {
		eventType   store.EventType
		wantInflow  float64
		wantOutflow float64
	}{
		{store.EventBuy, 10, 0},
		{store.EventTransferIn, 10, 0},
		{store.EventLiquidityRemove, 10, 0},
		{store.EventSell, 0, 10},
		{store.EventTransferOut, 0, 10},
		{store.EventLiquidityAdd, 0, 10},
		{store.EventSwap, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			a := NewAggregator()
			a.ApplyEvent(event("t1", tt.eventType, "10", 0))

			flows := a.TrackerFlows("t1")
			if len(flows) != 1 {
				t.Fatalf("Expected 1 flow entry, got %d", len(flows))
			}
			if flows[0].Inflow != tt.wantInflow {
				t.Errorf("Expected inflow %f, got %f", tt.wantInflow, flows[0].Inflow)
			}
			if flows[0].Outflow != tt.wantOutflow {
				t.Errorf("Expected outflow %f, got %f", tt.wantOutflow, flows[0].Outflow)
			}
			if flows[0].NetFlow != flows[0].Inflow-flows[0].Outflow {
				t.Errorf("NetFlow invariant violated: %+v", flows[0])
			}
		})
	}
}

func TestApplyEventNoTokenAddress(t *testing.T) {
	a := NewAggregator()

	e := event("t1", store.EventTransferIn, "1", 0)
	e.TokenAddress = ""
	a.ApplyEvent(e)

	if flows := a.TrackerFlows("t1"); len(flows) != 0 {
		t.Errorf("Expected no flow entries for native transfer, got %d", len(flows))
	}
}

func TestDropTracker(t *testing.T) {
	a := NewAggregator()

	a.ApplyEvent(event("t1", store.EventBuy, "100", 0))
	a.ApplyEvent(event("t2", store.EventBuy, "50", 0))

	a.DropTracker("t1")

	if flows := a.TrackerFlows("t1"); flows != nil {
		t.Errorf("Expected nil flows after drop, got %v", flows)
	}
	if flows := a.TrackerFlows("t2"); len(flows) != 1 {
		t.Errorf("Expected t2 flows untouched, got %v", flows)
	}
}

func TestSeed(t *testing.T) {
	a := NewAggregator()

	a.Seed("t1", store.WalletFlow{
		TokenAddress: testToken,
		TokenSymbol:  "TKN",
		Inflow:       80,
		Outflow:      30,
		USDValue:     1000,
	})

	flows := a.TrackerFlows("t1")
	if len(flows) != 1 {
		t.Fatalf("Expected 1 flow entry, got %d", len(flows))
	}
	if flows[0].NetFlow != 50 {
		t.Errorf("Expected seeded net flow 50, got %f", flows[0].NetFlow)
	}
}
