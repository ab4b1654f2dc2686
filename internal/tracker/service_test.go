package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/walletpulse/engine/internal/alert"
	"github.com/walletpulse/engine/internal/chaindata"
	"github.com/walletpulse/engine/internal/classify"
	"github.com/walletpulse/engine/internal/flow"
	"github.com/walletpulse/engine/internal/registry"
	"github.com/walletpulse/engine/internal/store"
	"github.com/walletpulse/engine/internal/stream"
)

const (
	testWallet = "0xabc0000000000000000000000000000000000001"
	testToken  = "0x1111111111111111111111111111111111111111"
)

type stubPrices struct{}

func (stubPrices) TokenPrice(ctx context.Context, chain store.Chain, tokenAddress string) (float64, error) {
	return 1.0, nil
}

func (stubPrices) NativePrice(ctx context.Context, chain store.Chain) (float64, error) {
	return 3000.0, nil
}

// stubClient serves canned chain data for EVM chains.
type stubClient struct {
	txs       []store.RawTx
	buys      []store.RawTx
	sells     []store.RawTx
	portfolio chaindata.Portfolio
	txErr     error
}

func (c *stubClient) Supports(chain store.Chain) bool { return chain.IsEVM() }

func (c *stubClient) GetTransactions(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return c.txs, c.txErr
}

func (c *stubClient) GetPortfolio(ctx context.Context, address string, chain store.Chain) (chaindata.Portfolio, error) {
	return c.portfolio, nil
}

func (c *stubClient) DetectBuys(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return c.buys, nil
}

func (c *stubClient) DetectSells(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return c.sells, nil
}

// stubStreamer records connect and disconnect calls.
type stubStreamer struct {
	mu          sync.Mutex
	connects    []string
	disconnects []string
	shutdowns   int
}

func (s *stubStreamer) Connect(ctx context.Context, tracker store.TrackedWallet, chain store.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, tracker.ID+":"+string(chain))
	return nil
}

func (s *stubStreamer) Disconnect(trackerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, trackerID)
}

func (s *stubStreamer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

func (s *stubStreamer) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connects)
}

func newTestService(t *testing.T, client chaindata.Client, streams Streamer) (*Service, *registry.Registry) {
	t.Helper()

	classifier, err := classify.New(map[store.Chain][]string{
		store.ChainETH: {"0x7a250d5630b4cf539739df2c5dacb4c659f2488d"},
	}, stubPrices{})
	if err != nil {
		t.Fatalf("classify.New failed: %v", err)
	}

	bus := registry.NewBus()
	flows := flow.NewAggregator()
	alerts := alert.NewEngine(10000)
	reg := registry.New(bus, flows, alerts)

	svc := NewService(reg, flows, alerts, classifier, []chaindata.Client{client}, streams)
	return svc, reg
}

func testTracker() store.TrackedWallet {
	return store.TrackedWallet{
		ID:            "t1",
		WalletAddress: testWallet,
		Alias:         "whale",
		Chains:        []store.Chain{store.ChainETH},
	}
}

func TestFetchTrackerData(t *testing.T) {
	client := &stubClient{
		txs: []store.RawTx{
			{Hash: "0xnative", From: testWallet, To: "0x9999999999999999999999999999999999999999", Value: "0xde0b6b3a7640000"},
		},
		buys: []store.RawTx{
			{Hash: "0xbuy", From: "0x8888888888888888888888888888888888888888", To: testWallet, TokenAddress: testToken, TokenSymbol: "TKN", ValueDecimal: 100, TokenPrice: 2},
		},
		sells: []store.RawTx{
			{Hash: "0xsell", From: testWallet, To: "0x8888888888888888888888888888888888888888", TokenAddress: testToken, TokenSymbol: "TKN", ValueDecimal: 40, TokenPrice: 2},
		},
		portfolio: chaindata.Portfolio{
			TotalValue: 500,
			Flows: []store.WalletFlow{
				{TokenAddress: "0x2222222222222222222222222222222222222222", TokenSymbol: "OTHER", Inflow: 5, USDValue: 500},
			},
		},
	}

	svc, _ := newTestService(t, client, &stubStreamer{})
	if err := svc.AddTracker(testTracker()); err != nil {
		t.Fatalf("AddTracker failed: %v", err)
	}

	if err := svc.FetchTrackerData(context.Background(), "t1", store.ChainETH); err != nil {
		t.Fatalf("FetchTrackerData failed: %v", err)
	}

	events := svc.GetTrackerEvents("t1")
	if len(events) != 3 {
		t.Fatalf("Expected 3 events (native + buy + sell), got %d", len(events))
	}

	types := map[store.EventType]int{}
	for _, e := range events {
		types[e.Type]++
	}
	if types[store.EventTransferOut] != 1 || types[store.EventBuy] != 1 || types[store.EventSell] != 1 {
		t.Errorf("Unexpected event type mix: %v", types)
	}

	flows := svc.GetTrackerFlows("t1")
	byToken := map[string]store.WalletFlow{}
	for _, f := range flows {
		byToken[f.TokenAddress] = f
	}

	if f, ok := byToken[testToken]; !ok || f.NetFlow != 60 {
		t.Errorf("Expected TKN net flow 60, got %+v", f)
	}
	if f, ok := byToken["0x2222222222222222222222222222222222222222"]; !ok || f.NetFlow != 5 {
		t.Errorf("Expected seeded OTHER flow, got %+v", f)
	}
}

func TestFetchTrackerDataProviderError(t *testing.T) {
	client := &stubClient{
		txErr: &chaindata.ProviderError{Provider: "moralis", StatusCode: 429},
		buys: []store.RawTx{
			{Hash: "0xbuy", From: "0x8888888888888888888888888888888888888888", To: testWallet, TokenAddress: testToken, TokenSymbol: "TKN", ValueDecimal: 10, TokenPrice: 1},
		},
	}

	svc, _ := newTestService(t, client, &stubStreamer{})
	svc.AddTracker(testTracker())

	// A failing provider call degrades to zero results, not an aborted fetch
	if err := svc.FetchTrackerData(context.Background(), "t1", store.ChainETH); err != nil {
		t.Fatalf("Expected provider error to be absorbed, got %v", err)
	}
	if events := svc.GetTrackerEvents("t1"); len(events) != 1 {
		t.Errorf("Expected the transfer fetch to still land, got %d events", len(events))
	}
}

func TestFetchTrackerDataUnknownTracker(t *testing.T) {
	svc, _ := newTestService(t, &stubClient{}, &stubStreamer{})

	if err := svc.FetchTrackerData(context.Background(), "ghost", store.ChainETH); err != nil {
		t.Errorf("Expected unknown tracker to be a no-op, got %v", err)
	}
}

func TestRemoveTrackerDisconnectsStreams(t *testing.T) {
	streams := &stubStreamer{}
	svc, reg := newTestService(t, &stubClient{}, streams)
	svc.AddTracker(testTracker())

	svc.RemoveTracker("t1")

	if len(streams.disconnects) != 1 || streams.disconnects[0] != "t1" {
		t.Errorf("Expected stream disconnect before removal, got %v", streams.disconnects)
	}
	if _, ok := reg.Tracker("t1"); ok {
		t.Error("Expected tracker to be removed from registry")
	}
}

func TestStartMonitoringIdempotent(t *testing.T) {
	streams := &stubStreamer{}
	svc, _ := newTestService(t, &stubClient{}, streams)
	svc.AddTracker(testTracker())

	ctx := context.Background()
	svc.StartMonitoring(ctx)
	svc.StartMonitoring(ctx)

	if streams.connectCount() != 1 {
		t.Errorf("Expected 1 connect across repeated starts, got %d", streams.connectCount())
	}

	// Trackers added while monitoring connect immediately
	second := testTracker()
	second.ID = "t2"
	svc.AddTracker(second)

	if streams.connectCount() != 2 {
		t.Errorf("Expected new tracker to connect, got %d connects", streams.connectCount())
	}

	svc.StopMonitoring()
	if streams.shutdowns != 1 {
		t.Errorf("Expected 1 shutdown, got %d", streams.shutdowns)
	}

	// Stopping twice is a no-op
	svc.StopMonitoring()
	if streams.shutdowns != 1 {
		t.Errorf("Expected stop to be idempotent, got %d shutdowns", streams.shutdowns)
	}
}

// nopConn is a live connection that accepts the subscribe write and blocks
// reads until closed.
type nopConn struct {
	closed chan struct{}
	once   sync.Once
}

func newNopConn() *nopConn { return &nopConn{closed: make(chan struct{})} }

func (c *nopConn) WriteJSON(v interface{}) error { return nil }

func (c *nopConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *nopConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *nopConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *nopConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type nopDialer struct{}

func (nopDialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	return newNopConn(), nil
}

func TestPerTrackerMonitoring(t *testing.T) {
	classifier, err := classify.New(nil, stubPrices{})
	if err != nil {
		t.Fatalf("classify.New failed: %v", err)
	}

	bus := registry.NewBus()
	flows := flow.NewAggregator()
	alerts := alert.NewEngine(10000)
	reg := registry.New(bus, flows, alerts)

	mgr := stream.NewManager("test-key", nil, classifier, reg)
	mgr.SetDialer(nopDialer{})
	defer mgr.Shutdown()

	svc := NewService(reg, flows, alerts, classifier, nil, mgr)

	t1 := testTracker()
	t2 := testTracker()
	t2.ID = "t2"
	t2.WalletAddress = "0xabc0000000000000000000000000000000000002"
	if err := svc.AddTracker(t1); err != nil {
		t.Fatalf("AddTracker t1 failed: %v", err)
	}
	if err := svc.AddTracker(t2); err != nil {
		t.Fatalf("AddTracker t2 failed: %v", err)
	}

	ctx := context.Background()
	svc.StartTrackerMonitoring(ctx, "t1")
	svc.StartTrackerMonitoring(ctx, "t1") // repeat start keeps one connection
	if got := mgr.ActiveConnections(); got != 1 {
		t.Fatalf("Expected 1 connection after repeated start, got %d", got)
	}

	svc.StartTrackerMonitoring(ctx, "t2")
	if got := mgr.ActiveConnections(); got != 2 {
		t.Fatalf("Expected 2 connections with both trackers live, got %d", got)
	}

	svc.StopTrackerMonitoring("t1")
	if got := mgr.ActiveConnections(); got != 1 {
		t.Errorf("Expected only t1's feed closed, got %d connections", got)
	}
	if st := mgr.State("t2", store.ChainETH); st == stream.StateDisconnected {
		t.Error("Expected t2's feed to stay up after stopping t1")
	}

	svc.StopTrackerMonitoring("t1") // repeat stop is a no-op
	if got := mgr.ActiveConnections(); got != 1 {
		t.Errorf("Expected repeated stop to change nothing, got %d connections", got)
	}

	svc.StartTrackerMonitoring(ctx, "ghost")
	if got := mgr.ActiveConnections(); got != 1 {
		t.Errorf("Expected unknown tracker start to be a no-op, got %d connections", got)
	}

	svc.StopTrackerMonitoring("t2")
	if got := mgr.ActiveConnections(); got != 0 {
		t.Errorf("Expected no connections after stopping t2, got %d", got)
	}
}
