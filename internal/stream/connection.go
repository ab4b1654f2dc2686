package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/walletpulse/engine/internal/store"
)

// Reconnection tuning.
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	HandshakeTimeout = 10 * time.Second
	ReadTimeout      = 120 * time.Second
	WriteTimeout     = 10 * time.Second
)

// Conn is the subset of a WebSocket connection the stream uses.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer establishes a Conn to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// subscribeRequest is the provider's pending-transaction filter request.
type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type pendingTxFilter struct {
	ToAddress  []string `json:"toAddress"`
	HashesOnly bool     `json:"hashesOnly"`
}

// pendingMessage is the inbound notification envelope. Pending transactions
// arrive under params.result.
type pendingMessage struct {
	Params struct {
		Result *pendingTx `json:"result"`
	} `json:"params"`
}

type pendingTx struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Input    string `json:"input"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// connection is a single live feed for one tracker on one chain. It owns
// its reconnect loop and reports state through st.
type connection struct {
	endpoint   string
	chain      store.Chain
	tracker    store.TrackedWallet
	routers    []string
	classifier Classifier
	publisher  Publisher
	dialer     Dialer

	conn    Conn
	connMu  sync.Mutex
	backoff time.Duration

	stMu sync.RWMutex
	st   State

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newConnection(endpoint string, chain store.Chain, tracker store.TrackedWallet, routers []string, classifier Classifier, publisher Publisher, dialer Dialer) *connection {
	return &connection{
		endpoint:   endpoint,
		chain:      chain,
		tracker:    tracker,
		routers:    routers,
		classifier: classifier,
		publisher:  publisher,
		dialer:     dialer,
		backoff:    InitialBackoff,
		st:         StateDisconnected,
		stopChan:   make(chan struct{}),
	}
}

func (c *connection) start(ctx context.Context) {
	c.wg.Add(1)
	go c.runLoop(ctx)
}

func (c *connection) stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.closeConnection()
	c.wg.Wait()
}

func (c *connection) state() State {
	c.stMu.RLock()
	defer c.stMu.RUnlock()
	return c.st
}

func (c *connection) setState(s State) {
	c.stMu.Lock()
	c.st = s
	c.stMu.Unlock()
}

// runLoop handles connection, reading, and reconnection.
func (c *connection) runLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.setState(StateDisconnected)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stream_loop_stopping", "chain", c.chain, "reason", "context cancelled")
			return
		case <-c.stopChan:
			slog.Info("stream_loop_stopping", "chain", c.chain, "reason", "stop signal")
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			slog.Error("stream_connect_failed", "chain", c.chain, "error", err, "backoff", c.backoff)
			c.setState(StateDisconnected)
			c.waitBackoff(ctx)
			continue
		}

		if err := c.readLoop(ctx); err != nil {
			slog.Warn("stream_read_error", "chain", c.chain, "error", (&ConnectionError{Chain: string(c.chain), Err: err}).Error())
		}

		c.closeConnection()
		c.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
			c.waitBackoff(ctx)
		}
	}
}

// connect dials the endpoint and subscribes to pending router traffic.
func (c *connection) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.backoff = InitialBackoff

	slog.Info("stream_connected", "chain", c.chain, "tracker", c.tracker.ID)

	if err := c.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	c.setState(StateSubscribed)
	return nil
}

// subscribe requests pending transactions addressed to the chain's routers.
func (c *connection) subscribe() error {
	msg := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "alchemy_pendingTransactions",
		Params: []interface{}{
			pendingTxFilter{ToAddress: c.routers, HashesOnly: false},
		},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	slog.Info("stream_subscribed", "chain", c.chain, "router_count", len(c.routers))
	return nil
}

// readLoop reads notifications until the connection fails or stops.
func (c *connection) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopChan:
			return nil
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		c.handleMessage(ctx, message)
	}
}

// handleMessage decodes one notification and publishes the resulting event.
// Malformed or irrelevant messages are dropped without disturbing the
// connection.
func (c *connection) handleMessage(ctx context.Context, data []byte) {
	var msg pendingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("stream_parse_error", "chain", c.chain, "error", err)
		return
	}
	tx := msg.Params.Result
	if tx == nil {
		return
	}

	if !strings.EqualFold(tx.From, c.tracker.WalletAddress) {
		return
	}

	raw := store.RawTx{
		Hash:      tx.Hash,
		From:      tx.From,
		To:        tx.To,
		Input:     tx.Input,
		Value:     tx.Value,
		Gas:       tx.Gas,
		GasPrice:  tx.GasPrice,
		Timestamp: time.Now().UTC(),
	}

	event := c.classifier.Classify(ctx, raw, c.tracker, c.chain)
	if event == nil {
		return
	}

	c.publisher.PublishEvent(*event)

	slog.Debug("stream_event",
		"chain", c.chain,
		"tracker", c.tracker.ID,
		"type", event.Type,
		"token", event.TokenSymbol,
		"usd_value", event.USDValue,
	)
}

// closeConnection safely closes the underlying socket.
func (c *connection) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		slog.Info("stream_disconnected", "chain", c.chain, "tracker", c.tracker.ID)
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (c *connection) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(c.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := c.backoff + jitter

	slog.Debug("stream_waiting_backoff", "chain", c.chain, "duration", wait)

	select {
	case <-ctx.Done():
	case <-c.stopChan:
	case <-time.After(wait):
	}

	c.backoff = time.Duration(float64(c.backoff) * BackoffFactor)
	if c.backoff > MaxBackoff {
		c.backoff = MaxBackoff
	}
}
