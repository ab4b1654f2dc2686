package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/walletpulse/engine/internal/store"
)

// memCache is a map-backed cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string]float64
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]float64)}
}

func (c *memCache) Get(ctx context.Context, key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *memCache) Close() error { return nil }

func TestTokenPrice(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/0xtoken1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"pairs":[{"priceUsd":"1.25","chainId":"ethereum"}]}`))
	}))
	defer srv.Close()

	s := NewService(newMemCache())
	s.SetBaseURLs(srv.URL, "")

	price, err := s.TokenPrice(context.Background(), store.ChainETH, "0xtoken1")
	if err != nil {
		t.Fatalf("TokenPrice failed: %v", err)
	}
	if price != 1.25 {
		t.Errorf("Expected price 1.25, got %f", price)
	}

	// Second lookup is served from cache
	if _, err := s.TokenPrice(context.Background(), store.ChainETH, "0xtoken1"); err != nil {
		t.Fatalf("Cached TokenPrice failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", calls)
	}
}

func TestTokenPriceNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	s := NewService(nil)
	s.SetBaseURLs(srv.URL, "")

	if _, err := s.TokenPrice(context.Background(), store.ChainETH, "0xunlisted"); err == nil {
		t.Error("Expected an error for a token with no pairs")
	}
}

func TestTokenPriceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewService(nil)
	s.SetBaseURLs(srv.URL, "")

	if _, err := s.TokenPrice(context.Background(), store.ChainETH, "0xtoken1"); err == nil {
		t.Error("Expected an error on 503")
	}
}

func TestNativePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ids")
		switch id {
		case "ethereum":
			w.Write([]byte(`{"ethereum":{"usd":3000}}`))
		case "binancecoin":
			w.Write([]byte(`{"binancecoin":{"usd":550}}`))
		default:
			t.Errorf("Unexpected coin id %s", id)
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	s := NewService(nil)
	s.SetBaseURLs("", srv.URL)

	eth, err := s.NativePrice(context.Background(), store.ChainBase)
	if err != nil {
		t.Fatalf("NativePrice failed: %v", err)
	}
	if eth != 3000 {
		t.Errorf("Expected Base to price in ether at 3000, got %f", eth)
	}

	bnb, err := s.NativePrice(context.Background(), store.ChainBSC)
	if err != nil {
		t.Fatalf("NativePrice failed: %v", err)
	}
	if bnb != 550 {
		t.Errorf("Expected BNB price 550, got %f", bnb)
	}
}
