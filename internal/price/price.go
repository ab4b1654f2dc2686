// Package price resolves USD prices for tokens and native assets.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/walletpulse/engine/internal/store"
)

const (
	dexScreenerBaseURL = "https://api.dexscreener.com/latest/dex/tokens"
	coinGeckoBaseURL   = "https://api.coingecko.com/api/v3/simple/price"
)

// Service fetches token prices from DexScreener and native-asset prices
// from CoinGecko, with an optional read-through cache in front.
type Service struct {
	client       *http.Client
	cache        Cache
	dexBaseURL   string
	geckoBaseURL string
}

// NewService creates a price service. A nil cache disables caching.
func NewService(cache Cache) *Service {
	if cache == nil {
		cache = NoOpCache{}
	}
	return &Service{
		client:       &http.Client{Timeout: 10 * time.Second},
		cache:        cache,
		dexBaseURL:   dexScreenerBaseURL,
		geckoBaseURL: coinGeckoBaseURL,
	}
}

// SetBaseURLs overrides provider endpoints, used by tests.
func (s *Service) SetBaseURLs(dex, gecko string) {
	if dex != "" {
		s.dexBaseURL = dex
	}
	if gecko != "" {
		s.geckoBaseURL = gecko
	}
}

// TokenPrice returns the current USD price of a token.
func (s *Service) TokenPrice(ctx context.Context, chain store.Chain, tokenAddress string) (float64, error) {
	key := string(chain) + ":" + tokenAddress
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/%s", s.dexBaseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dexscreener returned status %d", resp.StatusCode)
	}

	var result struct {
		Pairs []struct {
			PriceUsd string `json:"priceUsd"`
			ChainID  string `json:"chainId"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	if len(result.Pairs) == 0 {
		return 0, fmt.Errorf("no pairs listed for token %s", tokenAddress)
	}

	price, err := strconv.ParseFloat(result.Pairs[0].PriceUsd, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price: %w", err)
	}

	s.cache.Set(ctx, key, price)
	return price, nil
}

// NativePrice returns the USD price of the chain's native asset.
func (s *Service) NativePrice(ctx context.Context, chain store.Chain) (float64, error) {
	id := nativeCoinID(chain)

	key := "native:" + id
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", s.geckoBaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var result map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	entry, ok := result[id]
	if !ok {
		return 0, fmt.Errorf("no price for %s", id)
	}

	s.cache.Set(ctx, key, entry.USD)
	return entry.USD, nil
}

// nativeCoinID maps a chain to its CoinGecko asset id.
func nativeCoinID(chain store.Chain) string {
	switch chain {
	case store.ChainBSC:
		return "binancecoin"
	case store.ChainSolana:
		return "solana"
	}
	// ETH, BASE, and ARBITRUM all settle in ether.
	return "ethereum"
}
