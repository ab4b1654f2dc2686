// Package chaindata pulls historical wallet activity from blockchain
// indexing providers and normalizes it for the classifier.
package chaindata

import (
	"context"
	"fmt"

	"github.com/walletpulse/engine/internal/store"
)

// Portfolio is a provider snapshot of a wallet's token holdings.
type Portfolio struct {
	TotalValue float64
	Flows      []store.WalletFlow
}

// Client fetches raw activity for a (walletAddress, chain) pair. Failures
// surface as *ProviderError; callers treat them as zero results and log.
type Client interface {
	// Supports reports whether this client serves the chain.
	Supports(chain store.Chain) bool

	// GetTransactions fetches recent wallet transactions.
	GetTransactions(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error)

	// GetPortfolio fetches token balances valued in USD.
	GetPortfolio(ctx context.Context, address string, chain store.Chain) (Portfolio, error)

	// DetectBuys fetches token transfers into the wallet.
	DetectBuys(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error)

	// DetectSells fetches token transfers out of the wallet.
	DetectSells(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error)
}

// ProviderError reports an HTTP or network failure from a data provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
