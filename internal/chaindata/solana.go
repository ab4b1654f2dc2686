package chaindata

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/walletpulse/engine/internal/store"
)

// SolanaClient serves the Solana chain through a JSON-RPC endpoint. It
// surfaces signature-level activity only: token-level classification needs
// parsed instruction data, which the transaction history endpoint does not
// return.
type SolanaClient struct {
	rpc *rpc.Client
}

// NewSolanaClient connects to the given RPC endpoint.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{rpc: rpc.New(rpcURL)}
}

// Supports reports true only for Solana.
func (c *SolanaClient) Supports(chain store.Chain) bool {
	return chain == store.ChainSolana
}

// GetTransactions fetches recent signatures for the wallet.
func (c *SolanaClient) GetTransactions(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, &ProviderError{Provider: "solana", Err: err}
	}

	limit := 50
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "solana", Err: err}
	}

	txs := make([]store.RawTx, 0, len(sigs))
	for _, sig := range sigs {
		tx := store.RawTx{
			Hash:        sig.Signature.String(),
			From:        address,
			BlockNumber: int64(sig.Slot),
		}
		if sig.BlockTime != nil {
			tx.Timestamp = time.Unix(int64(*sig.BlockTime), 0).UTC()
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// GetPortfolio returns an empty portfolio. Returning nothing is preferable
// to returning balances without USD values.
func (c *SolanaClient) GetPortfolio(ctx context.Context, address string, chain store.Chain) (Portfolio, error) {
	return Portfolio{}, nil
}

// DetectBuys returns no transfers. SPL transfer direction is not derivable
// from the signature list alone.
func (c *SolanaClient) DetectBuys(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return nil, nil
}

// DetectSells returns no transfers, for the same reason as DetectBuys.
func (c *SolanaClient) DetectSells(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return nil, nil
}
