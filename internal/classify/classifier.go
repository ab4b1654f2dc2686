// Package classify converts provider-normalized transaction records into
// typed wallet events, decoding router calldata where applicable.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpulse/engine/internal/store"
)

// PriceLookup resolves USD prices for tokens and native assets. Lookup
// failures degrade to a zero USD value, never a lost event.
type PriceLookup interface {
	TokenPrice(ctx context.Context, chain store.Chain, tokenAddress string) (float64, error)
	NativePrice(ctx context.Context, chain store.Chain) (float64, error)
}

// TokenResolution is the outcome of the swap-path token heuristic. The
// heuristic (last address of the first address-array argument) is
// best-effort; callers must handle the unresolved case.
type TokenResolution struct {
	Resolved bool
	Address  string
}

// Classifier turns raw records into zero or one WalletEvent each.
type Classifier struct {
	routers map[store.Chain]map[string]struct{}
	swapABI abi.ABI
	prices  PriceLookup
}

// New creates a classifier with the given per-chain router allow-lists.
func New(routers map[store.Chain][]string, prices PriceLookup) (*Classifier, error) {
	swapABI, err := parseSwapABI()
	if err != nil {
		return nil, fmt.Errorf("parsing router ABI: %w", err)
	}

	sets := make(map[store.Chain]map[string]struct{}, len(routers))
	for chain, addrs := range routers {
		set := make(map[string]struct{}, len(addrs))
		for _, addr := range addrs {
			set[strings.ToLower(addr)] = struct{}{}
		}
		sets[chain] = set
	}

	return &Classifier{
		routers: sets,
		swapABI: swapABI,
		prices:  prices,
	}, nil
}

// IsRouter reports whether the address is a known router on the chain.
func (c *Classifier) IsRouter(chain store.Chain, address string) bool {
	_, ok := c.routers[chain][strings.ToLower(address)]
	return ok
}

// Classify produces at most one event from a raw record for the given
// tracker. A nil result means the record is not reportable (unknown
// router call, zero-value noise, or unrelated transfer).
func (c *Classifier) Classify(ctx context.Context, raw store.RawTx, tracker store.TrackedWallet, chain store.Chain) *store.WalletEvent {
	wallet := strings.ToLower(tracker.WalletAddress)

	// ERC20 transfer records carry a token address; classify by direction.
	if raw.TokenAddress != "" {
		return c.classifyTokenTransfer(ctx, raw, tracker, chain, wallet)
	}

	// Calldata to a known router is a swap candidate.
	if raw.To != "" && c.IsRouter(chain, raw.To) {
		return c.classifySwap(ctx, raw, tracker, chain)
	}

	return c.classifyNativeTransfer(ctx, raw, tracker, chain, wallet)
}

// classifyTokenTransfer maps an ERC20 transfer to BUY (inbound) or SELL
// (outbound) relative to the tracked wallet.
func (c *Classifier) classifyTokenTransfer(ctx context.Context, raw store.RawTx, tracker store.TrackedWallet, chain store.Chain, wallet string) *store.WalletEvent {
	var eventType store.EventType
	switch {
	case strings.ToLower(raw.To) == wallet:
		eventType = store.EventBuy
	case strings.ToLower(raw.From) == wallet:
		eventType = store.EventSell
	default:
		return nil
	}

	amount := raw.ValueDecimal
	if amount == 0 {
		if v, err := strconv.ParseFloat(raw.Value, 64); err == nil && raw.TokenDecimals > 0 {
			amount = v / pow10(raw.TokenDecimals)
		}
	}

	usdValue := amount * raw.TokenPrice
	if usdValue == 0 && amount > 0 {
		if price, err := c.prices.TokenPrice(ctx, chain, raw.TokenAddress); err == nil {
			usdValue = amount * price
		}
	}

	return &store.WalletEvent{
		ID:              raw.Hash,
		TrackerWalletID: tracker.ID,
		Type:            eventType,
		TokenAddress:    raw.TokenAddress,
		TokenSymbol:     raw.TokenSymbol,
		TokenName:       raw.TokenName,
		Amount:          formatAmount(amount),
		USDValue:        usdValue,
		TxHash:          raw.Hash,
		BlockNumber:     raw.BlockNumber,
		Timestamp:       raw.Timestamp,
		Chain:           chain,
		Details: &store.TxDetails{
			From: raw.From,
			To:   raw.To,
		},
	}
}

// classifyNativeTransfer maps a plain value transfer to TRANSFER_IN/OUT.
func (c *Classifier) classifyNativeTransfer(ctx context.Context, raw store.RawTx, tracker store.TrackedWallet, chain store.Chain, wallet string) *store.WalletEvent {
	var eventType store.EventType
	switch {
	case strings.ToLower(raw.To) == wallet:
		eventType = store.EventTransferIn
	case strings.ToLower(raw.From) == wallet:
		eventType = store.EventTransferOut
	default:
		return nil
	}

	wei := parseBigValue(raw.Value)
	if wei == nil || wei.Sign() == 0 {
		return nil
	}
	amount := weiToUnits(wei, 18)

	var usdValue float64
	if price, err := c.prices.NativePrice(ctx, chain); err == nil {
		usdValue = amount * price
	}

	return &store.WalletEvent{
		ID:              raw.Hash,
		TrackerWalletID: tracker.ID,
		Type:            eventType,
		TokenSymbol:     nativeSymbol(chain),
		Amount:          formatAmount(amount),
		USDValue:        usdValue,
		TxHash:          raw.Hash,
		BlockNumber:     raw.BlockNumber,
		Timestamp:       raw.Timestamp,
		Chain:           chain,
		Details: &store.TxDetails{
			From: raw.From,
			To:   raw.To,
		},
	}
}

// classifySwap decodes router calldata. Unrecognized selectors are dropped
// silently; they are not reportable events.
func (c *Classifier) classifySwap(ctx context.Context, raw store.RawTx, tracker store.TrackedWallet, chain store.Chain) *store.WalletEvent {
	input := strings.TrimPrefix(raw.Input, "0x")
	data := common.FromHex(raw.Input)
	if len(data) < 4 || len(input) < 8 {
		return nil
	}

	method, err := c.swapABI.MethodById(data[:4])
	if err != nil {
		slog.Debug("swap_selector_unknown", "tx", raw.Hash, "selector", input[:8])
		return nil
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		slog.Debug("swap_decode_failed", "tx", raw.Hash, "method", method.Name, "error", err)
		return nil
	}

	token := resolveToken(args)
	rawAmount := firstNonZeroAmount(args)

	event := &store.WalletEvent{
		ID:              raw.Hash,
		TrackerWalletID: tracker.ID,
		Type:            store.EventSwap,
		TokenSymbol:     method.Name,
		Amount:          "0",
		TxHash:          raw.Hash,
		BlockNumber:     raw.BlockNumber,
		Timestamp:       raw.Timestamp,
		Chain:           chain,
		Details: &store.TxDetails{
			From:     raw.From,
			To:       raw.To,
			GasUsed:  raw.Gas,
			GasPrice: raw.GasPrice,
		},
	}
	if token.Resolved {
		event.TokenAddress = token.Address
	}

	switch {
	case rawAmount != nil && token.Resolved:
		// Decimals are unknown at decode time; assume 18 like the rest of
		// the pipeline and price the normalized amount.
		amount := weiToUnits(rawAmount, 18)
		event.Amount = formatAmount(amount)
		if price, err := c.prices.TokenPrice(ctx, chain, token.Address); err == nil {
			event.USDValue = amount * price
		}
	case rawAmount != nil:
		event.Amount = rawAmount.String()
	default:
		// No amount in the calldata; fall back to the native value carried
		// by the transaction.
		if wei := parseBigValue(raw.Value); wei != nil && wei.Sign() > 0 {
			amount := weiToUnits(wei, 18)
			event.Amount = formatAmount(amount)
			if price, err := c.prices.NativePrice(ctx, chain); err == nil {
				event.USDValue = amount * price
			}
		}
	}

	return event
}

// resolveToken applies the swap-path heuristic: the last element of the
// first address-array argument approximates the token the wallet received.
func resolveToken(args []interface{}) TokenResolution {
	for _, arg := range args {
		if path, ok := arg.([]common.Address); ok && len(path) > 0 {
			return TokenResolution{
				Resolved: true,
				Address:  strings.ToLower(path[len(path)-1].Hex()),
			}
		}
	}
	return TokenResolution{}
}

// firstNonZeroAmount picks the first non-zero big integer argument as the
// best-effort swap amount.
func firstNonZeroAmount(args []interface{}) *big.Int {
	for _, arg := range args {
		if v, ok := arg.(*big.Int); ok && v.Sign() > 0 {
			return v
		}
	}
	return nil
}

// parseBigValue parses a hex (0x-prefixed) or decimal integer string.
func parseBigValue(s string) *big.Int {
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil
		}
		return v
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// weiToUnits converts a raw integer amount to decimal units.
func weiToUnits(v *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(v)
	f.Quo(f, big.NewFloat(pow10(decimals)))
	out, _ := f.Float64()
	return out
}

func pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

// formatAmount renders a decimal amount without scientific notation.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// nativeSymbol maps a chain to its native asset ticker.
func nativeSymbol(chain store.Chain) string {
	switch chain {
	case store.ChainBSC:
		return "BNB"
	case store.ChainSolana:
		return "SOL"
	}
	return "ETH"
}
