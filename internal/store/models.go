// Package store provides the data models shared across the tracking pipeline.
package store

import "time"

// Chain identifies a supported blockchain network.
type Chain string

const (
	ChainETH      Chain = "ETH"
	ChainBase     Chain = "BASE"
	ChainArbitrum Chain = "ARBITRUM"
	ChainBSC      Chain = "BSC"
	ChainSolana   Chain = "SOL"
)

// AllChains lists every supported chain.
var AllChains = []Chain{ChainETH, ChainBase, ChainArbitrum, ChainBSC, ChainSolana}

// IsEVM reports whether the chain uses EVM-style addresses and calldata.
func (c Chain) IsEVM() bool {
	return c != ChainSolana
}

// ProviderID returns the chain identifier used by the indexing provider
// (hex chain ID for EVM chains, "solana" otherwise).
func (c Chain) ProviderID() string {
	switch c {
	case ChainETH:
		return "0x1"
	case ChainBase:
		return "0x2105"
	case ChainArbitrum:
		return "0xa4b1"
	case ChainBSC:
		return "0x38"
	case ChainSolana:
		return "solana"
	}
	return ""
}

// WebSocketURL returns the real-time provider endpoint for the chain, or an
// empty string when no live feed is available for it.
func (c Chain) WebSocketURL(apiKey string) string {
	switch c {
	case ChainETH:
		return "wss://eth-mainnet.g.alchemy.com/v2/" + apiKey
	case ChainArbitrum:
		return "wss://arb-mainnet.g.alchemy.com/v2/" + apiKey
	case ChainBase:
		return "wss://base-mainnet.g.alchemy.com/v2/" + apiKey
	}
	return ""
}

// TrackedWallet is a user-configured wallet address being watched.
type TrackedWallet struct {
	// ID uniquely identifies this tracker (caller-assigned)
	ID string

	// WalletAddress is the on-chain address being watched
	WalletAddress string

	// Alias is the user-facing name for the wallet
	Alias string

	// Chains lists the networks this tracker watches
	Chains []Chain

	// Tags are free-form labels (e.g. "whale", "dev")
	Tags []string

	CreatedAt   time.Time
	LastUpdated time.Time
}

// EventType classifies a wallet event.
type EventType string

const (
	EventBuy             EventType = "BUY"
	EventSell            EventType = "SELL"
	EventTransferIn      EventType = "TRANSFER_IN"
	EventTransferOut     EventType = "TRANSFER_OUT"
	EventLiquidityAdd    EventType = "LIQUIDITY_ADD"
	EventLiquidityRemove EventType = "LIQUIDITY_REMOVE"
	EventSwap            EventType = "SWAP"
)

// IsInflow reports whether the event moves value into the tracked wallet.
func (t EventType) IsInflow() bool {
	return t == EventBuy || t == EventTransferIn || t == EventLiquidityRemove
}

// IsOutflow reports whether the event moves value out of the tracked wallet.
func (t EventType) IsOutflow() bool {
	return t == EventSell || t == EventTransferOut || t == EventLiquidityAdd
}

// TxDetails carries optional transaction metadata for an event.
type TxDetails struct {
	From     string
	To       string
	GasUsed  string
	GasPrice string
}

// WalletEvent is a classified activity record for a tracked wallet.
// Events are immutable once created.
type WalletEvent struct {
	// ID is the transaction hash, or a synthetic identifier for events
	// without one
	ID string

	// TrackerWalletID links the event to its tracker
	TrackerWalletID string

	Type EventType

	TokenAddress string
	TokenSymbol  string
	TokenName    string

	// Amount is kept as a decimal string to preserve precision
	Amount string

	// USDValue is the best-effort valuation at classification time;
	// zero when no price was available
	USDValue float64

	TxHash      string
	BlockNumber int64
	Timestamp   time.Time
	Chain       Chain

	Details *TxDetails
}

// WalletFlow is the per-token net flow aggregate for a tracked wallet.
// NetFlow always equals Inflow - Outflow.
type WalletFlow struct {
	TokenAddress string
	TokenSymbol  string
	Inflow       float64
	Outflow      float64
	NetFlow      float64
	USDValue     float64
}

// AlertRuleType identifies a configurable alert condition.
type AlertRuleType string

const (
	RuleLargeBuy  AlertRuleType = "LARGE_BUY"
	RuleLargeSell AlertRuleType = "LARGE_SELL"
	RuleInflow    AlertRuleType = "INFLOW"
	RuleOutflow   AlertRuleType = "OUTFLOW"
	RuleNewPair   AlertRuleType = "NEW_PAIR"
	RuleRugPull   AlertRuleType = "RUG_PULL"
)

// WalletAlertRule is a per-tracker threshold configuration. When no enabled
// rule matches an event, the engine falls back to its default threshold.
type WalletAlertRule struct {
	ID        string
	TrackerID string
	Type      AlertRuleType
	Threshold float64
	Enabled   bool
	CreatedAt time.Time
}

// AlertNotification is raised when an event crosses a threshold.
// Only the Read flag is mutated after creation.
type AlertNotification struct {
	ID        string
	AlertID   string // tracker that produced the alert
	EventID   string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// RawTx is the provider-normalized shape of a transaction or transfer
// record. Both the EVM and Solana clients emit this form; the classifier
// consumes it.
type RawTx struct {
	Hash        string
	From        string
	To          string
	Input       string // calldata, 0x-prefixed hex (EVM only)
	Value       string // native value, hex or decimal string
	Gas         string
	GasPrice    string
	BlockNumber int64
	Timestamp   time.Time

	// Token fields are populated for ERC20 transfer records
	TokenAddress  string
	TokenSymbol   string
	TokenName     string
	TokenDecimals int
	ValueDecimal  float64 // decimal-adjusted amount when the provider supplies it
	TokenPrice    float64 // provider-side USD price when available
}
