package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/walletpulse/engine/internal/store"
)

// MoralisClient serves all EVM chains through the Moralis deep-index API.
type MoralisClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewMoralisClient creates a client for the given API endpoint.
func NewMoralisClient(apiKey, baseURL string) *MoralisClient {
	return &MoralisClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Supports reports true for every EVM chain.
func (c *MoralisClient) Supports(chain store.Chain) bool {
	return chain.IsEVM()
}

// moralisTx is the provider's native transaction record.
type moralisTx struct {
	Hash           string `json:"hash"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	Input          string `json:"input"`
	Value          string `json:"value"`
	Gas            string `json:"gas"`
	GasPrice       string `json:"gas_price"`
	BlockNumber    string `json:"block_number"`
	BlockTimestamp string `json:"block_timestamp"`
}

// moralisTransfer is the provider's ERC20 transfer record.
type moralisTransfer struct {
	TransactionHash string  `json:"transaction_hash"`
	TokenAddress    string  `json:"address"`
	FromAddress     string  `json:"from_address"`
	ToAddress       string  `json:"to_address"`
	Value           string  `json:"value"`
	ValueDecimal    string  `json:"value_decimal"`
	TokenSymbol     string  `json:"token_symbol"`
	TokenName       string  `json:"token_name"`
	TokenDecimals   int     `json:"token_decimals,string"`
	BlockNumber     string  `json:"block_number"`
	BlockTimestamp  string  `json:"block_timestamp"`
	USDPrice        float64 `json:"usd_price"`
}

// moralisBalance is the provider's ERC20 balance record.
type moralisBalance struct {
	TokenAddress string  `json:"token_address"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Balance      string  `json:"balance"`
	Decimals     int     `json:"decimals"`
	USDPrice     float64 `json:"usd_price"`
}

// GetTransactions fetches recent native transactions for the wallet.
func (c *MoralisClient) GetTransactions(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	params := url.Values{}
	params.Set("chain", chain.ProviderID())

	var payload struct {
		Result []moralisTx `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, address), params, &payload); err != nil {
		return nil, err
	}

	txs := make([]store.RawTx, 0, len(payload.Result))
	for _, tx := range payload.Result {
		txs = append(txs, store.RawTx{
			Hash:        tx.Hash,
			From:        tx.FromAddress,
			To:          tx.ToAddress,
			Input:       tx.Input,
			Value:       tx.Value,
			Gas:         tx.Gas,
			GasPrice:    tx.GasPrice,
			BlockNumber: parseInt64(tx.BlockNumber),
			Timestamp:   parseTimestamp(tx.BlockTimestamp),
		})
	}
	return txs, nil
}

// GetPortfolio fetches ERC20 balances and values them in USD.
func (c *MoralisClient) GetPortfolio(ctx context.Context, address string, chain store.Chain) (Portfolio, error) {
	params := url.Values{}
	params.Set("chain", chain.ProviderID())

	var payload struct {
		Result []moralisBalance `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/%s/erc20", c.baseURL, address), params, &payload); err != nil {
		return Portfolio{}, err
	}

	var portfolio Portfolio
	for _, token := range payload.Result {
		balance := parseFloat(token.Balance)
		if token.Decimals > 0 {
			balance /= pow10(token.Decimals)
		}
		value := balance * token.USDPrice
		portfolio.TotalValue += value
		portfolio.Flows = append(portfolio.Flows, store.WalletFlow{
			TokenAddress: token.TokenAddress,
			TokenSymbol:  token.Symbol,
			Inflow:       balance,
			Outflow:      0,
			NetFlow:      balance,
			USDValue:     value,
		})
	}
	return portfolio, nil
}

// DetectBuys fetches ERC20 transfers into the wallet.
func (c *MoralisClient) DetectBuys(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return c.transfers(ctx, address, chain, "to_address")
}

// DetectSells fetches ERC20 transfers out of the wallet.
func (c *MoralisClient) DetectSells(ctx context.Context, address string, chain store.Chain) ([]store.RawTx, error) {
	return c.transfers(ctx, address, chain, "from_address")
}

func (c *MoralisClient) transfers(ctx context.Context, address string, chain store.Chain, directionParam string) ([]store.RawTx, error) {
	params := url.Values{}
	params.Set("chain", chain.ProviderID())
	params.Set(directionParam, address)

	var payload struct {
		Result []moralisTransfer `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/%s/erc20/transfers", c.baseURL, address), params, &payload); err != nil {
		return nil, err
	}

	txs := make([]store.RawTx, 0, len(payload.Result))
	for _, transfer := range payload.Result {
		txs = append(txs, store.RawTx{
			Hash:          transfer.TransactionHash,
			From:          transfer.FromAddress,
			To:            transfer.ToAddress,
			Value:         transfer.Value,
			BlockNumber:   parseInt64(transfer.BlockNumber),
			Timestamp:     parseTimestamp(transfer.BlockTimestamp),
			TokenAddress:  transfer.TokenAddress,
			TokenSymbol:   transfer.TokenSymbol,
			TokenName:     transfer.TokenName,
			TokenDecimals: transfer.TokenDecimals,
			ValueDecimal:  parseFloat(transfer.ValueDecimal),
			TokenPrice:    transfer.USDPrice,
		})
	}
	return txs, nil
}

// get performs a GET request with the API key header and decodes the JSON
// body. Non-2xx responses and transport failures become *ProviderError.
func (c *MoralisClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return &ProviderError{Provider: "moralis", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: "moralis", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Provider: "moralis", StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: "moralis", Err: err}
	}
	return nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
