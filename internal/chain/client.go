package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0

	// DefaultQuoteURL is the swap aggregator quote API.
	DefaultQuoteURL = "https://quote-api.jup.ag/v6"
	// DefaultMarketURL is the market pairs API.
	DefaultMarketURL = "https://api.dexscreener.com"

	// signatureScanLimit bounds how far back signature history is scanned
	// when reconstructing first buyers and wallet funding.
	signatureScanLimit = 1000
)

// Client implements Provider over JSON-RPC 2.0 plus two HTTP APIs.
type Client struct {
	rpcEndpoint string
	apiKey      string
	quoteURL    string
	marketURL   string

	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxRetries sets maximum retry attempts for RPC calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithAPIKey attaches an api-key query parameter to RPC requests, the
// authentication scheme of hosted RPC providers.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithQuoteURL overrides the swap-quote API base URL.
func WithQuoteURL(u string) ClientOption {
	return func(c *Client) { c.quoteURL = u }
}

// WithMarketURL overrides the market pairs API base URL.
func WithMarketURL(u string) ClientOption {
	return func(c *Client) { c.marketURL = u }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.client = client }
}

// NewClient creates a chain data client for the given RPC endpoint.
func NewClient(rpcEndpoint string, opts ...ClientOption) *Client {
	c := &Client{
		rpcEndpoint: rpcEndpoint,
		quoteURL:    DefaultQuoteURL,
		marketURL:   DefaultMarketURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcURL returns the RPC endpoint with the configured api-key attached.
func (c *Client) rpcURL() string {
	if c.apiKey == "" {
		return c.rpcEndpoint
	}
	sep := "?"
	if strings.Contains(c.rpcEndpoint, "?") {
		sep = "&"
	}
	return c.rpcEndpoint + sep + "api-key=" + url.QueryEscape(c.apiKey)
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport-level failures surface as ErrUnavailable after retries.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("%w: %s: max retries exceeded: %v", ErrUnavailable, method, lastErr)
}

// mintAccountInfo is the jsonParsed layout of an SPL mint account.
type mintAccountInfo struct {
	Value struct {
		Data struct {
			Parsed struct {
				Info struct {
					Decimals        int     `json:"decimals"`
					MintAuthority   *string `json:"mintAuthority"`
					FreezeAuthority *string `json:"freezeAuthority"`
					Supply          string  `json:"supply"`
				} `json:"info"`
				Type string `json:"type"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

// GetTokenAuthorities reads the mint account and reports live authorities.
func (c *Client) GetTokenAuthorities(ctx context.Context, token string) (*TokenAuthorities, error) {
	params := []interface{}{
		token,
		map[string]interface{}{"encoding": "jsonParsed"},
	}

	var result mintAccountInfo
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value.Data.Parsed.Type != "mint" {
		return nil, fmt.Errorf("%w: %s is not a token mint", ErrNotFound, token)
	}

	info := result.Value.Data.Parsed.Info
	return &TokenAuthorities{
		MintEnabled:   info.MintAuthority != nil && *info.MintAuthority != "",
		FreezeEnabled: info.FreezeAuthority != nil && *info.FreezeAuthority != "",
	}, nil
}

// assetResult is the subset of the DAS getAsset response the engine reads.
type assetResult struct {
	Content struct {
		Metadata struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"metadata"`
	} `json:"content"`
}

// GetTokenMetadata resolves symbol and name via the DAS getAsset method.
func (c *Client) GetTokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	params := []interface{}{
		map[string]interface{}{"id": token},
	}

	var result assetResult
	if err := c.call(ctx, "getAsset", params, &result); err != nil {
		return nil, err
	}

	meta := &TokenMetadata{
		Symbol: result.Content.Metadata.Symbol,
		Name:   result.Content.Metadata.Name,
	}
	if meta.Symbol == "" {
		meta.Symbol = "UNKNOWN"
	}
	return meta, nil
}

// largestAccountsResult is the raw getTokenLargestAccounts response.
type largestAccountsResult struct {
	Value []struct {
		Address  string  `json:"address"`
		UIAmount float64 `json:"uiAmount"`
	} `json:"value"`
}

type tokenSupplyResult struct {
	Value struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"value"`
}

// GetTopHolders returns the largest token accounts as supply percentages,
// largest first.
func (c *Client) GetTopHolders(ctx context.Context, token string) ([]Holder, error) {
	var supply tokenSupplyResult
	if err := c.call(ctx, "getTokenSupply", []interface{}{token}, &supply); err != nil {
		return nil, err
	}
	if supply.Value.UIAmount <= 0 {
		return nil, fmt.Errorf("%w: token %s has no supply", ErrNotFound, token)
	}

	var accounts largestAccountsResult
	if err := c.call(ctx, "getTokenLargestAccounts", []interface{}{token}, &accounts); err != nil {
		return nil, err
	}

	holders := make([]Holder, 0, len(accounts.Value))
	for _, a := range accounts.Value {
		holders = append(holders, Holder{
			Address:    a.Address,
			Percentage: a.UIAmount / supply.Value.UIAmount * 100,
		})
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Percentage > holders[j].Percentage })
	return holders, nil
}

// signatureInfo is one entry of getSignaturesForAddress.
type signatureInfo struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// oldestSignatures scans an address's signature history backwards and
// returns the oldest entries, oldest first. The scan is bounded by
// signatureScanLimit; for very active addresses the result is approximate.
func (c *Client) oldestSignatures(ctx context.Context, address string, limit int) ([]signatureInfo, error) {
	opts := map[string]interface{}{"limit": signatureScanLimit}

	var sigs []signatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, opts}, &sigs); err != nil {
		return nil, err
	}

	// Newest first from the RPC; take the tail and reverse.
	if len(sigs) > limit {
		sigs = sigs[len(sigs)-limit:]
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs, nil
}

// parsedTransaction is the subset of a jsonParsed transaction the engine
// reads: fee payer, lamport movement, and token balance changes.
type parsedTransaction struct {
	Slot      int64  `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err               interface{}    `json:"err"`
		PreBalances       []uint64       `json:"preBalances"`
		PostBalances      []uint64       `json:"postBalances"`
		PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
		PostTokenBalances []tokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
			} `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

type tokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

func (c *Client) getParsedTransaction(ctx context.Context, signature string) (*parsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var tx parsedTransaction
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}
	if tx.Slot == 0 && tx.BlockTime == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, signature)
	}
	return &tx, nil
}

// GetFirstBuyers reconstructs the token's earliest buyers from its oldest
// transactions: any wallet whose token balance increased in a successful
// transaction counts as a buyer, first increase wins.
func (c *Client) GetFirstBuyers(ctx context.Context, token string, count int) ([]Buy, error) {
	sigs, err := c.oldestSignatures(ctx, token, count*2)
	if err != nil {
		return nil, err
	}

	var supply tokenSupplyResult
	if err := c.call(ctx, "getTokenSupply", []interface{}{token}, &supply); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	buys := make([]Buy, 0, count)

	for _, sig := range sigs {
		if len(buys) >= count {
			break
		}
		if sig.Err != nil {
			continue
		}

		tx, err := c.getParsedTransaction(ctx, sig.Signature)
		if err != nil || tx.Meta == nil || tx.Meta.Err != nil {
			// A single unreadable transaction degrades the buyer list,
			// not the whole analysis.
			continue
		}

		pre := make(map[string]float64)
		for _, b := range tx.Meta.PreTokenBalances {
			if b.Mint == token {
				pre[b.Owner] += b.UITokenAmount.UIAmount
			}
		}
		for _, b := range tx.Meta.PostTokenBalances {
			if b.Mint != token || b.Owner == "" {
				continue
			}
			delta := b.UITokenAmount.UIAmount - pre[b.Owner]
			if delta <= 0 || seen[b.Owner] || !IsOnCurve(b.Owner) {
				continue
			}
			seen[b.Owner] = true

			buy := Buy{Address: b.Owner, Amount: delta, Block: tx.Slot}
			if tx.BlockTime != nil {
				buy.Timestamp = time.Unix(*tx.BlockTime, 0).UTC()
			}
			buys = append(buys, buy)
		}
	}

	sort.Slice(buys, func(i, j int) bool { return buys[i].Block < buys[j].Block })
	return buys, nil
}

// GetFundingSource returns the fee payer of the wallet's earliest
// transaction that increased its lamport balance. Approximates "who funded
// this wallet" without tracing full transfer graphs.
func (c *Client) GetFundingSource(ctx context.Context, wallet string) (string, error) {
	sigs, err := c.oldestSignatures(ctx, wallet, 5)
	if err != nil {
		return "", err
	}

	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		tx, err := c.getParsedTransaction(ctx, sig.Signature)
		if err != nil || tx.Meta == nil {
			continue
		}

		keys := tx.Transaction.Message.AccountKeys
		if len(keys) == 0 {
			continue
		}
		feePayer := keys[0].Pubkey
		if feePayer == wallet {
			continue
		}

		// Did the wallet's lamport balance grow in this transaction?
		for i, k := range keys {
			if k.Pubkey != wallet {
				continue
			}
			if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) &&
				tx.Meta.PostBalances[i] > tx.Meta.PreBalances[i] {
				return feePayer, nil
			}
		}
	}

	return "", nil
}

// GetWalletAgeDays returns days since the wallet's oldest visible
// transaction.
func (c *Client) GetWalletAgeDays(ctx context.Context, wallet string) (float64, error) {
	sigs, err := c.oldestSignatures(ctx, wallet, 1)
	if err != nil {
		return 0, err
	}
	if len(sigs) == 0 || sigs[0].BlockTime == nil {
		return 0, nil
	}
	age := time.Since(time.Unix(*sigs[0].BlockTime, 0))
	return age.Hours() / 24, nil
}
