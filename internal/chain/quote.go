package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// quoteResponse is the aggregator quote API response.
type quoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	ErrorCode      string `json:"errorCode"`
	Error          string `json:"error"`
}

// GetSwapQuote asks the aggregator for a route converting amount of
// inputMint into outputMint. A missing route maps to ErrNoRoute.
func (c *Client) GetSwapQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*SwapQuote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", "100")

	reqURL := fmt.Sprintf("%s/quote?%s", strings.TrimRight(c.quoteURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: quote request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read quote response: %v", ErrUnavailable, err)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("unmarshal quote response: %w", err)
	}

	// The aggregator reports missing routes as a 400 with an error code.
	if isNoRoute(resp.StatusCode, qr) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, inputMint, outputMint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: quote status %d: %s", ErrUnavailable, resp.StatusCode, qr.Error)
	}

	out, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse outAmount %q: %w", qr.OutAmount, err)
	}
	// The aggregator reports impact as a fraction; the engine works in
	// percent throughout.
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)

	return &SwapQuote{OutputAmount: out, PriceImpactPct: impact * 100}, nil
}

func isNoRoute(status int, qr quoteResponse) bool {
	if strings.Contains(qr.ErrorCode, "COULD_NOT_FIND_ANY_ROUTE") {
		return true
	}
	return status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(qr.Error), "route")
}
