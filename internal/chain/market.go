package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// pairsResponse is the market pairs API response for a token.
type pairsResponse struct {
	Pairs []struct {
		ChainID     string `json:"chainId"`
		PairAddress string `json:"pairAddress"`
		Liquidity   struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			H1  float64 `json:"h1"`
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Txns struct {
			H1 struct {
				Buys  int `json:"buys"`
				Sells int `json:"sells"`
			} `json:"h1"`
		} `json:"txns"`
		PairCreatedAt int64 `json:"pairCreatedAt"`
		Info          struct {
			Websites []struct {
				URL string `json:"url"`
			} `json:"websites"`
			Socials []struct {
				Type string `json:"type"`
				URL  string `json:"url"`
			} `json:"socials"`
		} `json:"info"`
	} `json:"pairs"`
}

// GetMarketSnapshot reads the token's dominant pair (highest liquidity)
// from the market pairs API.
func (c *Client) GetMarketSnapshot(ctx context.Context, token string) (*MarketSnapshot, error) {
	reqURL := fmt.Sprintf("%s/latest/dex/tokens/%s", strings.TrimRight(c.marketURL, "/"), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: market request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: market status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read market response: %v", ErrUnavailable, err)
	}

	var pr pairsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("unmarshal market response: %w", err)
	}
	if len(pr.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no market pairs for %s", ErrNotFound, token)
	}

	best := pr.Pairs[0]
	for _, p := range pr.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	snap := &MarketSnapshot{
		LiquidityUSD: best.Liquidity.USD,
		VolumeUSD1h:  best.Volume.H1,
		VolumeUSD24h: best.Volume.H24,
		BuyTx1h:      best.Txns.H1.Buys,
		SellTx1h:     best.Txns.H1.Sells,
	}
	if best.PairCreatedAt > 0 {
		created := time.UnixMilli(best.PairCreatedAt)
		snap.AgeMinutes = time.Since(created).Minutes()
	}
	for _, w := range best.Info.Websites {
		if w.URL != "" {
			snap.SocialLinks = append(snap.SocialLinks, w.URL)
		}
	}
	for _, s := range best.Info.Socials {
		if s.URL != "" {
			snap.SocialLinks = append(snap.SocialLinks, s.URL)
		}
	}

	return snap, nil
}
