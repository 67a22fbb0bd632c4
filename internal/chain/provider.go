// Package chain is the engine's boundary to chain data. Detectors depend on
// the Provider interface; Client is the production adapter over JSON-RPC,
// a swap-quote aggregator API and a market pairs API.
package chain

import (
	"context"
	"errors"
	"time"
)

// WSOLMint is the wrapped native asset used as the probe side of swap quotes.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Sentinel errors. ErrNoRoute is a signal, not a system failure: a token
// with no sell route is the classic honeypot signature.
var (
	ErrNoRoute      = errors.New("no swap route")
	ErrUnavailable  = errors.New("chain data provider unavailable")
	ErrInvalidToken = errors.New("invalid token address")
	ErrNotFound     = errors.New("not found")
)

// TokenMetadata is basic token identity.
type TokenMetadata struct {
	Symbol string
	Name   string
}

// SwapQuote is the outcome of one simulated swap.
type SwapQuote struct {
	OutputAmount   uint64
	PriceImpactPct float64
}

// TokenAuthorities reports which mint-level authorities are still live.
type TokenAuthorities struct {
	MintEnabled   bool
	FreezeEnabled bool
}

// Holder is one entry of a token's top-holder list.
type Holder struct {
	Address    string
	Percentage float64
}

// Buy is one early purchase of a token, in block order.
type Buy struct {
	Address   string
	Amount    float64
	Block     int64
	Timestamp time.Time
}

// MarketSnapshot is the market context of a token's dominant pair.
type MarketSnapshot struct {
	LiquidityUSD float64
	AgeMinutes   float64
	SocialLinks  []string
	BuyTx1h      int
	SellTx1h     int
	VolumeUSD1h  float64
	VolumeUSD24h float64
}

// Provider supplies the chain data the detectors consume. Implementations
// must honor context deadlines; every engine call carries a bounded timeout.
type Provider interface {
	GetTokenMetadata(ctx context.Context, token string) (*TokenMetadata, error)

	// GetSwapQuote simulates converting amount of inputMint into outputMint.
	// Returns ErrNoRoute when no liquidity route exists.
	GetSwapQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*SwapQuote, error)

	GetTokenAuthorities(ctx context.Context, token string) (*TokenAuthorities, error)
	GetTopHolders(ctx context.Context, token string) ([]Holder, error)

	// GetFirstBuyers returns up to count of the token's earliest buyers in
	// block order.
	GetFirstBuyers(ctx context.Context, token string, count int) ([]Buy, error)

	// GetFundingSource returns the sender of the wallet's first incoming
	// native transfer, or "" when none is found. This is a documented
	// approximation of "who funded this wallet".
	GetFundingSource(ctx context.Context, wallet string) (string, error)

	GetWalletAgeDays(ctx context.Context, wallet string) (float64, error)
	GetMarketSnapshot(ctx context.Context, token string) (*MarketSnapshot, error)
}
