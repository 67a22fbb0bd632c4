package chain

import (
	"context"
	"time"

	"solana-safety-engine/internal/observability"
)

// instrumented wraps a Provider and records call latency and errors.
type instrumented struct {
	p Provider
}

// Instrument returns a Provider that records per-method metrics around p.
func Instrument(p Provider) Provider {
	return &instrumented{p: p}
}

func observe(method string, start time.Time, err error) {
	observability.RecordProviderCall(method, time.Since(start).Seconds(), err)
}

func (i *instrumented) GetTokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	start := time.Now()
	m, err := i.p.GetTokenMetadata(ctx, token)
	observe("GetTokenMetadata", start, err)
	return m, err
}

func (i *instrumented) GetSwapQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*SwapQuote, error) {
	start := time.Now()
	q, err := i.p.GetSwapQuote(ctx, inputMint, outputMint, amount)
	observe("GetSwapQuote", start, err)
	return q, err
}

func (i *instrumented) GetTokenAuthorities(ctx context.Context, token string) (*TokenAuthorities, error) {
	start := time.Now()
	a, err := i.p.GetTokenAuthorities(ctx, token)
	observe("GetTokenAuthorities", start, err)
	return a, err
}

func (i *instrumented) GetTopHolders(ctx context.Context, token string) ([]Holder, error) {
	start := time.Now()
	h, err := i.p.GetTopHolders(ctx, token)
	observe("GetTopHolders", start, err)
	return h, err
}

func (i *instrumented) GetFirstBuyers(ctx context.Context, token string, count int) ([]Buy, error) {
	start := time.Now()
	b, err := i.p.GetFirstBuyers(ctx, token, count)
	observe("GetFirstBuyers", start, err)
	return b, err
}

func (i *instrumented) GetFundingSource(ctx context.Context, wallet string) (string, error) {
	start := time.Now()
	s, err := i.p.GetFundingSource(ctx, wallet)
	observe("GetFundingSource", start, err)
	return s, err
}

func (i *instrumented) GetWalletAgeDays(ctx context.Context, wallet string) (float64, error) {
	start := time.Now()
	d, err := i.p.GetWalletAgeDays(ctx, wallet)
	observe("GetWalletAgeDays", start, err)
	return d, err
}

func (i *instrumented) GetMarketSnapshot(ctx context.Context, token string) (*MarketSnapshot, error) {
	start := time.Now()
	m, err := i.p.GetMarketSnapshot(ctx, token)
	observe("GetMarketSnapshot", start, err)
	return m, err
}
