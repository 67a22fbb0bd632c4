package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/chain/stub"
	"solana-safety-engine/internal/domain"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testHoneypotConfig() HoneypotConfig {
	cfg := DefaultHoneypotConfig()
	cfg.QuoteDelay = 0
	return cfg
}

// healthyMarket scripts the context calls so only the quote legs drive the
// verdict.
func healthyMarket(p *stub.Provider, mint string) {
	p.Metadata[mint] = &chain.TokenMetadata{Symbol: "TEST", Name: "Test Token"}
	p.Authorities[mint] = &chain.TokenAuthorities{}
	p.Markets[mint] = &chain.MarketSnapshot{
		LiquidityUSD: 80_000,
		BuyTx1h:      40,
		SellTx1h:     35,
	}
	p.Holders[mint] = []chain.Holder{{Address: "holderA", Percentage: 4.2}}
}

func TestHoneypotSellRouteMissingIsHoneypot(t *testing.T) {
	p := stub.NewProvider()
	healthyMarket(p, testMint)
	p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{
		OutputAmount:   1_000_000,
		PriceImpactPct: 0.5,
	}
	// No token->WSOL quote scripted: the sell leg gets ErrNoRoute.

	d := NewHoneypotDetector(p, testHoneypotConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.False(t, v.CanSell)
	assert.True(t, v.IsHoneypot)
	assert.Equal(t, float64(100), v.SellTax)
	assert.Equal(t, 100, v.RiskScore)
	assert.Equal(t, domain.Honeypot, v.RiskLevel)
	assert.NotEmpty(t, v.Warnings)

	// Only the buy leg executed.
	require.Len(t, v.Samples, 1)
	assert.Equal(t, domain.SwapBuy, v.Samples[0].Direction)
}

func TestHoneypotCleanRoundTripHasZeroTaxes(t *testing.T) {
	p := stub.NewProvider()
	healthyMarket(p, testMint)
	cfg := testHoneypotConfig()
	p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{
		OutputAmount: 1_000_000,
	}
	// Full recovery of the probe amount, zero impact on both legs.
	p.Quotes[stub.QuoteKey(testMint, chain.WSOLMint)] = &chain.SwapQuote{
		OutputAmount: cfg.ProbeLamports,
	}

	d := NewHoneypotDetector(p, cfg, nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.True(t, v.CanSell)
	assert.False(t, v.IsHoneypot)
	assert.Equal(t, float64(0), v.BuyTax)
	assert.Equal(t, float64(0), v.SellTax)
	assert.Equal(t, 0, v.RiskScore)
	assert.Equal(t, domain.HoneypotSafe, v.RiskLevel)
	assert.Equal(t, "TEST", v.Symbol)
	assert.True(t, v.LPLocked)

	// Both legs recorded in execution order, sell fed by the buy's output.
	require.Len(t, v.Samples, 2)
	assert.Equal(t, domain.SwapBuy, v.Samples[0].Direction)
	assert.Equal(t, cfg.ProbeLamports, v.Samples[0].InputAmount)
	assert.Equal(t, uint64(1_000_000), v.Samples[0].OutputAmount)
	assert.Equal(t, domain.SwapSell, v.Samples[1].Direction)
	assert.Equal(t, uint64(1_000_000), v.Samples[1].InputAmount)
	assert.Equal(t, cfg.ProbeLamports, v.Samples[1].OutputAmount)
}

func TestHoneypotSellTaxGrowsWithRoundTripLoss(t *testing.T) {
	cfg := testHoneypotConfig()
	sellTaxFor := func(recovered uint64) float64 {
		p := stub.NewProvider()
		healthyMarket(p, testMint)
		p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{OutputAmount: 1_000_000}
		p.Quotes[stub.QuoteKey(testMint, chain.WSOLMint)] = &chain.SwapQuote{OutputAmount: recovered}

		d := NewHoneypotDetector(p, cfg, nil)
		v, err := d.Detect(context.Background(), testMint)
		require.NoError(t, err)
		require.True(t, v.CanSell)
		return v.SellTax
	}

	mild := sellTaxFor(cfg.ProbeLamports * 9 / 10)  // 10% loss
	harsh := sellTaxFor(cfg.ProbeLamports * 6 / 10) // 40% loss
	assert.Greater(t, harsh, mild)
	assert.Greater(t, mild, float64(0))
}

func TestHoneypotFreezeAuthorityFlagged(t *testing.T) {
	p := stub.NewProvider()
	healthyMarket(p, testMint)
	p.Authorities[testMint] = &chain.TokenAuthorities{FreezeEnabled: true}
	cfg := testHoneypotConfig()
	p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{OutputAmount: 1_000_000}
	p.Quotes[stub.QuoteKey(testMint, chain.WSOLMint)] = &chain.SwapQuote{OutputAmount: cfg.ProbeLamports}

	d := NewHoneypotDetector(p, cfg, nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.True(t, v.HasBlacklist)
	assert.True(t, v.HasTradingPause)
	assert.Equal(t, 15, v.RiskScore)
	assert.Equal(t, domain.HoneypotLow, v.RiskLevel)
}

func TestHoneypotCacheServesWithinTTL(t *testing.T) {
	p := stub.NewProvider()
	healthyMarket(p, testMint)
	cfg := testHoneypotConfig()
	p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{OutputAmount: 1_000_000}
	p.Quotes[stub.QuoteKey(testMint, chain.WSOLMint)] = &chain.SwapQuote{OutputAmount: cfg.ProbeLamports}

	clock := time.Now()
	d := NewHoneypotDetector(p, cfg, nil).WithClock(func() time.Time { return clock })

	first, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, p.CallCount("GetSwapQuote"))

	second, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, 2, p.CallCount("GetSwapQuote"), "cached verdict must not re-probe")

	clock = clock.Add(cfg.CacheTTL + time.Second)
	third, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 4, p.CallCount("GetSwapQuote"))
}

func TestHoneypotRejectsInvalidAddress(t *testing.T) {
	d := NewHoneypotDetector(stub.NewProvider(), testHoneypotConfig(), nil)
	_, err := d.Detect(context.Background(), "not-a-mint")
	require.ErrorIs(t, err, chain.ErrInvalidToken)
}
