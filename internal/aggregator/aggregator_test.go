package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/chain/stub"
	"solana-safety-engine/internal/detector"
	"solana-safety-engine/internal/domain"
)

const (
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	otherMint = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// newTestAggregator builds an aggregator over p with the honeypot quote
// delay removed.
func newTestAggregator(p *stub.Provider) *Aggregator {
	hpCfg := detector.DefaultHoneypotConfig()
	hpCfg.QuoteDelay = 0
	return New(Options{
		Honeypot:  detector.NewHoneypotDetector(p, hpCfg, nil),
		Bundle:    detector.NewBundleDetector(p, detector.DefaultBundleConfig(), nil),
		Holders:   detector.NewHolderAnalyzer(p, detector.DefaultHolderConfig(), nil),
		WashTrade: detector.NewWashTradeDetector(p, detector.DefaultWashTradeConfig(), nil),
		Sniper:    detector.NewSniperDetector(p, detector.DefaultSniperConfig(), nil),
		Config:    DefaultConfig(),
	})
}

func scriptCleanRoundTrip(p *stub.Provider, mint string) {
	probe := detector.DefaultHoneypotConfig().ProbeLamports
	p.Quotes[stub.QuoteKey(chain.WSOLMint, mint)] = &chain.SwapQuote{OutputAmount: 1_000_000}
	p.Quotes[stub.QuoteKey(mint, chain.WSOLMint)] = &chain.SwapQuote{OutputAmount: probe}
}

func TestAnalyzeFullWeightsComponentScores(t *testing.T) {
	p := stub.NewProvider()
	p.Metadata[testMint] = &chain.TokenMetadata{Symbol: "TEST"}
	p.Holders[testMint] = []chain.Holder{{Address: "a", Percentage: 4}}
	scriptCleanRoundTrip(p, testMint)
	// Thin pool with inflated, mirrored, bursty flow: wash score 80. The
	// same snapshot leaves the honeypot LP-unlocked flag worth 10.
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 10_000,
		VolumeUSD1h:  60_000,
		VolumeUSD24h: 80_000,
		BuyTx1h:      55,
		SellTx1h:     50,
	}

	a := newTestAggregator(p)
	v, err := a.AnalyzeFull(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 10, v.PerDetectorScores[detector.NameHoneypot])
	assert.Equal(t, 80, v.PerDetectorScores[detector.NameWashTrade])
	assert.Equal(t, 0, v.PerDetectorScores[detector.NameBundle])
	assert.Equal(t, 0, v.PerDetectorScores[detector.NameSniper])

	// round(0.35*10 + 0.25*80 + 0.20*0 + 0.20*0) = 24.
	assert.Equal(t, 24, v.CombinedRiskScore)
	assert.Equal(t, domain.OverallLow, v.OverallRisk)
	assert.Equal(t, "TEST", v.Symbol)
	require.NotNil(t, v.HolderSafety)
	require.NotNil(t, v.WashTrading)
	assert.NotEmpty(t, v.Warnings)
}

func TestAnalyzeFullHoneypotForcesCritical(t *testing.T) {
	p := stub.NewProvider()
	p.Metadata[testMint] = &chain.TokenMetadata{Symbol: "TRAP"}
	p.Holders[testMint] = []chain.Holder{{Address: "a", Percentage: 4}}
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 80_000,
		BuyTx1h:      40,
		SellTx1h:     20,
	}
	// Buy route exists, sell route does not.
	p.Quotes[stub.QuoteKey(chain.WSOLMint, testMint)] = &chain.SwapQuote{OutputAmount: 1_000_000}

	a := newTestAggregator(p)
	v, err := a.AnalyzeFull(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 100, v.PerDetectorScores[detector.NameHoneypot])
	// 0.35*100 = 35, below the CRITICAL threshold on score alone; the
	// honeypot finding must force it regardless.
	assert.Equal(t, 35, v.CombinedRiskScore)
	assert.Equal(t, domain.OverallCritical, v.OverallRisk)
	assert.Contains(t, v.Recommendation, "DO NOT BUY")
}

func TestAnalyzeFullCleanToken(t *testing.T) {
	p := stub.NewProvider()
	p.Metadata[testMint] = &chain.TokenMetadata{Symbol: "OK"}
	p.Holders[testMint] = []chain.Holder{{Address: "a", Percentage: 4}}
	p.Authorities[testMint] = &chain.TokenAuthorities{}
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 120_000,
		AgeMinutes:   3_000,
		SocialLinks:  []string{"https://example.org"},
		VolumeUSD1h:  20_000,
		VolumeUSD24h: 300_000,
		BuyTx1h:      40,
		SellTx1h:     20,
	}
	scriptCleanRoundTrip(p, testMint)

	a := newTestAggregator(p)
	v, err := a.AnalyzeFull(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.CombinedRiskScore)
	assert.Equal(t, domain.OverallLow, v.OverallRisk)
	assert.Contains(t, v.Recommendation, "ANALYZE")
}

func TestAnalyzeFullRejectsInvalidAddress(t *testing.T) {
	a := newTestAggregator(stub.NewProvider())
	_, err := a.AnalyzeFull(context.Background(), "definitely-not-base58!")
	require.ErrorIs(t, err, chain.ErrInvalidToken)
}

func TestAnalyzeBatchKeepsOrderAndReportsErrors(t *testing.T) {
	p := stub.NewProvider()
	for _, mint := range []string{testMint, otherMint} {
		p.Markets[mint] = &chain.MarketSnapshot{LiquidityUSD: 80_000, BuyTx1h: 30, SellTx1h: 25}
		p.Holders[mint] = []chain.Holder{{Address: "a", Percentage: 4}}
		scriptCleanRoundTrip(p, mint)
	}

	a := newTestAggregator(p)
	a.cfg.BatchSize = 2
	a.cfg.BatchDelay = time.Millisecond

	results := a.AnalyzeBatch(context.Background(), []string{testMint, "bogus", otherMint})
	require.Len(t, results, 3)

	assert.Equal(t, testMint, results[0].Token)
	require.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Verdict)

	assert.Equal(t, "bogus", results[1].Token)
	require.ErrorIs(t, results[1].Err, chain.ErrInvalidToken)
	assert.Nil(t, results[1].Verdict)

	assert.Equal(t, otherMint, results[2].Token)
	require.NoError(t, results[2].Err)
}
