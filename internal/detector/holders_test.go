package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/chain/stub"
	"solana-safety-engine/internal/domain"
)

func flagTypes(flags []domain.RedFlag) []string {
	types := make([]string, 0, len(flags))
	for _, f := range flags {
		types = append(types, f.Type)
	}
	return types
}

func TestHolderAnalyzerFlagsRiskyToken(t *testing.T) {
	p := stub.NewProvider()
	p.Holders[testMint] = []chain.Holder{
		{Address: "whale", Percentage: 45},
		{Address: "second", Percentage: 2},
	}
	p.Authorities[testMint] = &chain.TokenAuthorities{FreezeEnabled: true}
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 5_000,
		AgeMinutes:   10,
	}

	d := NewHolderAnalyzer(p, DefaultHolderConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// 70 - 20 (top holder) - 10 (freeze) - 5 (young) - 5 (no socials)
	// - 10 (low liquidity) = 20.
	assert.Equal(t, 20, v.SafetyScore)
	assert.Equal(t, domain.CategoryRisky, v.RiskCategory)
	assert.Equal(t, float64(45), v.TopHolderPct)
	assert.True(t, v.FreezeAuthorityEnabled)

	types := flagTypes(v.RedFlags)
	assert.Contains(t, types, "TOP_HOLDER_CRITICAL")
	assert.Contains(t, types, "FREEZE_AUTHORITY")
	assert.Contains(t, types, "VERY_YOUNG_TOKEN")
	assert.Contains(t, types, "LOW_LIQUIDITY")
	assert.Len(t, types, 5)
}

func TestHolderAnalyzerRewardsHealthyToken(t *testing.T) {
	p := stub.NewProvider()
	p.Holders[testMint] = []chain.Holder{
		{Address: "a", Percentage: 4},
		{Address: "b", Percentage: 3},
		{Address: "c", Percentage: 2},
	}
	p.Authorities[testMint] = &chain.TokenAuthorities{}
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 120_000,
		AgeMinutes:   3_000,
		SocialLinks:  []string{"https://example.org"},
	}

	d := NewHolderAnalyzer(p, DefaultHolderConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// 70 + 5 (distribution) + 3 (age) + 3 (socials) + 5 (liquidity) = 86.
	assert.Equal(t, 86, v.SafetyScore)
	assert.Equal(t, domain.CategorySafe, v.RiskCategory)
	assert.False(t, v.MintAuthorityEnabled)
	assert.False(t, v.FreezeAuthorityEnabled)
}

func TestHolderAnalyzerDetectsBundledStakes(t *testing.T) {
	p := stub.NewProvider()
	p.Holders[testMint] = []chain.Holder{
		{Address: "a", Percentage: 5.2},
		{Address: "b", Percentage: 5.1},
		{Address: "c", Percentage: 5.0},
		{Address: "d", Percentage: 4.9},
	}
	p.Authorities[testMint] = &chain.TokenAuthorities{}

	d := NewHolderAnalyzer(p, DefaultHolderConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 6, v.BundledWalletPairs)
	assert.Contains(t, flagTypes(v.RedFlags), "BUNDLED_WALLETS")
}

func TestHolderAnalyzerUnknownInputsStayNeutral(t *testing.T) {
	// Nothing scripted: every fetch fails and no delta may apply.
	d := NewHolderAnalyzer(stub.NewProvider(), DefaultHolderConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, DefaultHolderConfig().BaseScore, v.SafetyScore)
	assert.Empty(t, v.RedFlags)
}
