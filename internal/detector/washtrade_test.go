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

func TestWashTradeCleanMarketScoresZero(t *testing.T) {
	p := stub.NewProvider()
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 100_000,
		VolumeUSD1h:  20_000,
		VolumeUSD24h: 300_000,
		BuyTx1h:      40,
		SellTx1h:     20,
	}

	d := NewWashTradeDetector(p, DefaultWashTradeConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.Score)
	assert.Equal(t, domain.RiskNone, v.RiskLevel)
	assert.Empty(t, v.Warnings)
}

func TestWashTradeInflatedVolumeScoresHigh(t *testing.T) {
	p := stub.NewProvider()
	// 6x liquidity in hourly volume, mirrored buy/sell counts and most of
	// the day's volume compressed into the last hour.
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 10_000,
		VolumeUSD1h:  60_000,
		VolumeUSD24h: 80_000,
		BuyTx1h:      55,
		SellTx1h:     50,
	}

	d := NewWashTradeDetector(p, DefaultWashTradeConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// 40 (volume/liquidity) + 30 (mirrored flow) + 10 (burst) = 80.
	assert.Equal(t, 80, v.Score)
	assert.Equal(t, domain.RiskCritical, v.RiskLevel)
	assert.Len(t, v.Warnings, 3)
}

func TestWashTradeMicroChurn(t *testing.T) {
	p := stub.NewProvider()
	p.Markets[testMint] = &chain.MarketSnapshot{
		LiquidityUSD: 50_000,
		VolumeUSD1h:  3_000,
		VolumeUSD24h: 100_000,
		BuyTx1h:      60,
		SellTx1h:     60,
	}

	d := NewWashTradeDetector(p, DefaultWashTradeConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// 30 (mirrored flow) + 20 (micro trades) = 50.
	assert.Equal(t, 50, v.Score)
	assert.Equal(t, domain.RiskMedium, v.RiskLevel)
	assert.Contains(t, v.Warnings, "120 transactions averaging under $50 each")
}

func TestWashTradeMarketUnavailable(t *testing.T) {
	d := NewWashTradeDetector(stub.NewProvider(), DefaultWashTradeConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.Score)
	assert.Equal(t, domain.RiskNone, v.RiskLevel)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "market data unavailable")
}
