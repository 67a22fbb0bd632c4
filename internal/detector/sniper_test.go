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

func scriptBuyers(p *stub.Provider, mint string, blocks []int64) {
	for i, block := range blocks {
		p.Buyers[mint] = append(p.Buyers[mint], chain.Buy{
			Address: string(rune('a' + i)),
			Amount:  100,
			Block:   block,
		})
	}
}

func TestSniperScoresAutomatedEntry(t *testing.T) {
	p := stub.NewProvider()
	// 6 snipers within 2 blocks of launch, 3 early buyers, 2 organic.
	scriptBuyers(p, testMint, []int64{100, 100, 100, 101, 102, 102, 104, 105, 105, 120, 120})

	d := NewSniperDetector(p, DefaultSniperConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// min(60, 12*6) + min(40, 5*3) = 60 + 15 = 75.
	assert.Equal(t, 75, v.Score)
	assert.Equal(t, domain.RiskHigh, v.RiskLevel)
	assert.Contains(t, v.Warnings, "3 wallets bought in the very first block")
	assert.Contains(t, v.Warnings, "6 wallets entered within 2 blocks of launch")
	assert.Contains(t, v.Warnings, "6 of 11 first buyers are snipers")
}

func TestSniperOrganicEntryStaysLow(t *testing.T) {
	p := stub.NewProvider()
	scriptBuyers(p, testMint, []int64{100, 150, 300})

	d := NewSniperDetector(p, DefaultSniperConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	// Only the very first buyer counts as a sniper.
	assert.Equal(t, 12, v.Score)
	assert.Equal(t, domain.RiskNone, v.RiskLevel)
	assert.Empty(t, v.Warnings)
}

func TestSniperScoreIsCapped(t *testing.T) {
	p := stub.NewProvider()
	blocks := make([]int64, 10)
	for i := range blocks {
		blocks[i] = 100
	}
	scriptBuyers(p, testMint, blocks)

	d := NewSniperDetector(p, DefaultSniperConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 60, v.Score)
	assert.Equal(t, domain.RiskHigh, v.RiskLevel)
}

func TestSniperNoBuyers(t *testing.T) {
	d := NewSniperDetector(stub.NewProvider(), DefaultSniperConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.Score)
	assert.Equal(t, domain.RiskNone, v.RiskLevel)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "no buyers observed yet")
}
