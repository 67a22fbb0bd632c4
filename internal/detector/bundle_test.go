package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/chain/stub"
	"solana-safety-engine/internal/domain"
)

// systemAddr decodes to 32 zero bytes, which lie on the ed25519 curve.
const systemAddr = "11111111111111111111111111111111"

func TestBundleCommonFundingSourceClusters(t *testing.T) {
	p := stub.NewProvider()
	wallets := []string{"walletA", "walletB", "walletC", "walletD", "walletE"}
	blocks := []int64{100, 100, 101, 101, 102}
	for i, w := range wallets {
		p.Buyers[testMint] = append(p.Buyers[testMint], chain.Buy{
			Address: w,
			Amount:  1000,
			Block:   blocks[i],
		})
		p.Funding[w] = systemAddr
		p.WalletAges[w] = 120 // seasoned wallets; freshness must not drive the score
	}

	d := NewBundleDetector(p, DefaultBundleConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	require.Len(t, v.Clusters, 1)
	c := v.Clusters[0]
	assert.Equal(t, domain.SuspicionHigh, c.SuspicionLevel)
	assert.Equal(t, systemAddr, c.FundingSource)
	assert.Len(t, c.Wallets, 5)
	assert.Equal(t, [2]int64{100, 102}, c.BlockRange)

	// 4 same-block buys (30) + all bundled (30) + one high cluster (10).
	assert.Equal(t, 4, v.SameBlockBuys)
	assert.Equal(t, 5, v.SameFundingSource)
	assert.Equal(t, 0, v.NewWalletBuys)
	assert.Equal(t, 70, v.BundleScore)
	assert.Equal(t, domain.RiskHigh, v.RiskLevel)

	// Every buyer is bundled plus an early buyer, so all five profile as
	// insiders and as likely devs.
	assert.Len(t, v.Insiders, 5)
	assert.Contains(t, v.Insiders[0].Flags, domain.FlagBundled)
	assert.Contains(t, v.Insiders[0].Flags, domain.FlagEarlyBuyer)

	assert.Contains(t, v.RedFlags, "1 high-suspicion funding cluster(s) detected")
}

func TestBundleFreshWalletWave(t *testing.T) {
	p := stub.NewProvider()
	wallets := []string{"walletA", "walletB", "walletC", "walletD", "walletE"}
	blocks := []int64{100, 100, 101, 101, 102}
	for i, w := range wallets {
		p.Buyers[testMint] = append(p.Buyers[testMint], chain.Buy{Address: w, Amount: 1000, Block: blocks[i]})
		p.Funding[w] = systemAddr
		p.WalletAges[w] = 2 // younger than the 7-day freshness cutoff
	}

	d := NewBundleDetector(p, DefaultBundleConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 5, v.NewWalletBuys)
	assert.Equal(t, 90, v.BundleScore)
	assert.Equal(t, domain.RiskCritical, v.RiskLevel)
	assert.Contains(t, v.RedFlags, "100% of analyzed buyers are fresh wallets")
}

func TestBundleNoBuyersYieldsNeutralVerdict(t *testing.T) {
	p := stub.NewProvider()
	p.Buyers[testMint] = nil

	d := NewBundleDetector(p, DefaultBundleConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.BundleScore)
	assert.Equal(t, domain.RiskNone, v.RiskLevel)
	assert.Empty(t, v.Clusters)
	assert.Empty(t, v.Insiders)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "no buyers observed yet")
}

func TestBundleEnrichmentFailureDegradesGracefully(t *testing.T) {
	p := stub.NewProvider()
	for i, w := range []string{"walletA", "walletB", "walletC", "walletD"} {
		p.Buyers[testMint] = append(p.Buyers[testMint], chain.Buy{
			Address: w,
			Amount:  500,
			Block:   int64(100 + 100*i),
		})
	}
	p.Errs["GetFundingSource"] = errors.New("rpc node down")

	d := NewBundleDetector(p, DefaultBundleConfig(), nil)
	v, err := d.Detect(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, 0, v.BundleScore)
	assert.Empty(t, v.Clusters)
	assert.Equal(t, 4, v.FirstBuyersAnalyzed)
	require.NotEmpty(t, v.Warnings)
	assert.Contains(t, v.Warnings[0], "4 wallets could not be enriched")
}
