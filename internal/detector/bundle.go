package detector

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"solana-safety-engine/internal/cache"
	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/observability"
)

// BundleConfig holds the clustering detector's tunables.
type BundleConfig struct {
	// FirstBuyerCount is how many earliest buyers to retrieve.
	FirstBuyerCount int
	// EnrichCount bounds the per-wallet enrichment fan-out.
	EnrichCount int
	// EnrichWorkers bounds concurrent enrichment calls.
	EnrichWorkers int

	// NewWalletAgeDays marks wallets younger than this as fresh.
	NewWalletAgeDays float64
	// EarlyBuyBlocks / DevBuyBlocks classify how soon after the first buy a
	// wallet entered.
	EarlyBuyBlocks int64
	DevBuyBlocks   int64
	// LargeHolderPct / DevHolderPct classify supply concentration per wallet.
	LargeHolderPct float64
	DevHolderPct   float64

	// HighClusterSize, TightBlockRange and MediumClusterSize grade cluster
	// suspicion.
	HighClusterSize   int
	TightBlockRange   int64
	MediumClusterSize int

	CallTimeout time.Duration
	CacheTTL    time.Duration
}

// DefaultBundleConfig returns the reference configuration.
func DefaultBundleConfig() BundleConfig {
	return BundleConfig{
		FirstBuyerCount:   50,
		EnrichCount:       20,
		EnrichWorkers:     4,
		NewWalletAgeDays:  7,
		EarlyBuyBlocks:    5,
		DevBuyBlocks:      2,
		LargeHolderPct:    5,
		DevHolderPct:      10,
		HighClusterSize:   5,
		TightBlockRange:   3,
		MediumClusterSize: 3,
		CallTimeout:       15 * time.Second,
		CacheTTL:          10 * time.Minute,
	}
}

// BundleDetector finds coordinated, commonly-funded or same-block wallet
// groups among a token's first buyers.
type BundleDetector struct {
	provider chain.Provider
	cfg      BundleConfig
	cache    *cache.TTL[*domain.BundleVerdict]
	flight   *cache.Group[*domain.BundleVerdict]
	logger   *log.Logger
	now      func() time.Time
}

// NewBundleDetector creates a bundle detector.
func NewBundleDetector(provider chain.Provider, cfg BundleConfig, logger *log.Logger) *BundleDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &BundleDetector{
		provider: provider,
		cfg:      cfg,
		cache:    cache.NewTTL[*domain.BundleVerdict](cfg.CacheTTL),
		flight:   cache.NewGroup[*domain.BundleVerdict](),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the detector's clock for deterministic tests.
func (d *BundleDetector) WithClock(now func() time.Time) *BundleDetector {
	d.now = now
	d.cache.WithClock(now)
	return d
}

// Detect analyzes the token's first buyers, serving from cache within the
// TTL.
func (d *BundleDetector) Detect(ctx context.Context, token string) (*domain.BundleVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	if v, ok := d.cache.Get(token); ok {
		observability.RecordCacheHit(NameBundle)
		return cachedBundle(v), nil
	}
	observability.RecordCacheMiss(NameBundle)

	return d.flight.Do(token, func() (*domain.BundleVerdict, error) {
		if v, ok := d.cache.Get(token); ok {
			return cachedBundle(v), nil
		}

		start := d.now()
		v := d.analyze(ctx, token)
		observability.RecordDetectorRun(NameBundle, "ok", time.Since(start).Seconds())

		d.cache.Set(token, v)
		return v, nil
	})
}

// Cached returns the cached verdict for token, or nil. No I/O.
func (d *BundleDetector) Cached(token string) *domain.BundleVerdict {
	v, ok := d.cache.Get(token)
	if !ok {
		return nil
	}
	return cachedBundle(v)
}

// ClearCache drops all cached verdicts.
func (d *BundleDetector) ClearCache() {
	d.cache.Clear()
}

func cachedBundle(v *domain.BundleVerdict) *domain.BundleVerdict {
	cp := *v
	cp.Cached = true
	return &cp
}

func (d *BundleDetector) analyze(ctx context.Context, token string) *domain.BundleVerdict {
	v := &domain.BundleVerdict{
		Token:      token,
		RiskLevel:  domain.RiskNone,
		AnalyzedAt: d.now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	buys, err := d.provider.GetFirstBuyers(callCtx, token, d.cfg.FirstBuyerCount)
	cancel()
	if err != nil {
		d.logger.Printf("[bundle] %s: first buyers unavailable: %v", token, err)
		v.Warnings = append(v.Warnings, "first buyer data unavailable")
		return v
	}
	if len(buys) == 0 {
		v.Warnings = append(v.Warnings, "no buyers observed yet; nothing to analyze")
		return v
	}

	buyers := d.enrich(ctx, token, buys)
	v.FirstBuyersAnalyzed = len(buyers)

	failed := 0
	for i := range buyers {
		if i < minInt(len(buyers), d.cfg.EnrichCount) && !buyers[i].Enriched {
			failed++
		}
	}
	if failed > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d wallets could not be enriched; clustering is partial", failed))
	}

	v.Clusters = d.cluster(buyers)
	d.countSameBlock(buyers, v)
	v.Insiders = d.profileInsiders(buyers, v.Clusters)
	d.scoreAndFlag(buyers, v)
	return v
}

// enrich resolves funding source, wallet age and held supply for the first
// EnrichCount buyers. A failed per-wallet call degrades that wallet to
// unenriched, never the whole analysis.
func (d *BundleDetector) enrich(ctx context.Context, token string, buys []chain.Buy) []domain.BuyerRecord {
	// Held-supply percentages come from one top-holders call shared by all
	// wallets.
	holdCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	holders, _ := d.provider.GetTopHolders(holdCtx, token)
	cancel()
	heldPct := make(map[string]float64, len(holders))
	for _, h := range holders {
		heldPct[h.Address] = h.Percentage
	}

	records := make([]domain.BuyerRecord, len(buys))
	for i, b := range buys {
		records[i] = domain.BuyerRecord{
			Address:            b.Address,
			BuyAmount:          b.Amount,
			BuyBlock:           b.Block,
			BuyTimestamp:       b.Timestamp,
			PercentageOfSupply: heldPct[b.Address],
		}
	}

	n := minInt(len(records), d.cfg.EnrichCount)
	sem := make(chan struct{}, d.cfg.EnrichWorkers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(r *domain.BuyerRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
			defer cancel()

			funding, err := d.provider.GetFundingSource(callCtx, r.Address)
			if err != nil {
				return
			}
			age, err := d.provider.GetWalletAgeDays(callCtx, r.Address)
			if err != nil {
				return
			}

			// Program-derived funding addresses (routers, vaults) are not
			// wallets and would fabricate clusters.
			if funding != "" && chain.IsOnCurve(funding) {
				r.FundingSource = funding
			}
			r.WalletAgeDays = age
			r.IsNewWallet = age < d.cfg.NewWalletAgeDays
			r.Enriched = true
		}(&records[i])
	}
	wg.Wait()

	return records
}

// cluster groups enriched buyers by identical funding source.
func (d *BundleDetector) cluster(buyers []domain.BuyerRecord) []domain.BundleCluster {
	byFunding := make(map[string][]*domain.BuyerRecord)
	for i := range buyers {
		b := &buyers[i]
		if !b.Enriched || b.FundingSource == "" {
			continue
		}
		byFunding[b.FundingSource] = append(byFunding[b.FundingSource], b)
	}

	var clusters []domain.BundleCluster
	for funding, group := range byFunding {
		if len(group) < 2 {
			continue
		}

		c := domain.BundleCluster{
			FundingSource: funding,
			BlockRange:    [2]int64{group[0].BuyBlock, group[0].BuyBlock},
		}
		for _, b := range group {
			c.Wallets = append(c.Wallets, b.Address)
			c.TotalBought += b.BuyAmount
			c.PercentageOfSupply += b.PercentageOfSupply
			if b.BuyBlock < c.BlockRange[0] {
				c.BlockRange[0] = b.BuyBlock
			}
			if b.BuyBlock > c.BlockRange[1] {
				c.BlockRange[1] = b.BuyBlock
			}
		}

		span := c.BlockRange[1] - c.BlockRange[0]
		switch {
		case len(group) >= d.cfg.HighClusterSize || span <= d.cfg.TightBlockRange:
			c.SuspicionLevel = domain.SuspicionHigh
			c.Reason = fmt.Sprintf("%d wallets funded by %s bought within %d blocks", len(group), shortAddr(funding), span)
		case len(group) >= d.cfg.MediumClusterSize:
			c.SuspicionLevel = domain.SuspicionMedium
			c.Reason = fmt.Sprintf("%d wallets share funding source %s", len(group), shortAddr(funding))
		default:
			c.SuspicionLevel = domain.SuspicionLow
			c.Reason = fmt.Sprintf("2 wallets share funding source %s", shortAddr(funding))
		}
		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		ri, rj := domain.SuspicionRank(clusters[i].SuspicionLevel), domain.SuspicionRank(clusters[j].SuspicionLevel)
		if ri != rj {
			return ri > rj
		}
		return len(clusters[i].Wallets) > len(clusters[j].Wallets)
	})
	return clusters
}

// countSameBlock fills SameBlockBuys from blocks holding two or more buys.
func (d *BundleDetector) countSameBlock(buyers []domain.BuyerRecord, v *domain.BundleVerdict) {
	byBlock := make(map[int64]int)
	for _, b := range buyers {
		byBlock[b.BuyBlock]++
	}
	for _, n := range byBlock {
		if n >= 2 {
			v.SameBlockBuys += n
		}
	}
}

// profileInsiders scores each enriched buyer's insider traits.
func (d *BundleDetector) profileInsiders(buyers []domain.BuyerRecord, clusters []domain.BundleCluster) []domain.InsiderProfile {
	clustered := make(map[string]bool)
	for _, c := range clusters {
		for _, w := range c.Wallets {
			clustered[w] = true
		}
	}

	firstBlock := buyers[0].BuyBlock
	for _, b := range buyers {
		if b.BuyBlock < firstBlock {
			firstBlock = b.BuyBlock
		}
	}

	var insiders []domain.InsiderProfile
	for _, b := range buyers {
		p := domain.InsiderProfile{
			Address:         b.Address,
			FirstBuyBlock:   b.BuyBlock,
			PercentageHeld:  b.PercentageOfSupply,
			BuyWithinBlocks: b.BuyBlock - firstBlock,
		}

		if clustered[b.Address] {
			p.Flags = append(p.Flags, domain.FlagBundled)
			p.SuspicionScore += 25
		}
		if b.Enriched && b.IsNewWallet {
			p.Flags = append(p.Flags, domain.FlagNewWallet)
			p.SuspicionScore += 20
		}
		if p.BuyWithinBlocks <= d.cfg.EarlyBuyBlocks {
			p.Flags = append(p.Flags, domain.FlagEarlyBuyer)
			p.SuspicionScore += 30
			if p.BuyWithinBlocks <= d.cfg.DevBuyBlocks {
				p.SuspicionScore += 20
				p.IsLikelyDev = true
			}
		}
		if b.PercentageOfSupply >= d.cfg.LargeHolderPct {
			p.Flags = append(p.Flags, domain.FlagLargeHolder)
			p.SuspicionScore += 15
			if b.PercentageOfSupply >= d.cfg.DevHolderPct {
				p.SuspicionScore += 15
				p.IsLikelyDev = true
			}
		}

		if len(p.Flags) >= 2 || p.SuspicionScore >= 40 {
			p.SuspicionScore = domain.ClampScore(p.SuspicionScore)
			insiders = append(insiders, p)
		}
	}

	sort.Slice(insiders, func(i, j int) bool {
		return insiders[i].SuspicionScore > insiders[j].SuspicionScore
	})
	return insiders
}

// bundleStats carries the derived ratios the score and red-flag rules read.
type bundleStats struct {
	verdict        *domain.BundleVerdict
	sameBlockRatio float64
	bundledRatio   float64
	newWalletRatio float64
	highClusters   int
	likelyDevs     int
	maxClusterPct  float64
	totalBlockSpan int64
}

// redFlagRules is the fixed-threshold red flag table.
func redFlagRules() []rule[*bundleStats] {
	return []rule[*bundleStats]{
		{
			name: "HIGH_SUSPICION_CLUSTER", severity: domain.SeverityCritical, points: 0,
			applies: func(s *bundleStats) bool { return s.highClusters > 0 },
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("%d high-suspicion funding cluster(s) detected", s.highClusters)
			},
		},
		{
			name: "SAME_BLOCK_SWARM", severity: domain.SeverityHigh, points: 0,
			applies: func(s *bundleStats) bool { return s.verdict.SameBlockBuys >= 5 },
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("%d buys landed in shared blocks", s.verdict.SameBlockBuys)
			},
		},
		{
			name: "CLUSTER_SUPPLY_CONTROL", severity: domain.SeverityCritical, points: 0,
			applies: func(s *bundleStats) bool { return s.maxClusterPct >= 30 },
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("a single funding cluster holds %.1f%% of supply", s.maxClusterPct)
			},
		},
		{
			name: "MULTIPLE_DEV_WALLETS", severity: domain.SeverityHigh, points: 0,
			applies: func(s *bundleStats) bool { return s.likelyDevs >= 2 },
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("%d wallets look like deployer-controlled insiders", s.likelyDevs)
			},
		},
		{
			name: "FRESH_WALLET_WAVE", severity: domain.SeverityHigh, points: 0,
			applies: func(s *bundleStats) bool { return s.newWalletRatio >= 0.5 },
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("%.0f%% of analyzed buyers are fresh wallets", s.newWalletRatio*100)
			},
		},
		{
			name: "COMPRESSED_ENTRY", severity: domain.SeverityMedium, points: 0,
			applies: func(s *bundleStats) bool {
				return s.verdict.FirstBuyersAnalyzed >= 3 && s.totalBlockSpan <= 10
			},
			describe: func(s *bundleStats) string {
				return fmt.Sprintf("entire first-buy window spans only %d blocks", s.totalBlockSpan)
			},
		},
	}
}

// scoreAndFlag computes the composite bundle score and its red flags.
func (d *BundleDetector) scoreAndFlag(buyers []domain.BuyerRecord, v *domain.BundleVerdict) {
	stats := &bundleStats{verdict: v}

	enriched, newWallets, bundled := 0, 0, 0
	clustered := make(map[string]bool)
	for _, c := range v.Clusters {
		if c.SuspicionLevel == domain.SuspicionHigh {
			stats.highClusters++
		}
		if c.PercentageOfSupply > stats.maxClusterPct {
			stats.maxClusterPct = c.PercentageOfSupply
		}
		for _, w := range c.Wallets {
			clustered[w] = true
		}
	}
	minBlock, maxBlock := buyers[0].BuyBlock, buyers[0].BuyBlock
	for _, b := range buyers {
		if b.Enriched {
			enriched++
			if b.IsNewWallet {
				newWallets++
			}
		}
		if clustered[b.Address] {
			bundled++
		}
		if b.BuyBlock < minBlock {
			minBlock = b.BuyBlock
		}
		if b.BuyBlock > maxBlock {
			maxBlock = b.BuyBlock
		}
	}
	for _, p := range v.Insiders {
		if p.IsLikelyDev {
			stats.likelyDevs++
		}
	}

	v.SameFundingSource = bundled
	v.NewWalletBuys = newWallets
	stats.totalBlockSpan = maxBlock - minBlock
	stats.sameBlockRatio = float64(v.SameBlockBuys) / float64(len(buyers))
	if enriched > 0 {
		stats.bundledRatio = float64(bundled) / float64(enriched)
		stats.newWalletRatio = float64(newWallets) / float64(enriched)
	}

	if len(clustered) > 0 {
		first, last := int64(math.MaxInt64), int64(0)
		for _, c := range v.Clusters {
			if c.BlockRange[0] < first {
				first = c.BlockRange[0]
			}
			if c.BlockRange[1] > last {
				last = c.BlockRange[1]
			}
		}
		v.CoordBlockRange = [2]int64{first, last}
	} else {
		v.CoordBlockRange = [2]int64{minBlock, maxBlock}
	}

	score := minInt(30, int(math.Round(100*stats.sameBlockRatio))) +
		minInt(30, int(math.Round(100*stats.bundledRatio))) +
		minInt(20, 10*stats.highClusters) +
		minInt(20, int(math.Round(50*stats.newWalletRatio)))
	v.BundleScore = domain.ClampScore(score)
	v.RiskLevel = domain.RiskLevelForScore(v.BundleScore)

	_, flags := applyRules(redFlagRules(), stats)
	v.RedFlags = flagMessages(flags)
}

// FormatVerdict renders a verdict for display.
func (d *BundleDetector) FormatVerdict(v *domain.BundleVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bundle analysis: %s\n", v.Token)
	fmt.Fprintf(&b, "  Score: %d/100 [%s] over %d first buyers\n", v.BundleScore, v.RiskLevel, v.FirstBuyersAnalyzed)
	fmt.Fprintf(&b, "  Clusters: %d | Same-block buys: %d | Fresh wallets: %d\n",
		len(v.Clusters), v.SameBlockBuys, v.NewWalletBuys)
	for _, c := range v.Clusters {
		fmt.Fprintf(&b, "  [%s] %s\n", c.SuspicionLevel, c.Reason)
	}
	for _, f := range v.RedFlags {
		fmt.Fprintf(&b, "  ! %s\n", f)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "  ~ %s\n", w)
	}
	return b.String()
}

// shortAddr abbreviates an address for display.
func shortAddr(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
