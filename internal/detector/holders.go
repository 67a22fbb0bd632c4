package detector

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"solana-safety-engine/internal/cache"
	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/observability"
)

// HolderConfig holds the holder safety analyzer's tunables.
type HolderConfig struct {
	BaseScore int

	TopHolderCriticalPct float64
	TopHolderHighPct     float64
	TopHolderSafePct     float64
	Top5CombinedPct      float64

	YoungTokenMinutes  float64
	MatureTokenMinutes float64

	LowLiquidityUSD     float64
	HealthyLiquidityUSD float64

	// BundledPair* parameters drive the "bundled wallets" heuristic: holder
	// pairs with near-identical stakes suggest one operator splitting bags.
	BundledPairMinPct   float64
	BundledPairDeltaPct float64
	BundledPairCount    int

	CallTimeout time.Duration
	CacheTTL    time.Duration
}

// DefaultHolderConfig returns the reference configuration.
func DefaultHolderConfig() HolderConfig {
	return HolderConfig{
		BaseScore:            70,
		TopHolderCriticalPct: 30,
		TopHolderHighPct:     20,
		TopHolderSafePct:     10,
		Top5CombinedPct:      50,
		YoungTokenMinutes:    60,
		MatureTokenMinutes:   1440,
		LowLiquidityUSD:      10_000,
		HealthyLiquidityUSD:  50_000,
		BundledPairMinPct:    3,
		BundledPairDeltaPct:  0.5,
		BundledPairCount:     3,
		CallTimeout:          15 * time.Second,
		CacheTTL:             5 * time.Minute,
	}
}

// HolderAnalyzer scores holder concentration, contract authorities and
// market context into a safety score (higher is safer).
type HolderAnalyzer struct {
	provider chain.Provider
	cfg      HolderConfig
	cache    *cache.TTL[*domain.HolderSafetyVerdict]
	flight   *cache.Group[*domain.HolderSafetyVerdict]
	logger   *log.Logger
	now      func() time.Time
}

// NewHolderAnalyzer creates a holder safety analyzer.
func NewHolderAnalyzer(provider chain.Provider, cfg HolderConfig, logger *log.Logger) *HolderAnalyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &HolderAnalyzer{
		provider: provider,
		cfg:      cfg,
		cache:    cache.NewTTL[*domain.HolderSafetyVerdict](cfg.CacheTTL),
		flight:   cache.NewGroup[*domain.HolderSafetyVerdict](),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the analyzer's clock for deterministic tests.
func (d *HolderAnalyzer) WithClock(now func() time.Time) *HolderAnalyzer {
	d.now = now
	d.cache.WithClock(now)
	return d
}

// holderStats is the input the scoring rule table reads.
type holderStats struct {
	topHolderPct  float64
	top5Pct       float64
	mintEnabled   bool
	freezeEnabled bool
	ageMinutes    float64
	hasSocials    bool
	liquidityUSD  float64
	bundledPairs  int
	holdersKnown  bool
	authKnown     bool
	marketKnown   bool
}

// Detect analyzes the token's holder distribution, serving from cache
// within the TTL.
func (d *HolderAnalyzer) Detect(ctx context.Context, token string) (*domain.HolderSafetyVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	if v, ok := d.cache.Get(token); ok {
		observability.RecordCacheHit(NameHolders)
		return cachedHolder(v), nil
	}
	observability.RecordCacheMiss(NameHolders)

	return d.flight.Do(token, func() (*domain.HolderSafetyVerdict, error) {
		if v, ok := d.cache.Get(token); ok {
			return cachedHolder(v), nil
		}

		start := d.now()
		v := d.analyze(ctx, token)
		observability.RecordDetectorRun(NameHolders, "ok", time.Since(start).Seconds())

		d.cache.Set(token, v)
		return v, nil
	})
}

// Cached returns the cached verdict for token, or nil. No I/O.
func (d *HolderAnalyzer) Cached(token string) *domain.HolderSafetyVerdict {
	v, ok := d.cache.Get(token)
	if !ok {
		return nil
	}
	return cachedHolder(v)
}

// ClearCache drops all cached verdicts.
func (d *HolderAnalyzer) ClearCache() {
	d.cache.Clear()
}

func cachedHolder(v *domain.HolderSafetyVerdict) *domain.HolderSafetyVerdict {
	cp := *v
	cp.Cached = true
	return &cp
}

func (d *HolderAnalyzer) analyze(ctx context.Context, token string) *domain.HolderSafetyVerdict {
	// The three inputs are independent and fetched concurrently.
	var (
		wg      sync.WaitGroup
		holders []chain.Holder
		auth    *chain.TokenAuthorities
		snap    *chain.MarketSnapshot
		holdErr error
		authErr error
		snapErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		holders, holdErr = d.provider.GetTopHolders(callCtx, token)
	}()
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		auth, authErr = d.provider.GetTokenAuthorities(callCtx, token)
	}()
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		snap, snapErr = d.provider.GetMarketSnapshot(callCtx, token)
	}()
	wg.Wait()

	stats := &holderStats{}
	if holdErr == nil && len(holders) > 0 {
		stats.holdersKnown = true
		stats.topHolderPct = holders[0].Percentage
		for i, h := range holders {
			if i >= 5 {
				break
			}
			stats.top5Pct += h.Percentage
		}
		stats.bundledPairs = d.bundledPairs(holders)
	} else if holdErr != nil {
		d.logger.Printf("[holders] %s: top holders unavailable: %v", token, holdErr)
	}
	if authErr == nil && auth != nil {
		stats.authKnown = true
		stats.mintEnabled = auth.MintEnabled
		stats.freezeEnabled = auth.FreezeEnabled
	}
	if snapErr == nil && snap != nil {
		stats.marketKnown = true
		stats.ageMinutes = snap.AgeMinutes
		stats.hasSocials = len(snap.SocialLinks) > 0
		stats.liquidityUSD = snap.LiquidityUSD
	}

	score, flags := applyRules(d.rules(), stats)
	score += d.cfg.BaseScore

	v := &domain.HolderSafetyVerdict{
		Token:                  token,
		SafetyScore:            domain.ClampScore(score),
		RedFlags:               flags,
		DevHoldingsPct:         stats.topHolderPct, // largest account as dev proxy
		TopHolderPct:           stats.topHolderPct,
		MintAuthorityEnabled:   stats.mintEnabled,
		FreezeAuthorityEnabled: stats.freezeEnabled,
		TokenAgeMinutes:        stats.ageMinutes,
		BundledWalletPairs:     stats.bundledPairs,
		AnalyzedAt:             d.now().UTC(),
	}
	v.RiskCategory = domain.CategoryForSafetyScore(v.SafetyScore)
	return v
}

// bundledPairs counts holder pairs with near-identical significant stakes.
func (d *HolderAnalyzer) bundledPairs(holders []chain.Holder) int {
	var significant []float64
	for _, h := range holders {
		if h.Percentage >= d.cfg.BundledPairMinPct {
			significant = append(significant, h.Percentage)
		}
	}

	pairs := 0
	for i := 0; i < len(significant); i++ {
		for j := i + 1; j < len(significant); j++ {
			if math.Abs(significant[i]-significant[j]) <= d.cfg.BundledPairDeltaPct {
				pairs++
			}
		}
	}
	return pairs
}

// rules is the holder safety delta table. Order matters: applied deltas are
// recorded as ordered red flags.
func (d *HolderAnalyzer) rules() []rule[*holderStats] {
	return []rule[*holderStats]{
		{
			name: "TOP_HOLDER_CRITICAL", severity: domain.SeverityCritical, points: -20,
			applies: func(s *holderStats) bool { return s.holdersKnown && s.topHolderPct > d.cfg.TopHolderCriticalPct },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("top holder owns %.1f%% of supply", s.topHolderPct)
			},
		},
		{
			name: "TOP_HOLDER_HIGH", severity: domain.SeverityHigh, points: -10,
			applies: func(s *holderStats) bool {
				return s.holdersKnown && s.topHolderPct > d.cfg.TopHolderHighPct && s.topHolderPct <= d.cfg.TopHolderCriticalPct
			},
			describe: func(s *holderStats) string {
				return fmt.Sprintf("top holder owns %.1f%% of supply", s.topHolderPct)
			},
		},
		{
			name: "WELL_DISTRIBUTED", severity: domain.SeverityLow, points: 5,
			applies: func(s *holderStats) bool { return s.holdersKnown && s.topHolderPct < d.cfg.TopHolderSafePct },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("top holder owns only %.1f%% of supply", s.topHolderPct)
			},
		},
		{
			name: "TOP5_CONCENTRATION", severity: domain.SeverityHigh, points: -10,
			applies: func(s *holderStats) bool { return s.holdersKnown && s.top5Pct > d.cfg.Top5CombinedPct },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("top 5 holders own %.1f%% combined", s.top5Pct)
			},
		},
		{
			name: "MINT_AUTHORITY", severity: domain.SeverityCritical, points: -15,
			applies: func(s *holderStats) bool { return s.authKnown && s.mintEnabled },
			describe: func(*holderStats) string {
				return "mint authority live; supply can be inflated at will"
			},
		},
		{
			name: "FREEZE_AUTHORITY", severity: domain.SeverityHigh, points: -10,
			applies: func(s *holderStats) bool { return s.authKnown && s.freezeEnabled },
			describe: func(*holderStats) string {
				return "freeze authority live; holder accounts can be frozen"
			},
		},
		{
			name: "VERY_YOUNG_TOKEN", severity: domain.SeverityMedium, points: -5,
			applies: func(s *holderStats) bool { return s.marketKnown && s.ageMinutes < d.cfg.YoungTokenMinutes },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("token is only %.0f minutes old", s.ageMinutes)
			},
		},
		{
			name: "ESTABLISHED_TOKEN", severity: domain.SeverityLow, points: 3,
			applies: func(s *holderStats) bool { return s.marketKnown && s.ageMinutes > d.cfg.MatureTokenMinutes },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("token has survived %.0f minutes", s.ageMinutes)
			},
		},
		{
			name: "NO_SOCIALS", severity: domain.SeverityLow, points: -5,
			applies: func(s *holderStats) bool { return s.marketKnown && !s.hasSocials },
			describe: func(*holderStats) string {
				return "no social links published"
			},
		},
		{
			name: "HAS_SOCIALS", severity: domain.SeverityLow, points: 3,
			applies: func(s *holderStats) bool { return s.marketKnown && s.hasSocials },
			describe: func(*holderStats) string {
				return "social links present"
			},
		},
		{
			name: "LOW_LIQUIDITY", severity: domain.SeverityHigh, points: -10,
			applies: func(s *holderStats) bool { return s.marketKnown && s.liquidityUSD < d.cfg.LowLiquidityUSD },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("liquidity is only $%.0f", s.liquidityUSD)
			},
		},
		{
			name: "HEALTHY_LIQUIDITY", severity: domain.SeverityLow, points: 5,
			applies: func(s *holderStats) bool { return s.marketKnown && s.liquidityUSD > d.cfg.HealthyLiquidityUSD },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("liquidity at $%.0f", s.liquidityUSD)
			},
		},
		{
			name: "BUNDLED_WALLETS", severity: domain.SeverityHigh, points: -10,
			applies: func(s *holderStats) bool { return s.holdersKnown && s.bundledPairs >= d.cfg.BundledPairCount },
			describe: func(s *holderStats) string {
				return fmt.Sprintf("%d holder pairs have near-identical stakes", s.bundledPairs)
			},
		},
	}
}

// FormatVerdict renders a verdict for display.
func (d *HolderAnalyzer) FormatVerdict(v *domain.HolderSafetyVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Holder safety: %s\n", v.Token)
	fmt.Fprintf(&b, "  Safety: %d/100 [%s]\n", v.SafetyScore, v.RiskCategory)
	fmt.Fprintf(&b, "  Top holder: %.1f%% | Mint auth: %t | Freeze auth: %t | Age: %.0fm\n",
		v.TopHolderPct, v.MintAuthorityEnabled, v.FreezeAuthorityEnabled, v.TokenAgeMinutes)
	for _, f := range v.RedFlags {
		sign := ""
		if f.Points > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "  [%s %s%d] %s\n", f.Severity, sign, f.Points, f.Description)
	}
	return b.String()
}
