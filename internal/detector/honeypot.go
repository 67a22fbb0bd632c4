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

// HoneypotConfig holds the honeypot detector's tunables. The tax split and
// the LP-lock liquidity threshold are documented heuristics with no
// authoritative on-chain source; treat them as risk indicators only.
type HoneypotConfig struct {
	// ProbeLamports is the native amount simulated on the buy leg.
	ProbeLamports uint64
	// QuoteDelay separates the two quote calls to respect upstream rate
	// limits. The sell leg depends on the buy leg's output.
	QuoteDelay time.Duration
	// BuyTaxShare and RoundTripShareCap split the estimated round-trip tax
	// into buy and sell components: buyTax = min(BuyTaxShare*estTax,
	// RoundTripShareCap*roundTripLoss). Buy tax is usually the smaller part.
	BuyTaxShare       float64
	RoundTripShareCap float64
	// LPLockLiquidityUSD: pools above this liquidity are treated as locked.
	// An approximation, not a lock-contract check.
	LPLockLiquidityUSD float64
	// MinRecentTxns is the 1h transaction volume above which zero sells is
	// treated as "sells blocked" rather than "no activity".
	MinRecentTxns int
	// LowSellRatio flags markets where sells are a suspiciously small share
	// of recent transactions.
	LowSellRatio float64

	CallTimeout time.Duration
	CacheTTL    time.Duration
}

// DefaultHoneypotConfig returns the reference configuration.
func DefaultHoneypotConfig() HoneypotConfig {
	return HoneypotConfig{
		ProbeLamports:      100_000_000, // 0.1 SOL
		QuoteDelay:         250 * time.Millisecond,
		BuyTaxShare:        0.3,
		RoundTripShareCap:  0.2,
		LPLockLiquidityUSD: 25_000,
		MinRecentTxns:      10,
		LowSellRatio:       0.10,
		CallTimeout:        15 * time.Second,
		CacheTTL:           3 * time.Minute,
	}
}

// HoneypotDetector simulates a buy-then-sell round trip to estimate sell
// tax and sellability.
type HoneypotDetector struct {
	provider chain.Provider
	cfg      HoneypotConfig
	cache    *cache.TTL[*domain.HoneypotVerdict]
	flight   *cache.Group[*domain.HoneypotVerdict]
	logger   *log.Logger
	now      func() time.Time
}

// NewHoneypotDetector creates a honeypot detector.
func NewHoneypotDetector(provider chain.Provider, cfg HoneypotConfig, logger *log.Logger) *HoneypotDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &HoneypotDetector{
		provider: provider,
		cfg:      cfg,
		cache:    cache.NewTTL[*domain.HoneypotVerdict](cfg.CacheTTL),
		flight:   cache.NewGroup[*domain.HoneypotVerdict](),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the detector's clock for deterministic tests.
func (d *HoneypotDetector) WithClock(now func() time.Time) *HoneypotDetector {
	d.now = now
	d.cache.WithClock(now)
	return d
}

// Detect runs the round-trip simulation for token, serving from cache
// within the TTL. Invalid addresses are rejected before any I/O; provider
// failures degrade to conservative fields instead of errors.
func (d *HoneypotDetector) Detect(ctx context.Context, token string) (*domain.HoneypotVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	if v, ok := d.cache.Get(token); ok {
		observability.RecordCacheHit(NameHoneypot)
		return cachedHoneypot(v), nil
	}
	observability.RecordCacheMiss(NameHoneypot)

	return d.flight.Do(token, func() (*domain.HoneypotVerdict, error) {
		// A waiter that lost the race may find the winner's entry.
		if v, ok := d.cache.Get(token); ok {
			return cachedHoneypot(v), nil
		}

		start := d.now()
		v := d.analyze(ctx, token)
		observability.RecordDetectorRun(NameHoneypot, "ok", time.Since(start).Seconds())

		d.cache.Set(token, v)
		return v, nil
	})
}

// Cached returns the cached verdict for token, or nil. No I/O.
func (d *HoneypotDetector) Cached(token string) *domain.HoneypotVerdict {
	v, ok := d.cache.Get(token)
	if !ok {
		return nil
	}
	return cachedHoneypot(v)
}

// ClearCache drops all cached verdicts.
func (d *HoneypotDetector) ClearCache() {
	d.cache.Clear()
}

func cachedHoneypot(v *domain.HoneypotVerdict) *domain.HoneypotVerdict {
	cp := *v
	cp.Cached = true
	return &cp
}

// analyze performs the full probe. It always returns a verdict: provider
// failures map to the most conservative applicable field.
func (d *HoneypotDetector) analyze(ctx context.Context, token string) *domain.HoneypotVerdict {
	v := &domain.HoneypotVerdict{
		Token:     token,
		Symbol:    "UNKNOWN",
		CanSell:   true,
		CheckedAt: d.now().UTC(),
	}

	// Context lookups have no data dependency on the quote legs and run
	// concurrently with them.
	var (
		wg      sync.WaitGroup
		meta    *chain.TokenMetadata
		auth    *chain.TokenAuthorities
		snap    *chain.MarketSnapshot
		holders []chain.Holder
		authErr error
		snapErr error
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		meta, _ = d.provider.GetTokenMetadata(callCtx, token)
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
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		holders, _ = d.provider.GetTopHolders(callCtx, token)
	}()

	d.simulateRoundTrip(ctx, token, v)
	wg.Wait()

	if meta != nil {
		v.Symbol = meta.Symbol
	}

	if authErr != nil {
		v.Warnings = append(v.Warnings, "authority data unavailable")
	} else if auth != nil && auth.FreezeEnabled {
		// A live freeze authority lets the issuer blacklist holders or
		// pause transfers outright.
		v.HasBlacklist = true
		v.HasTradingPause = true
	}

	if snapErr != nil {
		v.Warnings = append(v.Warnings, "market data unavailable; LP lock status unknown")
	} else if snap != nil {
		v.LPLocked = snap.LiquidityUSD >= d.cfg.LPLockLiquidityUSD
		v.BuyTxCount = snap.BuyTx1h
		v.SellTxCount = snap.SellTx1h
		if total := snap.BuyTx1h + snap.SellTx1h; total > 0 {
			v.SellRatio = float64(snap.SellTx1h) / float64(total)
		}
	}

	if len(holders) > 0 {
		v.LPOwnerPct = holders[0].Percentage
	}

	d.score(v)
	return v
}

// simulateRoundTrip fills the tax and price-impact fields from a buy quote
// followed by a sell quote of the buy's output.
func (d *HoneypotDetector) simulateRoundTrip(ctx context.Context, token string, v *domain.HoneypotVerdict) {
	buyCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	buy, err := d.provider.GetSwapQuote(buyCtx, chain.WSOLMint, token, d.cfg.ProbeLamports)
	cancel()
	if err != nil || buy.OutputAmount == 0 {
		// No buy route: worst case, not an error.
		d.logger.Printf("[honeypot] %s: buy probe failed: %v", token, err)
		v.CanSell = false
		v.SellTax = 100
		v.Warnings = append(v.Warnings, "no route to buy token; probe could not acquire it")
		return
	}
	v.BuyPriceImpact = buy.PriceImpactPct
	v.Samples = append(v.Samples, domain.SwapQuoteSample{
		Direction:      domain.SwapBuy,
		InputAmount:    d.cfg.ProbeLamports,
		OutputAmount:   buy.OutputAmount,
		PriceImpactPct: buy.PriceImpactPct,
	})

	select {
	case <-ctx.Done():
		v.CanSell = false
		v.SellTax = 100
		v.Warnings = append(v.Warnings, "sell simulation aborted before completion")
		return
	case <-time.After(d.cfg.QuoteDelay):
	}

	sellCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	sell, err := d.provider.GetSwapQuote(sellCtx, token, chain.WSOLMint, buy.OutputAmount)
	cancel()
	if err != nil {
		// The classic honeypot signature: the token can be bought but a
		// sell route does not exist (or cannot be reached; assume the
		// worst either way).
		d.logger.Printf("[honeypot] %s: sell probe failed: %v", token, err)
		v.CanSell = false
		v.SellTax = 100
		v.Warnings = append(v.Warnings, "no route to sell token back; classic honeypot signature")
		return
	}
	v.SellPriceImpact = sell.PriceImpactPct
	v.PriceImpactDiff = math.Abs(sell.PriceImpactPct - buy.PriceImpactPct)
	v.Samples = append(v.Samples, domain.SwapQuoteSample{
		Direction:      domain.SwapSell,
		InputAmount:    buy.OutputAmount,
		OutputAmount:   sell.OutputAmount,
		PriceImpactPct: sell.PriceImpactPct,
	})

	// Round-trip loss minus both price impacts isolates the tax estimate.
	probe := float64(d.cfg.ProbeLamports)
	lossPct := (probe - float64(sell.OutputAmount)) / probe * 100
	if lossPct < 0 {
		lossPct = 0
	}
	estTax := lossPct - (buy.PriceImpactPct + sell.PriceImpactPct)
	if estTax < 0 {
		estTax = 0
	}

	v.BuyTax = math.Min(d.cfg.BuyTaxShare*estTax, d.cfg.RoundTripShareCap*lossPct)
	v.SellTax = estTax - v.BuyTax
}

// rules is the honeypot point table.
func (d *HoneypotDetector) rules() []rule[*domain.HoneypotVerdict] {
	return []rule[*domain.HoneypotVerdict]{
		{
			name: "EXTREME_SELL_TAX", severity: domain.SeverityCritical, points: 50,
			applies: func(v *domain.HoneypotVerdict) bool { return v.SellTax >= 50 },
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("estimated sell tax %.1f%% (extreme)", v.SellTax)
			},
		},
		{
			name: "HIGH_SELL_TAX", severity: domain.SeverityHigh, points: 25,
			applies: func(v *domain.HoneypotVerdict) bool { return v.SellTax > 10 && v.SellTax < 50 },
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("estimated sell tax %.1f%%", v.SellTax)
			},
		},
		{
			name: "HIGH_BUY_TAX", severity: domain.SeverityMedium, points: 10,
			applies: func(v *domain.HoneypotVerdict) bool { return v.BuyTax > 10 },
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("estimated buy tax %.1f%%", v.BuyTax)
			},
		},
		{
			name: "ASYMMETRIC_IMPACT", severity: domain.SeverityMedium, points: 15,
			applies: func(v *domain.HoneypotVerdict) bool { return v.PriceImpactDiff > 20 },
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("sell impact exceeds buy impact by %.1f points", v.PriceImpactDiff)
			},
		},
		{
			name: "FREEZE_AUTHORITY", severity: domain.SeverityHigh, points: 15,
			applies: func(v *domain.HoneypotVerdict) bool { return v.HasBlacklist },
			describe: func(*domain.HoneypotVerdict) string {
				return "freeze authority live; issuer can blacklist or pause transfers"
			},
		},
		{
			name: "LP_UNLOCKED_CONCENTRATED", severity: domain.SeverityHigh, points: 20,
			applies: func(v *domain.HoneypotVerdict) bool { return !v.LPLocked && v.LPOwnerPct > 50 },
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("LP not locked and top account holds %.1f%% of supply", v.LPOwnerPct)
			},
		},
		{
			name: "LP_UNLOCKED", severity: domain.SeverityMedium, points: 10,
			applies: func(v *domain.HoneypotVerdict) bool { return !v.LPLocked && v.LPOwnerPct <= 50 },
			describe: func(*domain.HoneypotVerdict) string {
				return "LP not locked (liquidity below lock-estimate threshold)"
			},
		},
		{
			name: "NO_RECENT_SELLS", severity: domain.SeverityCritical, points: 30,
			applies: func(v *domain.HoneypotVerdict) bool {
				return v.SellTxCount == 0 && v.BuyTxCount+v.SellTxCount >= d.cfg.MinRecentTxns
			},
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("zero sells despite %d recent transactions", v.BuyTxCount)
			},
		},
		{
			name: "LOW_SELL_RATIO", severity: domain.SeverityHigh, points: 15,
			applies: func(v *domain.HoneypotVerdict) bool {
				return v.BuyTxCount+v.SellTxCount >= d.cfg.MinRecentTxns && v.SellRatio < d.cfg.LowSellRatio
			},
			describe: func(v *domain.HoneypotVerdict) string {
				return fmt.Sprintf("only %.0f%% of recent transactions are sells", v.SellRatio*100)
			},
		},
	}
}

// score fills RiskScore, RiskLevel and rule-derived warnings.
func (d *HoneypotDetector) score(v *domain.HoneypotVerdict) {
	if !v.CanSell {
		v.RiskScore = 100
		v.RiskLevel = domain.Honeypot
		v.IsHoneypot = true
		return
	}

	points, flags := applyRules(d.rules(), v)
	v.RiskScore = domain.ClampScore(points)
	v.RiskLevel = domain.HoneypotLevelForScore(v.RiskScore)
	v.IsHoneypot = v.RiskLevel == domain.Honeypot
	v.Warnings = append(v.Warnings, flagMessages(flags)...)
}

// FormatVerdict renders a verdict for display.
func (d *HoneypotDetector) FormatVerdict(v *domain.HoneypotVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Honeypot check: %s (%s)\n", v.Symbol, v.Token)
	fmt.Fprintf(&b, "  Risk: %d/100 [%s]\n", v.RiskScore, v.RiskLevel)
	fmt.Fprintf(&b, "  Can sell: %t | Buy tax: %.1f%% | Sell tax: %.1f%%\n", v.CanSell, v.BuyTax, v.SellTax)
	fmt.Fprintf(&b, "  LP locked: %t | Sell ratio: %.0f%% (%d buys / %d sells, 1h)\n",
		v.LPLocked, v.SellRatio*100, v.BuyTxCount, v.SellTxCount)
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", w)
	}
	return b.String()
}
