package detector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"solana-safety-engine/internal/cache"
	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/observability"
)

// WashTradeConfig holds the wash-trading detector's tunables.
type WashTradeConfig struct {
	// VolumeLiquidityFactor flags markets whose hourly volume exceeds this
	// multiple of pool liquidity.
	VolumeLiquidityFactor float64
	// MirrorTolerance is the max relative buy/sell count asymmetry for the
	// "mirrored flow" signal.
	MirrorTolerance float64
	// MirrorMinTxns gates mirrored-flow on a minimum transaction count.
	MirrorMinTxns int
	// MicroTradeUSD flags churn made of dust-sized trades.
	MicroTradeUSD float64
	// MicroTradeMinTxns gates the micro-trade signal.
	MicroTradeMinTxns int
	// BurstShare flags tokens whose 24h volume is concentrated in the last
	// hour.
	BurstShare float64

	CallTimeout time.Duration
	CacheTTL    time.Duration
}

// DefaultWashTradeConfig returns the reference configuration.
func DefaultWashTradeConfig() WashTradeConfig {
	return WashTradeConfig{
		VolumeLiquidityFactor: 5,
		MirrorTolerance:       0.10,
		MirrorMinTxns:         20,
		MicroTradeUSD:         50,
		MicroTradeMinTxns:     100,
		BurstShare:            0.5,
		CallTimeout:           15 * time.Second,
		CacheTTL:              5 * time.Minute,
	}
}

// WashTradeDetector flags self- or circular trading meant to inflate
// apparent volume. It reads only the market snapshot.
type WashTradeDetector struct {
	provider chain.Provider
	cfg      WashTradeConfig
	cache    *cache.TTL[*domain.DetectorVerdict]
	flight   *cache.Group[*domain.DetectorVerdict]
	logger   *log.Logger
	now      func() time.Time
}

// NewWashTradeDetector creates a wash-trading detector.
func NewWashTradeDetector(provider chain.Provider, cfg WashTradeConfig, logger *log.Logger) *WashTradeDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &WashTradeDetector{
		provider: provider,
		cfg:      cfg,
		cache:    cache.NewTTL[*domain.DetectorVerdict](cfg.CacheTTL),
		flight:   cache.NewGroup[*domain.DetectorVerdict](),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the detector's clock for deterministic tests.
func (d *WashTradeDetector) WithClock(now func() time.Time) *WashTradeDetector {
	d.now = now
	d.cache.WithClock(now)
	return d
}

// washStats is the input the wash-trade rule table reads.
type washStats struct {
	liquidityUSD float64
	volume1h     float64
	volume24h    float64
	buys         int
	sells        int
}

func (s *washStats) totalTxns() int { return s.buys + s.sells }

// Detect scores the token's recent flow for wash-trading signals.
func (d *WashTradeDetector) Detect(ctx context.Context, token string) (*domain.DetectorVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	if v, ok := d.cache.Get(token); ok {
		observability.RecordCacheHit(NameWashTrade)
		return cachedDetector(v), nil
	}
	observability.RecordCacheMiss(NameWashTrade)

	return d.flight.Do(token, func() (*domain.DetectorVerdict, error) {
		if v, ok := d.cache.Get(token); ok {
			return cachedDetector(v), nil
		}

		start := d.now()
		v := d.analyze(ctx, token)
		observability.RecordDetectorRun(NameWashTrade, "ok", time.Since(start).Seconds())

		d.cache.Set(token, v)
		return v, nil
	})
}

// Cached returns the cached verdict for token, or nil. No I/O.
func (d *WashTradeDetector) Cached(token string) *domain.DetectorVerdict {
	v, ok := d.cache.Get(token)
	if !ok {
		return nil
	}
	return cachedDetector(v)
}

// ClearCache drops all cached verdicts.
func (d *WashTradeDetector) ClearCache() {
	d.cache.Clear()
}

func cachedDetector(v *domain.DetectorVerdict) *domain.DetectorVerdict {
	cp := *v
	cp.Cached = true
	return &cp
}

func (d *WashTradeDetector) analyze(ctx context.Context, token string) *domain.DetectorVerdict {
	v := &domain.DetectorVerdict{
		Token:      token,
		RiskLevel:  domain.RiskNone,
		AnalyzedAt: d.now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	snap, err := d.provider.GetMarketSnapshot(callCtx, token)
	cancel()
	if err != nil {
		d.logger.Printf("[washtrade] %s: market data unavailable: %v", token, err)
		v.Warnings = append(v.Warnings, "market data unavailable; wash-trade check skipped")
		return v
	}

	stats := &washStats{
		liquidityUSD: snap.LiquidityUSD,
		volume1h:     snap.VolumeUSD1h,
		volume24h:    snap.VolumeUSD24h,
		buys:         snap.BuyTx1h,
		sells:        snap.SellTx1h,
	}

	points, flags := applyRules(d.rules(), stats)
	v.Score = domain.ClampScore(points)
	v.RiskLevel = domain.RiskLevelForScore(v.Score)
	v.Warnings = append(v.Warnings, flagMessages(flags)...)
	return v
}

// rules is the wash-trading point table.
func (d *WashTradeDetector) rules() []rule[*washStats] {
	return []rule[*washStats]{
		{
			name: "VOLUME_LIQUIDITY_MISMATCH", severity: domain.SeverityHigh, points: 40,
			applies: func(s *washStats) bool {
				return s.liquidityUSD > 0 && s.volume1h > d.cfg.VolumeLiquidityFactor*s.liquidityUSD
			},
			describe: func(s *washStats) string {
				return fmt.Sprintf("1h volume $%.0f is %.1fx pool liquidity", s.volume1h, s.volume1h/s.liquidityUSD)
			},
		},
		{
			name: "MIRRORED_FLOW", severity: domain.SeverityMedium, points: 30,
			applies: func(s *washStats) bool {
				total := s.totalTxns()
				if total < d.cfg.MirrorMinTxns {
					return false
				}
				diff := s.buys - s.sells
				if diff < 0 {
					diff = -diff
				}
				return float64(diff) <= d.cfg.MirrorTolerance*float64(total)
			},
			describe: func(s *washStats) string {
				return fmt.Sprintf("buy/sell counts nearly mirrored (%d/%d)", s.buys, s.sells)
			},
		},
		{
			name: "MICRO_TRADE_CHURN", severity: domain.SeverityMedium, points: 20,
			applies: func(s *washStats) bool {
				total := s.totalTxns()
				return total >= d.cfg.MicroTradeMinTxns && s.volume1h/float64(total) < d.cfg.MicroTradeUSD
			},
			describe: func(s *washStats) string {
				return fmt.Sprintf("%d transactions averaging under $%.0f each", s.totalTxns(), d.cfg.MicroTradeUSD)
			},
		},
		{
			name: "VOLUME_BURST", severity: domain.SeverityLow, points: 10,
			applies: func(s *washStats) bool {
				return s.volume24h > 0 && s.volume1h > d.cfg.BurstShare*s.volume24h
			},
			describe: func(s *washStats) string {
				return fmt.Sprintf("%.0f%% of 24h volume happened in the last hour", s.volume1h/s.volume24h*100)
			},
		},
	}
}

// FormatVerdict renders a verdict for display.
func (d *WashTradeDetector) FormatVerdict(v *domain.DetectorVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wash-trade check: %s\n", v.Token)
	fmt.Fprintf(&b, "  Score: %d/100 [%s]\n", v.Score, v.RiskLevel)
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", w)
	}
	return b.String()
}
