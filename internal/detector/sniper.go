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

// SniperConfig holds the sniper detector's tunables.
type SniperConfig struct {
	// FirstBuyerCount is how many earliest buyers to retrieve.
	FirstBuyerCount int
	// SnipeBlocks / EarlyBlocks classify entry speed relative to the first
	// observed buy. Sub-SnipeBlocks entries are near-certain automation.
	SnipeBlocks int64
	EarlyBlocks int64
	// SnipePoints / EarlyPoints weight each sniper toward the score.
	SnipePoints int
	EarlyPoints int
	// SnipeCap / EarlyCap bound each component's contribution.
	SnipeCap int
	EarlyCap int

	CallTimeout time.Duration
	CacheTTL    time.Duration
}

// DefaultSniperConfig returns the reference configuration.
func DefaultSniperConfig() SniperConfig {
	return SniperConfig{
		FirstBuyerCount: 50,
		SnipeBlocks:     2,
		EarlyBlocks:     5,
		SnipePoints:     12,
		EarlyPoints:     5,
		SnipeCap:        60,
		EarlyCap:        40,
		CallTimeout:     15 * time.Second,
		CacheTTL:        10 * time.Minute,
	}
}

// SniperDetector counts wallets that bought within the first few blocks of
// trading, the signature of automated snipers.
type SniperDetector struct {
	provider chain.Provider
	cfg      SniperConfig
	cache    *cache.TTL[*domain.DetectorVerdict]
	flight   *cache.Group[*domain.DetectorVerdict]
	logger   *log.Logger
	now      func() time.Time
}

// NewSniperDetector creates a sniper detector.
func NewSniperDetector(provider chain.Provider, cfg SniperConfig, logger *log.Logger) *SniperDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &SniperDetector{
		provider: provider,
		cfg:      cfg,
		cache:    cache.NewTTL[*domain.DetectorVerdict](cfg.CacheTTL),
		flight:   cache.NewGroup[*domain.DetectorVerdict](),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the detector's clock for deterministic tests.
func (d *SniperDetector) WithClock(now func() time.Time) *SniperDetector {
	d.now = now
	d.cache.WithClock(now)
	return d
}

// sniperStats is the input the sniper rule table reads.
type sniperStats struct {
	buyers       int
	snipers      int // entered within SnipeBlocks
	earlyBuyers  int // entered within EarlyBlocks (excluding snipers)
	inFirstBlock int
}

// Detect scores how much of the token's early entry looks automated.
func (d *SniperDetector) Detect(ctx context.Context, token string) (*domain.DetectorVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	if v, ok := d.cache.Get(token); ok {
		observability.RecordCacheHit(NameSniper)
		return cachedDetector(v), nil
	}
	observability.RecordCacheMiss(NameSniper)

	return d.flight.Do(token, func() (*domain.DetectorVerdict, error) {
		if v, ok := d.cache.Get(token); ok {
			return cachedDetector(v), nil
		}

		start := d.now()
		v := d.analyze(ctx, token)
		observability.RecordDetectorRun(NameSniper, "ok", time.Since(start).Seconds())

		d.cache.Set(token, v)
		return v, nil
	})
}

// Cached returns the cached verdict for token, or nil. No I/O.
func (d *SniperDetector) Cached(token string) *domain.DetectorVerdict {
	v, ok := d.cache.Get(token)
	if !ok {
		return nil
	}
	return cachedDetector(v)
}

// ClearCache drops all cached verdicts.
func (d *SniperDetector) ClearCache() {
	d.cache.Clear()
}

func (d *SniperDetector) analyze(ctx context.Context, token string) *domain.DetectorVerdict {
	v := &domain.DetectorVerdict{
		Token:      token,
		RiskLevel:  domain.RiskNone,
		AnalyzedAt: d.now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	buys, err := d.provider.GetFirstBuyers(callCtx, token, d.cfg.FirstBuyerCount)
	cancel()
	if err != nil {
		d.logger.Printf("[sniper] %s: first buyers unavailable: %v", token, err)
		v.Warnings = append(v.Warnings, "first buyer data unavailable; sniper check skipped")
		return v
	}
	if len(buys) == 0 {
		v.Warnings = append(v.Warnings, "no buyers observed yet; nothing to analyze")
		return v
	}

	firstBlock := buys[0].Block
	for _, b := range buys {
		if b.Block < firstBlock {
			firstBlock = b.Block
		}
	}

	stats := &sniperStats{buyers: len(buys)}
	for _, b := range buys {
		offset := b.Block - firstBlock
		switch {
		case offset == 0:
			stats.inFirstBlock++
			stats.snipers++
		case offset <= d.cfg.SnipeBlocks:
			stats.snipers++
		case offset <= d.cfg.EarlyBlocks:
			stats.earlyBuyers++
		}
	}

	v.Score = domain.ClampScore(
		minInt(d.cfg.SnipeCap, d.cfg.SnipePoints*stats.snipers) +
			minInt(d.cfg.EarlyCap, d.cfg.EarlyPoints*stats.earlyBuyers))
	v.RiskLevel = domain.RiskLevelForScore(v.Score)

	_, flags := applyRules(d.rules(), stats)
	v.Warnings = append(v.Warnings, flagMessages(flags)...)
	return v
}

// rules is the sniper warning table; scoring is the capped linear sum above.
func (d *SniperDetector) rules() []rule[*sniperStats] {
	return []rule[*sniperStats]{
		{
			name: "FIRST_BLOCK_SWARM", severity: domain.SeverityCritical, points: 0,
			applies: func(s *sniperStats) bool { return s.inFirstBlock >= 2 },
			describe: func(s *sniperStats) string {
				return fmt.Sprintf("%d wallets bought in the very first block", s.inFirstBlock)
			},
		},
		{
			name: "SNIPER_WAVE", severity: domain.SeverityHigh, points: 0,
			applies: func(s *sniperStats) bool { return s.snipers >= 5 },
			describe: func(s *sniperStats) string {
				return fmt.Sprintf("%d wallets entered within %d blocks of launch", s.snipers, d.cfg.SnipeBlocks)
			},
		},
		{
			name: "SNIPER_MAJORITY", severity: domain.SeverityHigh, points: 0,
			applies: func(s *sniperStats) bool {
				return s.buyers > 0 && float64(s.snipers)/float64(s.buyers) >= 0.5
			},
			describe: func(s *sniperStats) string {
				return fmt.Sprintf("%d of %d first buyers are snipers", s.snipers, s.buyers)
			},
		},
	}
}

// FormatVerdict renders a verdict for display.
func (d *SniperDetector) FormatVerdict(v *domain.DetectorVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sniper check: %s\n", v.Token)
	fmt.Fprintf(&b, "  Score: %d/100 [%s]\n", v.Score, v.RiskLevel)
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", w)
	}
	return b.String()
}
