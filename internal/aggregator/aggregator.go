// Package aggregator fans out to every safety detector concurrently and
// combines their scores into one weighted composite verdict.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/detector"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/observability"
)

// Config holds the aggregator's weights and limits. Weights are the fixed
// reference split over the four scored detectors; the holder analyzer runs
// alongside and contributes flags, not weighted score.
type Config struct {
	HoneypotWeight  float64
	WashTradeWeight float64
	BundleWeight    float64
	SniperWeight    float64

	// DetectTimeout bounds one full fan-out. A detector that cannot finish
	// degrades to its neutral score instead of blocking the join.
	DetectTimeout time.Duration

	// TopWarnings caps how many warnings each detector contributes to the
	// merged list.
	TopWarnings int

	// BatchSize and BatchDelay bound batch analysis to respect upstream
	// rate limits.
	BatchSize  int
	BatchDelay time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		HoneypotWeight:  0.35,
		WashTradeWeight: 0.25,
		BundleWeight:    0.20,
		SniperWeight:    0.20,
		DetectTimeout:   45 * time.Second,
		TopWarnings:     3,
		BatchSize:       3,
		BatchDelay:      500 * time.Millisecond,
	}
}

// Aggregator owns one instance of each detector.
type Aggregator struct {
	honeypot  *detector.HoneypotDetector
	bundle    *detector.BundleDetector
	holders   *detector.HolderAnalyzer
	washTrade *detector.WashTradeDetector
	sniper    *detector.SniperDetector

	cfg    Config
	logger *log.Logger
	now    func() time.Time
}

// Options collects the detectors an Aggregator coordinates.
type Options struct {
	Honeypot  *detector.HoneypotDetector
	Bundle    *detector.BundleDetector
	Holders   *detector.HolderAnalyzer
	WashTrade *detector.WashTradeDetector
	Sniper    *detector.SniperDetector
	Config    Config
	Logger    *log.Logger
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{
		honeypot:  opts.Honeypot,
		bundle:    opts.Bundle,
		holders:   opts.Holders,
		washTrade: opts.WashTrade,
		sniper:    opts.Sniper,
		cfg:       opts.Config,
		logger:    logger,
		now:       time.Now,
	}
}

// NewFromProvider wires an Aggregator with default-configured detectors
// over one provider.
func NewFromProvider(provider chain.Provider, logger *log.Logger) *Aggregator {
	return New(Options{
		Honeypot:  detector.NewHoneypotDetector(provider, detector.DefaultHoneypotConfig(), logger),
		Bundle:    detector.NewBundleDetector(provider, detector.DefaultBundleConfig(), logger),
		Holders:   detector.NewHolderAnalyzer(provider, detector.DefaultHolderConfig(), logger),
		WashTrade: detector.NewWashTradeDetector(provider, detector.DefaultWashTradeConfig(), logger),
		Sniper:    detector.NewSniperDetector(provider, detector.DefaultSniperConfig(), logger),
		Config:    DefaultConfig(),
		Logger:    logger,
	})
}

// Honeypot exposes the honeypot detector for cached reads and formatting.
func (a *Aggregator) Honeypot() *detector.HoneypotDetector { return a.honeypot }

// Bundle exposes the bundle detector.
func (a *Aggregator) Bundle() *detector.BundleDetector { return a.bundle }

// Holders exposes the holder analyzer.
func (a *Aggregator) Holders() *detector.HolderAnalyzer { return a.holders }

// WashTrade exposes the wash-trading detector.
func (a *Aggregator) WashTrade() *detector.WashTradeDetector { return a.washTrade }

// Sniper exposes the sniper detector.
func (a *Aggregator) Sniper() *detector.SniperDetector { return a.sniper }

// ClearCaches drops every detector's cached verdicts.
func (a *Aggregator) ClearCaches() {
	a.honeypot.ClearCache()
	a.bundle.ClearCache()
	a.holders.ClearCache()
	a.washTrade.ClearCache()
	a.sniper.ClearCache()
}

// AnalyzeFull runs all detectors concurrently and joins them into one
// composite verdict. A failed detector contributes its neutral score and a
// warning; only synchronously-invalid addresses return an error.
func (a *Aggregator) AnalyzeFull(ctx context.Context, token string) (*domain.CompositeVerdict, error) {
	if err := chain.ValidateAddress(token); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.DetectTimeout)
	defer cancel()

	v := &domain.CompositeVerdict{
		Token:             token,
		Symbol:            "UNKNOWN",
		PerDetectorScores: make(map[string]int),
		AnalyzedAt:        a.now().UTC(),
	}

	var (
		wg        sync.WaitGroup
		hpErr     error
		bundleErr error
		holdErr   error
		washErr   error
		sniperErr error
	)
	wg.Add(5)
	go func() {
		defer wg.Done()
		v.Honeypot, hpErr = a.honeypot.Detect(runCtx, token)
	}()
	go func() {
		defer wg.Done()
		v.Bundle, bundleErr = a.bundle.Detect(runCtx, token)
	}()
	go func() {
		defer wg.Done()
		v.HolderSafety, holdErr = a.holders.Detect(runCtx, token)
	}()
	go func() {
		defer wg.Done()
		v.WashTrading, washErr = a.washTrade.Detect(runCtx, token)
	}()
	go func() {
		defer wg.Done()
		v.Sniper, sniperErr = a.sniper.Detect(runCtx, token)
	}()
	wg.Wait()

	// Neutral-score substitution keeps one failed detector from failing
	// the composite.
	hpScore, isHoneypot := 0, false
	if hpErr != nil {
		a.logger.Printf("[aggregator] %s: honeypot detector failed: %v", token, hpErr)
		v.Warnings = append(v.Warnings, "honeypot detector unavailable; neutral score substituted")
	} else {
		hpScore = v.Honeypot.RiskScore
		isHoneypot = v.Honeypot.IsHoneypot
		if v.Honeypot.Symbol != "" {
			v.Symbol = v.Honeypot.Symbol
		}
		v.Warnings = append(v.Warnings, topN(v.Honeypot.Warnings, a.cfg.TopWarnings)...)
	}

	washScore := 0
	if washErr != nil {
		a.logger.Printf("[aggregator] %s: wash-trade detector failed: %v", token, washErr)
		v.Warnings = append(v.Warnings, "wash-trade detector unavailable; neutral score substituted")
	} else {
		washScore = v.WashTrading.Score
		v.Warnings = append(v.Warnings, topN(v.WashTrading.Warnings, a.cfg.TopWarnings)...)
	}

	bundleScore := 0
	if bundleErr != nil {
		a.logger.Printf("[aggregator] %s: bundle detector failed: %v", token, bundleErr)
		v.Warnings = append(v.Warnings, "bundle detector unavailable; neutral score substituted")
	} else {
		bundleScore = v.Bundle.BundleScore
		v.Warnings = append(v.Warnings, topN(v.Bundle.RedFlags, a.cfg.TopWarnings)...)
	}

	sniperScore := 0
	if sniperErr != nil {
		a.logger.Printf("[aggregator] %s: sniper detector failed: %v", token, sniperErr)
		v.Warnings = append(v.Warnings, "sniper detector unavailable; neutral score substituted")
	} else {
		sniperScore = v.Sniper.Score
		v.Warnings = append(v.Warnings, topN(v.Sniper.Warnings, a.cfg.TopWarnings)...)
	}

	if holdErr != nil {
		a.logger.Printf("[aggregator] %s: holder analyzer failed: %v", token, holdErr)
		v.Warnings = append(v.Warnings, "holder analyzer unavailable")
	} else {
		for _, f := range v.HolderSafety.RedFlags {
			if f.Severity == domain.SeverityHigh || f.Severity == domain.SeverityCritical {
				v.Warnings = append(v.Warnings, f.Description)
			}
		}
	}

	v.PerDetectorScores[detector.NameHoneypot] = hpScore
	v.PerDetectorScores[detector.NameWashTrade] = washScore
	v.PerDetectorScores[detector.NameBundle] = bundleScore
	v.PerDetectorScores[detector.NameSniper] = sniperScore

	combined := a.cfg.HoneypotWeight*float64(hpScore) +
		a.cfg.WashTradeWeight*float64(washScore) +
		a.cfg.BundleWeight*float64(bundleScore) +
		a.cfg.SniperWeight*float64(sniperScore)
	v.CombinedRiskScore = domain.ClampScore(int(math.Round(combined)))
	v.OverallRisk = domain.OverallRiskForScore(v.CombinedRiskScore, isHoneypot)
	v.Recommendation = recommendation(v.OverallRisk, isHoneypot)

	observability.RecordCompositeVerdict(string(v.OverallRisk), isHoneypot)
	return v, nil
}

// recommendation maps overall risk to the advice string consumers display.
func recommendation(risk domain.OverallRisk, isHoneypot bool) string {
	switch {
	case isHoneypot:
		return "DO NOT BUY: sell simulation indicates a honeypot"
	case risk == domain.OverallCritical:
		return "AVOID: multiple critical risk signals"
	case risk == domain.OverallHigh:
		return "AVOID: risk outweighs any edge"
	case risk == domain.OverallMedium:
		return "CAUTION: size small and take profits early"
	default:
		return "ANALYZE: no major red flags; verify liquidity and socials before entry"
	}
}

// topN returns at most n leading entries of warnings.
func topN(warnings []string, n int) []string {
	if len(warnings) <= n {
		return warnings
	}
	return warnings[:n]
}

// FormatVerdict renders a composite verdict for display.
func (a *Aggregator) FormatVerdict(v *domain.CompositeVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Composite risk: %s (%s)\n", v.Symbol, v.Token)
	fmt.Fprintf(&b, "  Combined: %d/100 [%s]\n", v.CombinedRiskScore, v.OverallRisk)
	fmt.Fprintf(&b, "  honeypot=%d washtrade=%d bundle=%d sniper=%d\n",
		v.PerDetectorScores[detector.NameHoneypot],
		v.PerDetectorScores[detector.NameWashTrade],
		v.PerDetectorScores[detector.NameBundle],
		v.PerDetectorScores[detector.NameSniper])
	if v.HolderSafety != nil {
		fmt.Fprintf(&b, "  holder safety: %d/100 [%s]\n", v.HolderSafety.SafetyScore, v.HolderSafety.RiskCategory)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", w)
	}
	fmt.Fprintf(&b, "  => %s\n", v.Recommendation)
	return b.String()
}
