// Package detector implements the token safety detectors: honeypot
// round-trip simulation, first-buyer bundle clustering, holder distribution
// analysis, and the wash-trading and sniper siblings. Detectors are pure
// functions of the chain data they observe; the per-detector TTL caches
// exist only to bound external call volume.
package detector

import (
	"solana-safety-engine/internal/domain"
)

// Detector names, used for metrics labels and composite score keys.
const (
	NameHoneypot  = "honeypot"
	NameBundle    = "bundle"
	NameHolders   = "holders"
	NameWashTrade = "washtrade"
	NameSniper    = "sniper"
)

// rule is one entry of a detector's additive point table. The same table
// drives scoring, red-flag records, and warning text.
type rule[T any] struct {
	name     string
	severity domain.Severity
	points   int
	applies  func(T) bool
	describe func(T) string
}

// applyRules evaluates a point table against v. It returns the summed
// points and an ordered red flag per applied rule.
func applyRules[T any](rules []rule[T], v T) (int, []domain.RedFlag) {
	total := 0
	var flags []domain.RedFlag
	for _, r := range rules {
		if !r.applies(v) {
			continue
		}
		total += r.points
		flags = append(flags, domain.RedFlag{
			Type:        r.name,
			Description: r.describe(v),
			Severity:    r.severity,
			Points:      r.points,
		})
	}
	return total, flags
}

// flagMessages extracts the description lines of a red flag list.
func flagMessages(flags []domain.RedFlag) []string {
	if len(flags) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(flags))
	for _, f := range flags {
		msgs = append(msgs, f.Description)
	}
	return msgs
}

// minInt returns the smaller of two ints.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
