// Package domain defines the verdict types produced by the safety detectors.
// Structs here are plain records; the HTTP layer serializes them verbatim.
package domain

// HoneypotRiskLevel classifies a honeypot risk score.
type HoneypotRiskLevel string

const (
	HoneypotSafe   HoneypotRiskLevel = "SAFE"
	HoneypotLow    HoneypotRiskLevel = "LOW_RISK"
	HoneypotMedium HoneypotRiskLevel = "MEDIUM_RISK"
	HoneypotHigh   HoneypotRiskLevel = "HIGH_RISK"
	Honeypot       HoneypotRiskLevel = "HONEYPOT"
)

// HoneypotLevelForScore maps a 0-100 risk score to its level.
func HoneypotLevelForScore(score int) HoneypotRiskLevel {
	switch {
	case score >= 70:
		return Honeypot
	case score >= 50:
		return HoneypotHigh
	case score >= 30:
		return HoneypotMedium
	case score >= 15:
		return HoneypotLow
	default:
		return HoneypotSafe
	}
}

// RiskLevel classifies bundle, wash-trading and sniper scores.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelForScore maps a 0-100 score to its level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskLow
	default:
		return RiskNone
	}
}

// RiskCategory classifies a holder safety score. Higher scores are safer.
type RiskCategory string

const (
	CategorySafe    RiskCategory = "SAFE"
	CategoryCaution RiskCategory = "CAUTION"
	CategoryRisky   RiskCategory = "RISKY"
)

// CategoryForSafetyScore maps a 0-100 safety score to its category.
func CategoryForSafetyScore(score int) RiskCategory {
	switch {
	case score >= 60:
		return CategorySafe
	case score >= 40:
		return CategoryCaution
	default:
		return CategoryRisky
	}
}

// OverallRisk classifies the combined composite score.
type OverallRisk string

const (
	OverallLow      OverallRisk = "LOW"
	OverallMedium   OverallRisk = "MEDIUM"
	OverallHigh     OverallRisk = "HIGH"
	OverallCritical OverallRisk = "CRITICAL"
)

// OverallRiskForScore maps a combined 0-100 score to overall risk.
// A confirmed honeypot is CRITICAL regardless of the combined score.
func OverallRiskForScore(score int, isHoneypot bool) OverallRisk {
	switch {
	case isHoneypot || score >= 70:
		return OverallCritical
	case score >= 50:
		return OverallHigh
	case score >= 30:
		return OverallMedium
	default:
		return OverallLow
	}
}

// Severity ranks a red flag.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SuspicionLevel ranks a wallet cluster.
type SuspicionLevel string

const (
	SuspicionLow    SuspicionLevel = "LOW"
	SuspicionMedium SuspicionLevel = "MEDIUM"
	SuspicionHigh   SuspicionLevel = "HIGH"
)

// suspicionRank orders suspicion levels for sorting.
var suspicionRank = map[SuspicionLevel]int{
	SuspicionLow:    0,
	SuspicionMedium: 1,
	SuspicionHigh:   2,
}

// SuspicionRank returns a sortable rank for a suspicion level.
func SuspicionRank(l SuspicionLevel) int {
	return suspicionRank[l]
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
