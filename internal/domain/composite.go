package domain

import "time"

// DetectorVerdict is the shared contract of the wash-trading and sniper
// detectors: a 0-100 score, a risk level, and a warnings list.
type DetectorVerdict struct {
	Token      string    `json:"token"`
	Score      int       `json:"score"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	Warnings   []string  `json:"warnings"`
	AnalyzedAt time.Time `json:"analyzedAt"`
	Cached     bool      `json:"cached"`
}

// CompositeVerdict combines all detector scores into one weighted verdict.
type CompositeVerdict struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol"`

	CombinedRiskScore int         `json:"combinedRiskScore"`
	OverallRisk       OverallRisk `json:"overallRisk"`

	// PerDetectorScores holds the 0-100 score each weighted detector
	// reported (or its neutral default when the detector failed).
	PerDetectorScores map[string]int `json:"perDetectorScores"`

	Honeypot     *HoneypotVerdict     `json:"honeypot,omitempty"`
	Bundle       *BundleVerdict       `json:"bundle,omitempty"`
	WashTrading  *DetectorVerdict     `json:"washTrading,omitempty"`
	Sniper       *DetectorVerdict     `json:"sniper,omitempty"`
	HolderSafety *HolderSafetyVerdict `json:"holderSafety,omitempty"`

	Warnings       []string `json:"warnings"`
	Recommendation string   `json:"recommendation"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

// IsHoneypot reports whether the honeypot detector confirmed the token.
func (v *CompositeVerdict) IsHoneypot() bool {
	return v.Honeypot != nil && v.Honeypot.IsHoneypot
}
