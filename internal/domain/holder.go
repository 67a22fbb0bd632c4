package domain

import "time"

// RedFlag records one applied scoring delta with its severity and text.
type RedFlag struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Points      int      `json:"points"`
}

// HolderSafetyVerdict scores holder concentration, contract authorities and
// market context. Higher SafetyScore means safer.
type HolderSafetyVerdict struct {
	Token string `json:"token"`

	SafetyScore  int          `json:"safetyScore"`
	RiskCategory RiskCategory `json:"riskCategory"`
	RedFlags     []RedFlag    `json:"redFlags"`

	DevHoldingsPct float64 `json:"devHoldingsPct"`
	TopHolderPct   float64 `json:"topHolderPct"`

	MintAuthorityEnabled   bool `json:"mintAuthorityEnabled"`
	FreezeAuthorityEnabled bool `json:"freezeAuthorityEnabled"`

	TokenAgeMinutes    float64 `json:"tokenAgeMinutes"`
	BundledWalletPairs int     `json:"bundledWalletPairs"`

	AnalyzedAt time.Time `json:"analyzedAt"`
	Cached     bool      `json:"cached"`
}
