package domain

import "time"

// SwapDirection identifies which leg of the round trip a quote simulated.
type SwapDirection string

const (
	SwapBuy  SwapDirection = "BUY"
	SwapSell SwapDirection = "SELL"
)

// SwapQuoteSample is one simulated trade outcome.
type SwapQuoteSample struct {
	Direction      SwapDirection `json:"direction"`
	InputAmount    uint64        `json:"inputAmount"`
	OutputAmount   uint64        `json:"outputAmount"`
	PriceImpactPct float64       `json:"priceImpactPct"`
}

// HoneypotVerdict is the result of a buy-then-sell round-trip simulation.
type HoneypotVerdict struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol"`

	IsHoneypot bool `json:"isHoneypot"`
	CanSell    bool `json:"canSell"`

	// Tax estimates in percent. Derived from round-trip loss minus the two
	// simulated price impacts; the buy/sell split is a heuristic.
	BuyTax  float64 `json:"buyTax"`
	SellTax float64 `json:"sellTax"`

	BuyPriceImpact  float64 `json:"buyPriceImpact"`
	SellPriceImpact float64 `json:"sellPriceImpact"`
	PriceImpactDiff float64 `json:"priceImpactDiff"`

	// Samples records the simulated legs in execution order. A lone buy
	// sample means the probe acquired the token but could not exit.
	Samples []SwapQuoteSample `json:"samples,omitempty"`

	// Contract authority flags. A live freeze authority lets the issuer
	// blacklist holders or pause transfers.
	HasBlacklist    bool `json:"hasBlacklist"`
	HasTradingPause bool `json:"hasTradingPause"`

	// LP lock is estimated from pool liquidity, not an authoritative
	// lock-contract check.
	LPLocked   bool    `json:"lpLocked"`
	LPOwnerPct float64 `json:"lpOwnerPct"`

	SellTxCount int     `json:"sellTxCount"`
	BuyTxCount  int     `json:"buyTxCount"`
	SellRatio   float64 `json:"sellRatio"`

	RiskScore int               `json:"riskScore"`
	RiskLevel HoneypotRiskLevel `json:"riskLevel"`
	Warnings  []string          `json:"warnings"`

	CheckedAt time.Time `json:"checkedAt"`
	Cached    bool      `json:"cached"`
}
