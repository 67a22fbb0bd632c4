package domain

import "time"

// InsiderFlag marks one suspicious trait of an early buyer.
type InsiderFlag string

const (
	FlagBundled     InsiderFlag = "BUNDLED"
	FlagNewWallet   InsiderFlag = "NEW_WALLET"
	FlagEarlyBuyer  InsiderFlag = "EARLY_BUYER"
	FlagLargeHolder InsiderFlag = "LARGE_HOLDER"
)

// BuyerRecord is one of the earliest buyers of a token, optionally enriched
// with funding and wallet-age data.
type BuyerRecord struct {
	Address            string    `json:"address"`
	BuyAmount          float64   `json:"buyAmount"`
	BuyBlock           int64     `json:"buyBlock"`
	BuyTimestamp       time.Time `json:"buyTimestamp"`
	PercentageOfSupply float64   `json:"percentageOfSupply"`

	// FundingSource is the sender of the wallet's first incoming native
	// transfer. Empty when enrichment failed or found nothing.
	FundingSource string  `json:"fundingSource,omitempty"`
	WalletAgeDays float64 `json:"walletAgeDays,omitempty"`
	IsNewWallet   bool    `json:"isNewWallet"`

	// Enriched is false when the per-wallet enrichment calls failed; such
	// buyers are excluded from funding-source clustering.
	Enriched bool `json:"enriched"`
}

// BundleCluster groups buyers that share a funding source.
type BundleCluster struct {
	Wallets            []string       `json:"wallets"`
	FundingSource      string         `json:"fundingSource"`
	TotalBought        float64        `json:"totalBought"`
	PercentageOfSupply float64        `json:"percentageOfSupply"`
	BlockRange         [2]int64       `json:"blockRange"`
	SuspicionLevel     SuspicionLevel `json:"suspicionLevel"`
	Reason             string         `json:"reason"`
}

// InsiderProfile scores one early buyer's insider characteristics.
type InsiderProfile struct {
	Address         string        `json:"address"`
	Flags           []InsiderFlag `json:"flags"`
	SuspicionScore  int           `json:"suspicionScore"`
	FirstBuyBlock   int64         `json:"firstBuyBlock"`
	PercentageHeld  float64       `json:"percentageHeld"`
	IsLikelyDev     bool          `json:"isLikelyDev"`
	BuyWithinBlocks int64         `json:"buyWithinBlocks"`
}

// BundleVerdict is the result of first-buyer clustering analysis.
type BundleVerdict struct {
	Token string `json:"token"`

	BundleScore int       `json:"bundleScore"`
	RiskLevel   RiskLevel `json:"riskLevel"`

	Clusters []BundleCluster  `json:"clusters"`
	Insiders []InsiderProfile `json:"insiders"`

	SameBlockBuys     int      `json:"sameBlockBuys"`
	SameFundingSource int      `json:"sameFundingSource"`
	NewWalletBuys     int      `json:"newWalletBuys"`
	CoordBlockRange   [2]int64 `json:"coordBlockRange"`

	RedFlags []string `json:"redFlags"`
	Warnings []string `json:"warnings"`

	FirstBuyersAnalyzed int       `json:"firstBuyersAnalyzed"`
	AnalyzedAt          time.Time `json:"analyzedAt"`
	Cached              bool      `json:"cached"`
}
