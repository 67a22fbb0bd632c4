// Package feed streams freshly launched token mints from chain websocket
// log subscriptions, feeding the analysis pipeline.
package feed

import (
	"regexp"
	"strings"

	"solana-safety-engine/internal/chain"
)

// Program IDs whose logs signal new token launches.
const (
	PumpFunProgram      = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	RaydiumAMMV4Program = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	tokenProgram        = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// launchMarkers are log lines that indicate a token or pool creation.
var launchMarkers = []string{
	"Instruction: Create",
	"Instruction: InitializeMint",
	"initialize2",
}

var base58Pattern = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

// notMints are well-known addresses that appear in launch logs but are
// never the launched mint.
var notMints = map[string]bool{
	PumpFunProgram:      true,
	RaydiumAMMV4Program: true,
	tokenProgram:        true,
	chain.WSOLMint:      true,
	"11111111111111111111111111111111": true,
}

// ExtractLaunchMint returns the launched mint address from transaction
// logs, or "" when the logs do not describe a launch. A line of the form
// "Mint: <address>" wins; otherwise the first plausible address after a
// launch marker is used.
func ExtractLaunchMint(logs []string) string {
	markerAt := -1
	for i, line := range logs {
		for _, marker := range launchMarkers {
			if strings.Contains(line, marker) {
				markerAt = i
				break
			}
		}
		if markerAt >= 0 {
			break
		}
	}
	if markerAt < 0 {
		return ""
	}

	for _, line := range logs {
		if idx := strings.Index(line, "Mint: "); idx >= 0 {
			if mint := firstMintIn(line[idx+len("Mint: "):]); mint != "" {
				return mint
			}
		}
	}

	for _, line := range logs[markerAt:] {
		if mint := firstMintIn(line); mint != "" {
			return mint
		}
	}
	return ""
}

func firstMintIn(s string) string {
	for _, cand := range base58Pattern.FindAllString(s, -1) {
		if notMints[cand] {
			continue
		}
		if chain.ValidateAddress(cand) == nil {
			return cand
		}
	}
	return ""
}
