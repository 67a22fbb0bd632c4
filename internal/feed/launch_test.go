package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const launchedMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestExtractLaunchMint(t *testing.T) {
	tests := []struct {
		name string
		logs []string
		want string
	}{
		{
			name: "pump fun create with mint line",
			logs: []string{
				"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
				"Program log: Instruction: Create",
				"Program log: Mint: " + launchedMint,
				"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
			},
			want: launchedMint,
		},
		{
			name: "raydium initialize2 with inline address",
			logs: []string{
				"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
				"Program log: initialize2: InitializeInstruction2 " + launchedMint,
			},
			want: launchedMint,
		},
		{
			name: "no launch marker",
			logs: []string{
				"Program log: Instruction: Swap",
				"Program log: Mint: " + launchedMint,
			},
			want: "",
		},
		{
			name: "marker but only known program addresses",
			logs: []string{
				"Program log: Instruction: Create",
				"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]",
			},
			want: "",
		},
		{
			name: "empty logs",
			logs: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLaunchMint(tt.logs))
		})
	}
}
