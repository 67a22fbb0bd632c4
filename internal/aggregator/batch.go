package aggregator

import (
	"context"
	"sync"
	"time"

	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/observability"
)

// BatchResult pairs one token with its composite verdict or error.
type BatchResult struct {
	Token   string                   `json:"token"`
	Verdict *domain.CompositeVerdict `json:"verdict,omitempty"`
	Err     error                    `json:"-"`
	Error   string                   `json:"error,omitempty"`
}

// AnalyzeBatch runs AnalyzeFull over tokens in groups of BatchSize with
// BatchDelay between groups, so a watchlist scan does not hammer upstream
// APIs. Results keep the input order. Cancelling ctx stops between groups;
// already-started analyses finish.
func (a *Aggregator) AnalyzeBatch(ctx context.Context, tokens []string) []BatchResult {
	observability.RecordBatchAnalysis()

	results := make([]BatchResult, len(tokens))
	size := a.cfg.BatchSize
	if size <= 0 {
		size = 1
	}

	for start := 0; start < len(tokens); start += size {
		if start > 0 {
			select {
			case <-ctx.Done():
				for i := start; i < len(tokens); i++ {
					results[i] = BatchResult{Token: tokens[i], Err: ctx.Err(), Error: ctx.Err().Error()}
				}
				return results
			case <-time.After(a.cfg.BatchDelay):
			}
		}

		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := a.AnalyzeFull(ctx, tokens[i])
				res := BatchResult{Token: tokens[i], Verdict: v, Err: err}
				if err != nil {
					res.Error = err.Error()
				}
				results[i] = res
			}(i)
		}
		wg.Wait()
	}
	return results
}
