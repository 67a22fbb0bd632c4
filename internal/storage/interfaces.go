package storage

import (
	"context"

	"solana-safety-engine/internal/domain"
)

// VerdictStore provides access to composite verdict history. Verdicts are
// append-only: each analysis run stores a new row keyed by (token,
// analyzed_at).
type VerdictStore interface {
	// Insert adds a new verdict. Returns ErrDuplicateKey if a verdict for
	// (token, analyzed_at) already exists.
	Insert(ctx context.Context, v *domain.CompositeVerdict) error

	// GetLatestByToken retrieves the most recent verdict for a token.
	// Returns ErrNotFound if the token has never been analyzed.
	GetLatestByToken(ctx context.Context, token string) (*domain.CompositeVerdict, error)

	// GetByToken retrieves up to limit verdicts for a token, newest first.
	GetByToken(ctx context.Context, token string, limit int) ([]*domain.CompositeVerdict, error)

	// GetRecent retrieves up to limit verdicts across all tokens, newest
	// first.
	GetRecent(ctx context.Context, limit int) ([]*domain.CompositeVerdict, error)
}
