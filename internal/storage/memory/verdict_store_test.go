package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/storage"
)

func verdict(token string, score int, at time.Time) *domain.CompositeVerdict {
	return &domain.CompositeVerdict{
		Token:             token,
		CombinedRiskScore: score,
		OverallRisk:       domain.OverallRiskForScore(score, false),
		AnalyzedAt:        at,
	}
}

func TestVerdictStoreInsertAndGetLatest(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()
	base := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, verdict("mintA", 20, base)))
	require.NoError(t, s.Insert(ctx, verdict("mintA", 65, base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, verdict("mintB", 10, base.Add(2*time.Minute))))

	latest, err := s.GetLatestByToken(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, 65, latest.CombinedRiskScore)

	_, err = s.GetLatestByToken(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerdictStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()
	at := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, verdict("mintA", 20, at)))
	err := s.Insert(ctx, verdict("mintA", 30, at))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestVerdictStoreRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()

	assert.ErrorIs(t, s.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.Insert(ctx, verdict("", 10, time.Now())), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.Insert(ctx, verdict("mintA", 10, time.Time{})), storage.ErrInvalidInput)
}

func TestVerdictStoreGetByTokenNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, verdict("mintA", 10*i, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Insert(ctx, verdict("mintB", 99, base)))

	got, err := s.GetByToken(ctx, "mintA", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 40, got[0].CombinedRiskScore)
	assert.Equal(t, 30, got[1].CombinedRiskScore)
	assert.Equal(t, 20, got[2].CombinedRiskScore)
}

func TestVerdictStoreGetRecentSpansTokens(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()
	base := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, verdict("mintA", 10, base)))
	require.NoError(t, s.Insert(ctx, verdict("mintB", 20, base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, verdict("mintC", 30, base.Add(2*time.Minute))))

	got, err := s.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "mintC", got[0].Token)
	assert.Equal(t, "mintB", got[1].Token)
}

func TestVerdictStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewVerdictStore()
	at := time.Now().UTC()
	require.NoError(t, s.Insert(ctx, verdict("mintA", 20, at)))

	got, err := s.GetLatestByToken(ctx, "mintA")
	require.NoError(t, err)
	got.CombinedRiskScore = 99

	again, err := s.GetLatestByToken(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, 20, again.CombinedRiskScore)
}
