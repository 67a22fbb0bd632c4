package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/storage"
	"solana-safety-engine/internal/storage/postgres"
)

func testVerdict(token string, score int, at time.Time) *domain.CompositeVerdict {
	return &domain.CompositeVerdict{
		Token:             token,
		Symbol:            "TEST",
		CombinedRiskScore: score,
		OverallRisk:       domain.OverallRiskForScore(score, false),
		PerDetectorScores: map[string]int{"honeypot": score},
		Recommendation:    "ANALYZE",
		AnalyzedAt:        at,
	}
}

func TestVerdictStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := postgres.NewVerdictStore(pool)
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.Insert(ctx, testVerdict("mintA", 20, base)))
	require.NoError(t, s.Insert(ctx, testVerdict("mintA", 65, base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, testVerdict("mintB", 10, base.Add(2*time.Minute))))

	latest, err := s.GetLatestByToken(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, 65, latest.CombinedRiskScore)
	assert.Equal(t, domain.OverallHigh, latest.OverallRisk)
	assert.Equal(t, 65, latest.PerDetectorScores["honeypot"])

	history, err := s.GetByToken(ctx, "mintA", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 65, history[0].CombinedRiskScore)
	assert.Equal(t, 20, history[1].CombinedRiskScore)

	recent, err := s.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "mintB", recent[0].Token)

	_, err = s.GetLatestByToken(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerdictStoreDuplicateKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := postgres.NewVerdictStore(pool)
	at := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.Insert(ctx, testVerdict("mintA", 20, at)))
	err := s.Insert(ctx, testVerdict("mintA", 30, at))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestVerdictStoreInvalidInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := postgres.NewVerdictStore(pool)

	assert.ErrorIs(t, s.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.Insert(ctx, testVerdict("", 10, time.Now())), storage.ErrInvalidInput)
}
