package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/storage"
)

// VerdictStore implements storage.VerdictStore using PostgreSQL. The full
// verdict is stored as JSONB next to the columns queries filter on.
type VerdictStore struct {
	pool *Pool
}

// NewVerdictStore creates a new VerdictStore.
func NewVerdictStore(pool *Pool) *VerdictStore {
	return &VerdictStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VerdictStore = (*VerdictStore)(nil)

// Insert adds a new verdict. Returns ErrDuplicateKey if (token, analyzed_at)
// exists.
func (s *VerdictStore) Insert(ctx context.Context, v *domain.CompositeVerdict) error {
	if v == nil || v.Token == "" || v.AnalyzedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	query := `
		INSERT INTO safety_verdicts (
			token, symbol, combined_risk_score, overall_risk, is_honeypot, recommendation, verdict, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		v.Token,
		v.Symbol,
		v.CombinedRiskScore,
		string(v.OverallRisk),
		v.IsHoneypot(),
		v.Recommendation,
		payload,
		v.AnalyzedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// GetLatestByToken retrieves the most recent verdict for a token.
func (s *VerdictStore) GetLatestByToken(ctx context.Context, token string) (*domain.CompositeVerdict, error) {
	query := `
		SELECT verdict
		FROM safety_verdicts
		WHERE token = $1
		ORDER BY analyzed_at DESC
		LIMIT 1
	`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, token).Scan(&payload)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest verdict: %w", err)
	}

	return unmarshalVerdict(payload)
}

// GetByToken retrieves up to limit verdicts for a token, newest first.
func (s *VerdictStore) GetByToken(ctx context.Context, token string, limit int) ([]*domain.CompositeVerdict, error) {
	query := `
		SELECT verdict
		FROM safety_verdicts
		WHERE token = $1
		ORDER BY analyzed_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, token, limit)
	if err != nil {
		return nil, fmt.Errorf("get verdicts by token: %w", err)
	}
	defer rows.Close()

	return scanVerdicts(rows)
}

// GetRecent retrieves up to limit verdicts across all tokens, newest first.
func (s *VerdictStore) GetRecent(ctx context.Context, limit int) ([]*domain.CompositeVerdict, error) {
	query := `
		SELECT verdict
		FROM safety_verdicts
		ORDER BY analyzed_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent verdicts: %w", err)
	}
	defer rows.Close()

	return scanVerdicts(rows)
}

// scanVerdicts scans verdict JSONB rows into domain structs.
func scanVerdicts(rows pgx.Rows) ([]*domain.CompositeVerdict, error) {
	var verdicts []*domain.CompositeVerdict

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan verdict row: %w", err)
		}
		v, err := unmarshalVerdict(payload)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdict rows: %w", err)
	}

	return verdicts, nil
}

func unmarshalVerdict(payload []byte) (*domain.CompositeVerdict, error) {
	var v domain.CompositeVerdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return &v, nil
}
