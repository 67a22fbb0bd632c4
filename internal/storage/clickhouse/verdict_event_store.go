package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-safety-engine/internal/detector"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/storage"
)

// VerdictEventStore writes flattened verdict events to ClickHouse for
// fleet-level analytics. The MergeTree table is append-only; uniqueness is
// not enforced here.
type VerdictEventStore struct {
	conn *Conn
}

// NewVerdictEventStore creates a new VerdictEventStore.
func NewVerdictEventStore(conn *Conn) *VerdictEventStore {
	return &VerdictEventStore{conn: conn}
}

// ScorePoint is one (analyzed_at, score) sample of a token's history.
type ScorePoint struct {
	AnalyzedAt time.Time
	Score      int
}

// InsertBatch appends one event per verdict.
func (s *VerdictEventStore) InsertBatch(ctx context.Context, verdicts []*domain.CompositeVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	for _, v := range verdicts {
		if v == nil || v.Token == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO verdict_events (
			token, symbol, combined_risk_score, overall_risk, is_honeypot,
			honeypot_score, washtrade_score, bundle_score, sniper_score, analyzed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, v := range verdicts {
		honeypot := uint8(0)
		if v.IsHoneypot() {
			honeypot = 1
		}
		err = batch.Append(
			v.Token,
			v.Symbol,
			uint8(v.CombinedRiskScore),
			string(v.OverallRisk),
			honeypot,
			uint8(v.PerDetectorScores[detector.NameHoneypot]),
			uint8(v.PerDetectorScores[detector.NameWashTrade]),
			uint8(v.PerDetectorScores[detector.NameBundle]),
			uint8(v.PerDetectorScores[detector.NameSniper]),
			v.AnalyzedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Insert appends a single event.
func (s *VerdictEventStore) Insert(ctx context.Context, v *domain.CompositeVerdict) error {
	return s.InsertBatch(ctx, []*domain.CompositeVerdict{v})
}

// GetScoreHistory retrieves up to limit combined-score samples for a token,
// newest first.
func (s *VerdictEventStore) GetScoreHistory(ctx context.Context, token string, limit int) ([]ScorePoint, error) {
	query := `
		SELECT analyzed_at, combined_risk_score
		FROM verdict_events
		WHERE token = ?
		ORDER BY analyzed_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, token, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var points []ScorePoint
	for rows.Next() {
		var p ScorePoint
		var score uint8
		if err := rows.Scan(&p.AnalyzedAt, &score); err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}
		p.Score = int(score)
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}

	return points, nil
}

// CountByRisk returns how many events exist per overall risk level.
func (s *VerdictEventStore) CountByRisk(ctx context.Context) (map[string]uint64, error) {
	query := `
		SELECT overall_risk, count(*)
		FROM verdict_events
		GROUP BY overall_risk
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query counts by risk: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var risk string
		var n uint64
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[risk] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}

	return counts, nil
}
