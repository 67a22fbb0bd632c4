// Package memory holds in-memory store implementations, used in tests and
// when the engine runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/storage"
)

// VerdictStore is an in-memory implementation of storage.VerdictStore.
type VerdictStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CompositeVerdict // keyed by token|analyzedAt
}

// NewVerdictStore creates a new in-memory verdict store.
func NewVerdictStore() *VerdictStore {
	return &VerdictStore{
		data: make(map[string]*domain.CompositeVerdict),
	}
}

var _ storage.VerdictStore = (*VerdictStore)(nil)

func verdictKey(token string, analyzedAtUnixNano int64) string {
	return fmt.Sprintf("%s|%d", token, analyzedAtUnixNano)
}

// Insert adds a new verdict. Returns ErrDuplicateKey if exists.
func (s *VerdictStore) Insert(_ context.Context, v *domain.CompositeVerdict) error {
	if v == nil || v.Token == "" || v.AnalyzedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	key := verdictKey(v.Token, v.AnalyzedAt.UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *v
	s.data[key] = &cp
	return nil
}

// GetLatestByToken retrieves the most recent verdict for a token.
func (s *VerdictStore) GetLatestByToken(_ context.Context, token string) (*domain.CompositeVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.CompositeVerdict
	for _, v := range s.data {
		if v.Token != token {
			continue
		}
		if latest == nil || v.AnalyzedAt.After(latest.AnalyzedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	cp := *latest
	return &cp, nil
}

// GetByToken retrieves up to limit verdicts for a token, newest first.
func (s *VerdictStore) GetByToken(_ context.Context, token string, limit int) ([]*domain.CompositeVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CompositeVerdict
	for _, v := range s.data {
		if v.Token == token {
			cp := *v
			result = append(result, &cp)
		}
	}
	return sortAndTrim(result, limit), nil
}

// GetRecent retrieves up to limit verdicts across all tokens, newest first.
func (s *VerdictStore) GetRecent(_ context.Context, limit int) ([]*domain.CompositeVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CompositeVerdict, 0, len(s.data))
	for _, v := range s.data {
		cp := *v
		result = append(result, &cp)
	}
	return sortAndTrim(result, limit), nil
}

func sortAndTrim(verdicts []*domain.CompositeVerdict, limit int) []*domain.CompositeVerdict {
	sort.Slice(verdicts, func(i, j int) bool {
		return verdicts[i].AnalyzedAt.After(verdicts[j].AnalyzedAt)
	})
	if limit > 0 && len(verdicts) > limit {
		verdicts = verdicts[:limit]
	}
	return verdicts
}
