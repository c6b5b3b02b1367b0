package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// SaleArchive is an in-memory implementation of storage.SaleArchive.
type SaleArchive struct {
	mu   sync.RWMutex
	data map[string]*domain.SaleRecord // keyed by sale_id
}

// NewSaleArchive creates a new in-memory sale archive.
func NewSaleArchive() *SaleArchive {
	return &SaleArchive{data: make(map[string]*domain.SaleRecord)}
}

// Compile-time interface check.
var _ storage.SaleArchive = (*SaleArchive)(nil)

// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleArchive) Insert(_ context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.SaleID]; exists {
		return storage.ErrDuplicateKey
	}
	recCopy := *rec
	s.data[rec.SaleID] = &recCopy
	return nil
}

// ListByToken retrieves sales for a canonical token key, newest first.
func (s *SaleArchive) ListByToken(_ context.Context, token string) ([]*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleRecord
	for _, rec := range s.data {
		if rec.Token.Canonical() == token {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SettledAt > result[j].SettledAt
	})
	return result, nil
}

// ListRecent retrieves the most recent sales across all tokens.
func (s *SaleArchive) ListRecent(_ context.Context, limit int) ([]*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SaleRecord, 0, len(s.data))
	for _, rec := range s.data {
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SettledAt > result[j].SettledAt
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
