package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// AuctionStore is an in-memory implementation of storage.AuctionStore.
type AuctionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Auction // keyed by canonical token
}

// NewAuctionStore creates a new in-memory auction store.
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{data: make(map[string]*domain.Auction)}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

// Insert adds an auction. Returns ErrDuplicateKey if one exists.
func (s *AuctionStore) Insert(_ context.Context, a *domain.Auction) error {
	if a == nil || a.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	key := a.Token.Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	auctionCopy := *a
	s.data[key] = &auctionCopy
	return nil
}

// GetByToken retrieves the auction for a canonical token key.
func (s *AuctionStore) GetByToken(_ context.Context, token string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[token]
	if !exists {
		return nil, storage.ErrNotFound
	}
	auctionCopy := *a
	return &auctionCopy, nil
}

// Update replaces the stored auction.
func (s *AuctionStore) Update(_ context.Context, a *domain.Auction) error {
	if a == nil || a.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	key := a.Token.Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}
	auctionCopy := *a
	s.data[key] = &auctionCopy
	return nil
}

// ListExpiredActive retrieves ACTIVE auctions past their deadline,
// oldest deadline first.
func (s *AuctionStore) ListExpiredActive(_ context.Context, nowMillis int64) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Auction
	for _, a := range s.data {
		if a.Status == domain.AuctionActive && a.EndTime <= nowMillis {
			auctionCopy := *a
			result = append(result, &auctionCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EndTime < result[j].EndTime
	})
	return result, nil
}
