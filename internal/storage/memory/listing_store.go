// Package memory provides in-memory storage implementations for tests
// and single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// ListingStore is an in-memory implementation of storage.ListingStore.
type ListingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Listing // keyed by canonical token
}

// NewListingStore creates a new in-memory listing store.
func NewListingStore() *ListingStore {
	return &ListingStore{data: make(map[string]*domain.Listing)}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

// Insert adds a listing. Returns ErrDuplicateKey if one exists.
func (s *ListingStore) Insert(_ context.Context, l *domain.Listing) error {
	if l == nil || l.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	key := l.Token.Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	listingCopy := *l
	s.data[key] = &listingCopy
	return nil
}

// GetByToken retrieves the listing for a canonical token key.
func (s *ListingStore) GetByToken(_ context.Context, token string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[token]
	if !exists {
		return nil, storage.ErrNotFound
	}
	listingCopy := *l
	return &listingCopy, nil
}

// Update replaces the stored listing.
func (s *ListingStore) Update(_ context.Context, l *domain.Listing) error {
	if l == nil || l.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	key := l.Token.Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}
	listingCopy := *l
	s.data[key] = &listingCopy
	return nil
}

// Delete removes a listing. Missing listings are a no-op.
func (s *ListingStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
	return nil
}

// ListByCreator retrieves all listings by a creator, newest first.
func (s *ListingStore) ListByCreator(_ context.Context, creator string) ([]*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Listing
	for _, l := range s.data {
		if l.Creator == creator {
			listingCopy := *l
			result = append(result, &listingCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result, nil
}
