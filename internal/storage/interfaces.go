// Package storage defines the marketplace state index: listings,
// auctions, and the settled-sale archive. The index accelerates reads
// and the finalizer sweep; the ledger and the off-chain store remain
// the sources of truth.
package storage

import (
	"context"

	"stellar-nft-market/internal/domain"
)

// ListingStore indexes active listings keyed by canonical token.
type ListingStore interface {
	// Insert adds a listing. Returns ErrDuplicateKey if one exists.
	Insert(ctx context.Context, l *domain.Listing) error

	// GetByToken retrieves the listing for a canonical token key.
	// Returns ErrNotFound if none exists.
	GetByToken(ctx context.Context, token string) (*domain.Listing, error)

	// Update replaces the stored listing. Returns ErrNotFound if none
	// exists.
	Update(ctx context.Context, l *domain.Listing) error

	// Delete removes a listing. Deleting a missing listing is a no-op.
	Delete(ctx context.Context, token string) error

	// ListByCreator retrieves all listings by a creator, newest first.
	ListByCreator(ctx context.Context, creator string) ([]*domain.Listing, error)
}

// AuctionStore indexes timed auctions keyed by canonical token.
type AuctionStore interface {
	// Insert adds an auction. Returns ErrDuplicateKey if one exists.
	Insert(ctx context.Context, a *domain.Auction) error

	// GetByToken retrieves the auction for a canonical token key.
	// Returns ErrNotFound if none exists.
	GetByToken(ctx context.Context, token string) (*domain.Auction, error)

	// Update replaces the stored auction. Returns ErrNotFound if none
	// exists.
	Update(ctx context.Context, a *domain.Auction) error

	// ListExpiredActive retrieves auctions still ACTIVE whose end time
	// is at or before nowMillis, oldest deadline first.
	ListExpiredActive(ctx context.Context, nowMillis int64) ([]*domain.Auction, error)
}

// SaleArchive is the append-only settled-sale history.
type SaleArchive interface {
	// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
	Insert(ctx context.Context, s *domain.SaleRecord) error

	// ListByToken retrieves sales for a canonical token key, newest
	// first.
	ListByToken(ctx context.Context, token string) ([]*domain.SaleRecord, error)

	// ListRecent retrieves the most recent sales across all tokens.
	ListRecent(ctx context.Context, limit int) ([]*domain.SaleRecord, error)
}
