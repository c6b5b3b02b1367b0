// Package postgres provides PostgreSQL-backed storage implementations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// ListingStore implements storage.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *Pool
}

// NewListingStore creates a new ListingStore.
func NewListingStore(pool *Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

// Insert adds a listing. Returns ErrDuplicateKey if one exists for the token.
func (s *ListingStore) Insert(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO listings (
			token, asset_code, issuer, kind, creator, price, metadata_ref, offer_id, verified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		l.Token.Canonical(),
		l.Token.AssetCode,
		l.Token.Issuer,
		string(l.Kind),
		l.Creator,
		l.Price,
		l.MetadataRef,
		int64(l.OfferID),
		l.Verified,
		l.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// GetByToken retrieves the listing for a canonical token key.
func (s *ListingStore) GetByToken(ctx context.Context, token string) (*domain.Listing, error) {
	query := `
		SELECT asset_code, issuer, kind, creator, price, metadata_ref, offer_id, verified, created_at
		FROM listings
		WHERE token = $1
	`

	row := s.pool.QueryRow(ctx, query, token)
	l, err := scanListing(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get listing by token: %w", err)
	}
	return l, nil
}

// Update replaces the stored listing. Returns ErrNotFound if none exists.
func (s *ListingStore) Update(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE listings
		SET kind = $2, creator = $3, price = $4, metadata_ref = $5, offer_id = $6, verified = $7, created_at = $8
		WHERE token = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		l.Token.Canonical(),
		string(l.Kind),
		l.Creator,
		l.Price,
		l.MetadataRef,
		int64(l.OfferID),
		l.Verified,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a listing. Deleting a missing listing is a no-op.
func (s *ListingStore) Delete(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

// ListByCreator retrieves all listings by a creator, newest first.
func (s *ListingStore) ListByCreator(ctx context.Context, creator string) ([]*domain.Listing, error) {
	query := `
		SELECT asset_code, issuer, kind, creator, price, metadata_ref, offer_id, verified, created_at
		FROM listings
		WHERE creator = $1
		ORDER BY created_at DESC, token ASC
	`

	rows, err := s.pool.Query(ctx, query, creator)
	if err != nil {
		return nil, fmt.Errorf("list listings by creator: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// scanListing scans a single row into a Listing.
func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	var kindStr string
	var offerID int64

	err := row.Scan(
		&l.Token.AssetCode,
		&l.Token.Issuer,
		&kindStr,
		&l.Creator,
		&l.Price,
		&l.MetadataRef,
		&offerID,
		&l.Verified,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Kind = domain.ListingKind(kindStr)
	l.OfferID = uint64(offerID)
	return &l, nil
}

// scanListings scans multiple rows into a slice of Listing.
func scanListings(rows pgx.Rows) ([]*domain.Listing, error) {
	var listings []*domain.Listing

	for rows.Next() {
		var l domain.Listing
		var kindStr string
		var offerID int64

		err := rows.Scan(
			&l.Token.AssetCode,
			&l.Token.Issuer,
			&kindStr,
			&l.Creator,
			&l.Price,
			&l.MetadataRef,
			&offerID,
			&l.Verified,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}

		l.Kind = domain.ListingKind(kindStr)
		l.OfferID = uint64(offerID)
		listings = append(listings, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}

	return listings, nil
}
