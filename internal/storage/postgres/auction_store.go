package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// AuctionStore implements storage.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *Pool
}

// NewAuctionStore creates a new AuctionStore.
func NewAuctionStore(pool *Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

// Insert adds an auction. Returns ErrDuplicateKey if one exists for the token.
func (s *AuctionStore) Insert(ctx context.Context, a *domain.Auction) error {
	if a == nil || a.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO auctions (
			token, asset_code, issuer, creator, price, metadata_ref, offer_id, verified, created_at,
			start_time, end_time, status, winner, winning_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		a.Token.Canonical(),
		a.Token.AssetCode,
		a.Token.Issuer,
		a.Creator,
		a.Price,
		a.MetadataRef,
		int64(a.OfferID),
		a.Verified,
		a.CreatedAt,
		a.StartTime,
		a.EndTime,
		string(a.Status),
		a.Winner,
		a.WinningAmount,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

// GetByToken retrieves the auction for a canonical token key.
func (s *AuctionStore) GetByToken(ctx context.Context, token string) (*domain.Auction, error) {
	query := `
		SELECT asset_code, issuer, creator, price, metadata_ref, offer_id, verified, created_at,
		       start_time, end_time, status, winner, winning_amount
		FROM auctions
		WHERE token = $1
	`

	row := s.pool.QueryRow(ctx, query, token)
	a, err := scanAuction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get auction by token: %w", err)
	}
	return a, nil
}

// Update replaces the stored auction. Returns ErrNotFound if none exists.
func (s *AuctionStore) Update(ctx context.Context, a *domain.Auction) error {
	if a == nil || a.Token.AssetCode == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE auctions
		SET creator = $2, price = $3, metadata_ref = $4, offer_id = $5, verified = $6, created_at = $7,
		    start_time = $8, end_time = $9, status = $10, winner = $11, winning_amount = $12
		WHERE token = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		a.Token.Canonical(),
		a.Creator,
		a.Price,
		a.MetadataRef,
		int64(a.OfferID),
		a.Verified,
		a.CreatedAt,
		a.StartTime,
		a.EndTime,
		string(a.Status),
		a.Winner,
		a.WinningAmount,
	)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExpiredActive retrieves ACTIVE auctions past their deadline,
// oldest deadline first.
func (s *AuctionStore) ListExpiredActive(ctx context.Context, nowMillis int64) ([]*domain.Auction, error) {
	query := `
		SELECT asset_code, issuer, creator, price, metadata_ref, offer_id, verified, created_at,
		       start_time, end_time, status, winner, winning_amount
		FROM auctions
		WHERE status = $1 AND end_time <= $2
		ORDER BY end_time ASC, token ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.AuctionActive), nowMillis)
	if err != nil {
		return nil, fmt.Errorf("list expired active auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction row: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction rows: %w", err)
	}

	return auctions, nil
}

// scanAuction scans a single row into an Auction.
func scanAuction(row pgx.Row) (*domain.Auction, error) {
	var a domain.Auction
	var statusStr string
	var offerID int64

	err := row.Scan(
		&a.Token.AssetCode,
		&a.Token.Issuer,
		&a.Creator,
		&a.Price,
		&a.MetadataRef,
		&offerID,
		&a.Verified,
		&a.CreatedAt,
		&a.StartTime,
		&a.EndTime,
		&statusStr,
		&a.Winner,
		&a.WinningAmount,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ListingTimedAuction
	a.Status = domain.AuctionStatus(statusStr)
	a.OfferID = uint64(offerID)
	return &a, nil
}
