package clickhouse

import (
	"context"
	"fmt"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

// SaleArchive implements storage.SaleArchive using ClickHouse.
type SaleArchive struct {
	conn *Conn
}

// NewSaleArchive creates a new SaleArchive.
func NewSaleArchive(conn *Conn) *SaleArchive {
	return &SaleArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.SaleArchive = (*SaleArchive)(nil)

// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
// MergeTree doesn't enforce uniqueness, so existence is checked first;
// ReplacingMergeTree collapses any row that races past the check.
func (s *SaleArchive) Insert(ctx context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.SaleID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, rec.SaleID)
	if err != nil {
		return fmt.Errorf("check sale exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO sales (
			sale_id, token, asset_code, issuer, kind, seller, buyer, amount, tx_hash, ledger, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		rec.SaleID,
		rec.Token.Canonical(),
		rec.Token.AssetCode,
		rec.Token.Issuer,
		string(rec.Kind),
		rec.Seller,
		rec.Buyer,
		rec.Amount,
		rec.TxHash,
		uint64(rec.Ledger),
		uint64(rec.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// ListByToken retrieves sales for a canonical token key, newest first.
func (s *SaleArchive) ListByToken(ctx context.Context, token string) ([]*domain.SaleRecord, error) {
	query := `
		SELECT sale_id, asset_code, issuer, kind, seller, buyer, amount, tx_hash, ledger, settled_at
		FROM sales FINAL
		WHERE token = ?
		ORDER BY settled_at DESC, sale_id ASC
	`

	rows, err := s.conn.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("query sales by token: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// ListRecent retrieves the most recent sales across all tokens.
func (s *SaleArchive) ListRecent(ctx context.Context, limit int) ([]*domain.SaleRecord, error) {
	query := `
		SELECT sale_id, asset_code, issuer, kind, seller, buyer, amount, tx_hash, ledger, settled_at
		FROM sales FINAL
		ORDER BY settled_at DESC, sale_id ASC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent sales: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// exists checks if a sale with the given id exists.
func (s *SaleArchive) exists(ctx context.Context, saleID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM sales WHERE sale_id = ?`, saleID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSales scans multiple rows into a slice of SaleRecord.
func scanSales(rows chRows) ([]*domain.SaleRecord, error) {
	var sales []*domain.SaleRecord

	for rows.Next() {
		var rec domain.SaleRecord
		var kindStr string
		var ledger, settledAt uint64

		err := rows.Scan(
			&rec.SaleID,
			&rec.Token.AssetCode,
			&rec.Token.Issuer,
			&kindStr,
			&rec.Seller,
			&rec.Buyer,
			&rec.Amount,
			&rec.TxHash,
			&ledger,
			&settledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}

		rec.Kind = domain.SaleKind(kindStr)
		rec.Ledger = int64(ledger)
		rec.SettledAt = int64(settledAt)
		sales = append(sales, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}
