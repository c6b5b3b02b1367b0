package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// SaleKind classifies how a settled sale was reached.
type SaleKind string

const (
	SaleFixedPrice  SaleKind = "FIXED_PRICE"
	SaleAcceptedBid SaleKind = "ACCEPTED_BID"
	SaleAuctionWin  SaleKind = "AUCTION_WIN"
)

// NewSaleID derives the deterministic archive key for a settled sale.
// The same settlement always produces the same id, so retried archive
// writes collapse into one row.
func NewSaleID(txHash string, token Token) string {
	sum := sha256.Sum256([]byte(txHash + "|" + token.Canonical()))
	return hex.EncodeToString(sum[:])
}

// SaleRecord is one settled transfer of a token for value, archived for
// history reads. Append-only; never part of the settlement critical path.
type SaleRecord struct {
	SaleID    string   `json:"saleId"` // deterministic hash
	Token     Token    `json:"token"`
	Kind      SaleKind `json:"kind"`
	Seller    string   `json:"seller"`
	Buyer     string   `json:"buyer"`
	Amount    string   `json:"amount"` // canonical decimal string
	TxHash    string   `json:"txHash"`
	Ledger    int64    `json:"ledger"`
	SettledAt int64    `json:"settledAt"` // Unix milliseconds
}
