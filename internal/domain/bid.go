package domain

import "github.com/shopspring/decimal"

// BidOrigin records which independently-consistent source a bid was
// observed in.
type BidOrigin string

const (
	// BidOriginRecord is an off-chain pinned bid record.
	BidOriginRecord BidOrigin = "offchain-record"
	// BidOriginOrderBook is a live order-book buy offer. Order-book bids
	// are authoritative: they are fillable at settlement time.
	BidOriginOrderBook BidOrigin = "order-book"
)

// Bid is a single observed bid on a token. Immutable once observed;
// "current highest" is always a computed view over live bids.
type Bid struct {
	Token     Token           `json:"token"`
	Bidder    string          `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Origin    BidOrigin       `json:"origin"`

	// OfferID is set for order-book bids only.
	OfferID uint64 `json:"offerId,omitempty"`
}

// SameBid reports whether two observations refer to the same bid:
// identical bidder address and exactly equal amount.
func SameBid(a, b Bid) bool {
	return a.Bidder == b.Bidder && a.Amount.Equal(b.Amount)
}
