// Package horizon provides the read/submit client for the ledger network.
package horizon

import (
	"context"

	"stellar-nft-market/internal/domain"
)

// Client defines the ledger read/submit interface the marketplace core
// depends on. Implementations must honor context cancellation on every
// call; a timeout means "unknown outcome" for submissions.
type Client interface {
	// LoadAccount retrieves an account with its current sequence number
	// and balances (trustlines included).
	LoadAccount(ctx context.Context, address string) (*Account, error)

	// Offers retrieves live order-book offers matching the filter.
	Offers(ctx context.Context, filter OfferFilter) ([]Offer, error)

	// OrderBook retrieves the aggregated order book for a trading pair.
	OrderBook(ctx context.Context, selling, buying domain.Asset, limit int) (*OrderBook, error)

	// LatestLedger retrieves the most recently closed ledger header.
	LatestLedger(ctx context.Context) (*Ledger, error)

	// SubmitTransaction submits a signed transaction envelope and waits
	// for inclusion. Returns *Error with result codes on rejection.
	SubmitTransaction(ctx context.Context, envelope []byte) (*SubmitResult, error)

	// TransactionByHash retrieves the outcome of a previously submitted
	// transaction. Returns ErrNotFound if the ledger never saw it.
	TransactionByHash(ctx context.Context, hash string) (*SubmitResult, error)
}

// Account is a ledger account snapshot.
type Account struct {
	Address  string
	Sequence int64
	Balances []Balance
}

// Balance is one balance line on an account. A non-native balance line
// existing at all means the trustline is established.
type Balance struct {
	Asset  domain.Asset
	Amount string
}

// HasTrustline reports whether the account can receive units of asset.
// The native asset needs no trustline.
func (a *Account) HasTrustline(asset domain.Asset) bool {
	if asset.IsNative() {
		return true
	}
	for _, b := range a.Balances {
		if b.Asset == asset {
			return true
		}
	}
	return false
}

// BalanceOf returns the balance string for asset, or "" if no line exists.
func (a *Account) BalanceOf(asset domain.Asset) string {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b.Amount
		}
	}
	return ""
}

// Offer is a live order-book entry.
type Offer struct {
	ID           uint64
	Seller       string
	Selling      domain.Asset
	Buying       domain.Asset
	Amount       string // token units remaining
	Price        string // native-currency units per token unit
	LastModified int64  // Unix milliseconds
}

// OfferFilter narrows an Offers query. Nil asset pointers match anything.
type OfferFilter struct {
	Seller  string
	Selling *domain.Asset
	Buying  *domain.Asset
	Limit   int
}

// PriceLevel is one aggregated order-book level.
type PriceLevel struct {
	Price  string
	Amount string
}

// OrderBook is the aggregated book for a trading pair.
type OrderBook struct {
	Selling domain.Asset
	Buying  domain.Asset
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// Ledger is a closed ledger header. CloseTime anchors auction deadlines
// to ledger time instead of the client's wall clock.
type Ledger struct {
	Sequence  int64
	CloseTime int64 // Unix milliseconds
}

// SubmitResult is the ledger's confirmation for an applied transaction.
type SubmitResult struct {
	Hash           string
	Ledger         int64
	Successful     bool
	ResultCode     string
	OperationCodes []string
	CreatedAt      int64 // Unix milliseconds
}
