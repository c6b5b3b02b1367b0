// Package bids reconciles bid data scattered between the off-chain
// content store and the ledger's order book into one ranked view.
package bids

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
)

// Reconciler merges off-chain pinned bid records with live order-book
// buy offers. The order book is authoritative: its entries are
// fillable; the off-chain store is best-effort history.
type Reconciler struct {
	client horizon.Client
	store  offchain.Store
	logger *log.Logger
}

// Options for creating a Reconciler.
type Options struct {
	Client horizon.Client
	Store  offchain.Store
	Logger *log.Logger
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		client: opts.Client,
		store:  opts.Store,
		logger: logger,
	}
}

// GetBids returns all currently live bids for the token, highest amount
// first, ties broken by earliest timestamp. An unreachable off-chain
// store degrades to order-book-only; it never hides order-book bids.
func (r *Reconciler) GetBids(ctx context.Context, token domain.Token) ([]domain.Bid, error) {
	degraded := false
	recorded, err := offchain.FindBidRecords(ctx, r.store, token)
	if err != nil {
		r.logger.Printf("offchain bid lookup degraded for %s: %v", token.Canonical(), err)
		recorded = nil
		degraded = true
	}

	bookBids, err := r.orderBookBids(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load order-book bids for %s: %w", token.Canonical(), err)
	}
	observability.RecordReconciliation(degraded)

	merged := merge(recorded, bookBids)

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Amount.Equal(merged[j].Amount) {
			return merged[i].Amount.GreaterThan(merged[j].Amount)
		}
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged, nil
}

// GetHighestBid returns the top-ranked bid, or nil when no bid exists
// in either source.
func (r *Reconciler) GetHighestBid(ctx context.Context, token domain.Token) (*domain.Bid, error) {
	all, err := r.GetBids(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	top := all[0]
	return &top, nil
}

// orderBookBids fetches live buy offers for the token: offers whose
// owner pays native currency to receive the token unit.
func (r *Reconciler) orderBookBids(ctx context.Context, token domain.Token) ([]domain.Bid, error) {
	asset := token.Asset()
	native := domain.NativeAsset

	offers, err := r.client.Offers(ctx, horizon.OfferFilter{
		Selling: &native,
		Buying:  &asset,
	})
	if err != nil {
		return nil, err
	}

	var result []domain.Bid
	for _, o := range offers {
		amount, err := decimal.NewFromString(o.Price)
		if err != nil {
			r.logger.Printf("skipping offer %d with unparseable price %q", o.ID, o.Price)
			continue
		}
		result = append(result, domain.Bid{
			Token:     token,
			Bidder:    o.Seller,
			Amount:    amount,
			Timestamp: o.LastModified,
			Origin:    domain.BidOriginOrderBook,
			OfferID:   o.ID,
		})
	}
	return result, nil
}

// merge deduplicates bids across the two sources. An off-chain record
// and an order-book offer are the same bid iff bidder and amount match
// exactly; the order-book entry wins.
func merge(recorded, book []domain.Bid) []domain.Bid {
	merged := make([]domain.Bid, 0, len(recorded)+len(book))
	merged = append(merged, book...)

	for _, rec := range recorded {
		duplicate := false
		for _, b := range book {
			if domain.SameBid(rec, b) {
				duplicate = true
				observability.DefaultMetrics.BidMergeDuplicates.Inc()
				break
			}
		}
		if !duplicate {
			merged = append(merged, rec)
		}
	}
	return merged
}
