package market

import "errors"

var (
	// ErrNoBids means accept-bid found no live bid in either source.
	ErrNoBids = errors.New("no live bids for token")

	// ErrNotCreator means the actor does not own the listing.
	ErrNotCreator = errors.New("actor is not the listing creator")

	// ErrNotFixedPrice means buy was called on a bid-style listing.
	ErrNotFixedPrice = errors.New("listing is not fixed-price")

	// ErrAuctionListing means the operation must go through the
	// auction lifecycle instead of direct accept-bid.
	ErrAuctionListing = errors.New("timed auctions settle through finalization")
)
