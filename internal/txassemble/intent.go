// Package txassemble turns marketplace intents into ordered
// ledger-operation plans. It is the single parameterized code path for
// all listing kinds; the assembler never signs and never submits.
package txassemble

import (
	"stellar-nft-market/internal/domain"
)

// IntentKind tags the MarketplaceIntent union.
type IntentKind string

const (
	IntentList      IntentKind = "LIST"
	IntentBid       IntentKind = "BID"
	IntentBuy       IntentKind = "BUY"
	IntentAcceptBid IntentKind = "ACCEPT_BID"
	IntentCancel    IntentKind = "CANCEL"
)

// Intent is a marketplace intent: one tagged value per core operation.
// Only the fields relevant to the Kind are set; constructors below keep
// call sites honest.
type Intent struct {
	Kind  IntentKind
	Token domain.Token

	// Actor is the account the plan is built for: the creator for
	// LIST/ACCEPT_BID/CANCEL, the bidder for BID, the buyer for BUY.
	Actor string

	// Price is the raw price input: fixed price, bid amount, buy amount,
	// or minimum/starting bid, depending on Kind.
	Price string

	// LIST fields.
	ListingKind  domain.ListingKind
	MetadataRef  string
	AuctionStart int64 // Unix milliseconds, TIMED_AUCTION only
	AuctionEnd   int64 // Unix milliseconds, TIMED_AUCTION only

	// BID fields.
	BidTimestamp int64 // Unix milliseconds

	// ACCEPT_BID fields.
	WinningBid *domain.Bid

	// CANCEL fields.
	OfferID uint64 // the existing sell offer to cancel
}

// NewListIntent builds a LIST intent. For TIMED_AUCTION listings start
// and end bound the auction; other kinds ignore them.
func NewListIntent(token domain.Token, kind domain.ListingKind, creator, price, metadataRef string, start, end int64) Intent {
	return Intent{
		Kind:         IntentList,
		Token:        token,
		Actor:        creator,
		Price:        price,
		ListingKind:  kind,
		MetadataRef:  metadataRef,
		AuctionStart: start,
		AuctionEnd:   end,
	}
}

// NewBidIntent builds a BID intent.
func NewBidIntent(token domain.Token, bidder, amount string, timestamp int64) Intent {
	return Intent{
		Kind:         IntentBid,
		Token:        token,
		Actor:        bidder,
		Price:        amount,
		BidTimestamp: timestamp,
	}
}

// NewBuyIntent builds a BUY intent for a fixed-price listing.
func NewBuyIntent(token domain.Token, buyer, price string) Intent {
	return Intent{
		Kind:  IntentBuy,
		Token: token,
		Actor: buyer,
		Price: price,
	}
}

// NewAcceptBidIntent builds an ACCEPT_BID intent for the winning bid.
func NewAcceptBidIntent(token domain.Token, owner string, winning domain.Bid) Intent {
	return Intent{
		Kind:       IntentAcceptBid,
		Token:      token,
		Actor:      owner,
		Price:      winning.Amount.String(),
		WinningBid: &winning,
	}
}

// NewCancelIntent builds a CANCEL intent for an existing sell offer.
func NewCancelIntent(token domain.Token, owner string, offerID uint64) Intent {
	return Intent{
		Kind:    IntentCancel,
		Token:   token,
		Actor:   owner,
		OfferID: offerID,
	}
}
