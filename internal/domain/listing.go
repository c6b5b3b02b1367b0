package domain

// ListingKind distinguishes the three ways a token can be put up for sale.
type ListingKind string

const (
	ListingFixedPrice   ListingKind = "FIXED_PRICE"
	ListingOpenBid      ListingKind = "OPEN_BID"
	ListingTimedAuction ListingKind = "TIMED_AUCTION"
)

// Valid reports whether k is one of the three listing kinds.
func (k ListingKind) Valid() bool {
	switch k {
	case ListingFixedPrice, ListingOpenBid, ListingTimedAuction:
		return true
	}
	return false
}

// Listing is an advertised intent to sell a token.
// "Sold" is a derived read (the creator no longer holds the unit),
// never a stored flag, so the struct carries no sold field.
type Listing struct {
	Token   Token       `json:"token"`
	Kind    ListingKind `json:"kind"`
	Creator string      `json:"creator"`

	// Price is the fixed price (FIXED_PRICE) or the minimum/starting
	// bid (OPEN_BID, TIMED_AUCTION), as a canonical decimal string.
	Price string `json:"price"`

	// MetadataRef is an opaque off-chain content id describing the
	// collectible. Mirrored on-ledger only when it fits the data slot.
	MetadataRef string `json:"metadataRef,omitempty"`

	// OfferID is the ledger sell-offer backing this listing, once known.
	OfferID uint64 `json:"offerId,omitempty"`

	// Verified is derived from issuer metadata, never user-supplied.
	Verified bool `json:"verified"`

	CreatedAt int64 `json:"createdAt"` // Unix milliseconds
}
