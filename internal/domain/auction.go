package domain

// AuctionStatus is the lifecycle state of a timed auction.
// Transitions are monotonic; COMPLETED and CANCELLED are terminal.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

// Auction is a timed-auction listing with a hard deadline.
type Auction struct {
	Listing

	StartTime int64         `json:"startTime"` // Unix milliseconds
	EndTime   int64         `json:"endTime"`   // Unix milliseconds
	Status    AuctionStatus `json:"status"`

	// Winner and WinningAmount are set only in the COMPLETED state.
	Winner        string `json:"winner,omitempty"`
	WinningAmount string `json:"winningAmount,omitempty"`
}

// Expired reports whether the deadline has passed at the given instant.
func (a *Auction) Expired(nowMillis int64) bool {
	return nowMillis >= a.EndTime
}
