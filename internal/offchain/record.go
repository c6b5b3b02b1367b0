package offchain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stellar-nft-market/internal/domain"
)

// Record tags.
const (
	TagBid           = "bid"
	TagAuctionStatus = "auction-status"
	TagMetadata      = "token-metadata"
)

// TokenTag scopes a record to one token.
func TokenTag(token domain.Token) string {
	return "token:" + token.Canonical()
}

// BidRecord is the pinned off-chain form of a bid. Best-effort: the
// order book remains the authoritative source for fillable bids.
type BidRecord struct {
	RecordID  string       `json:"recordId"`
	Token     domain.Token `json:"token"`
	Bidder    string       `json:"bidder"`
	Amount    string       `json:"amount"` // canonical decimal string
	Timestamp int64        `json:"timestamp"`
}

// PutBidRecord pins a bid record tagged with its token.
func PutBidRecord(ctx context.Context, store Store, rec BidRecord) (string, error) {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	content, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode bid record: %w", err)
	}
	return store.Put(ctx, content, []string{TagBid, TokenTag(rec.Token)})
}

// FindBidRecords retrieves all pinned bid records for a token and
// converts them to domain bids. A nil store yields no records.
func FindBidRecords(ctx context.Context, store Store, token domain.Token) ([]domain.Bid, error) {
	if store == nil {
		return nil, nil
	}
	ids, err := store.Find(ctx, []string{TagBid, TokenTag(token)})
	if err != nil {
		return nil, err
	}

	var bids []domain.Bid
	for _, id := range ids {
		content, err := store.Get(ctx, id)
		if err != nil {
			// Pinned-then-unpinned race; skip the gone record.
			continue
		}
		var rec BidRecord
		if err := json.Unmarshal(content, &rec); err != nil {
			continue
		}
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			continue
		}
		bids = append(bids, domain.Bid{
			Token:     rec.Token,
			Bidder:    rec.Bidder,
			Amount:    amount,
			Timestamp: rec.Timestamp,
			Origin:    domain.BidOriginRecord,
		})
	}
	return bids, nil
}

// AuctionStatusRecord is the pinned lifecycle state of an auction.
type AuctionStatusRecord struct {
	RecordID  string               `json:"recordId"`
	Token     domain.Token         `json:"token"`
	Status    domain.AuctionStatus `json:"status"`
	Winner    string               `json:"winner,omitempty"`
	Amount    string               `json:"amount,omitempty"`
	TxHash    string               `json:"txHash,omitempty"`
	CreatedAt int64                `json:"createdAt"` // Unix milliseconds
}

// UpdateAuctionStatus pins the new status record, then unpins previous
// ones. A crash between the two steps leaves both pinned; readers
// resolve that by taking the record with the greatest CreatedAt.
func UpdateAuctionStatus(ctx context.Context, store Store, rec AuctionStatusRecord) (string, error) {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}

	tags := []string{TagAuctionStatus, TokenTag(rec.Token)}

	previous, err := store.Find(ctx, tags)
	if err != nil {
		return "", fmt.Errorf("find previous status records: %w", err)
	}

	content, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode status record: %w", err)
	}
	id, err := store.Put(ctx, content, tags)
	if err != nil {
		return "", fmt.Errorf("pin status record: %w", err)
	}

	for _, old := range previous {
		if old == id {
			continue
		}
		// Unpin failures leave a stale duplicate behind; readers pick
		// the newest record, so this is safe to ignore.
		_ = store.Unpin(ctx, old)
	}
	return id, nil
}

// LatestAuctionStatus returns the most recently created status record
// for the token, or ErrNotFound when none exists.
func LatestAuctionStatus(ctx context.Context, store Store, token domain.Token) (*AuctionStatusRecord, error) {
	ids, err := store.Find(ctx, []string{TagAuctionStatus, TokenTag(token)})
	if err != nil {
		return nil, err
	}

	var latest *AuctionStatusRecord
	for _, id := range ids {
		content, err := store.Get(ctx, id)
		if err != nil {
			continue
		}
		var rec AuctionStatusRecord
		if err := json.Unmarshal(content, &rec); err != nil {
			continue
		}
		if latest == nil || rec.CreatedAt > latest.CreatedAt {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}
