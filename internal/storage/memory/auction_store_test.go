package memory

import (
	"context"
	"errors"
	"testing"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/storage"
)

func testAuction(code string, endTime int64, status domain.AuctionStatus) *domain.Auction {
	return &domain.Auction{
		Listing: domain.Listing{
			Token:   testToken(code),
			Kind:    domain.ListingTimedAuction,
			Creator: "creator1",
			Price:   "10",
		},
		StartTime: endTime - 86400000,
		EndTime:   endTime,
		Status:    status,
	}
}

func TestAuctionStore_InsertAndGet(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	a := testAuction("ARTPIECE", 1704067200000, domain.AuctionActive)

	err := store.Insert(ctx, a)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByToken(ctx, a.Token.Canonical())
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}

	if got.Status != domain.AuctionActive {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.AuctionActive)
	}
	if got.EndTime != a.EndTime {
		t.Errorf("EndTime mismatch: got %d, want %d", got.EndTime, a.EndTime)
	}
}

func TestAuctionStore_DuplicateKey(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	a := testAuction("ARTPIECE", 1704067200000, domain.AuctionActive)

	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, a)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestAuctionStore_UpdateStatus(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	a := testAuction("ARTPIECE", 1704067200000, domain.AuctionActive)

	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	a.Status = domain.AuctionCompleted
	a.Winner = "bidder1"
	a.WinningAmount = "42.5"
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByToken(ctx, a.Token.Canonical())
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if got.Status != domain.AuctionCompleted {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.AuctionCompleted)
	}
	if got.Winner != "bidder1" {
		t.Errorf("Winner mismatch: got %s, want bidder1", got.Winner)
	}
}

func TestAuctionStore_UpdateMissing(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	a := testAuction("ARTPIECE", 1704067200000, domain.AuctionActive)

	err := store.Update(ctx, a)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAuctionStore_ListExpiredActive(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	auctions := []*domain.Auction{
		testAuction("TOKA", 3000, domain.AuctionActive),
		testAuction("TOKB", 1000, domain.AuctionActive),
		testAuction("TOKC", 2000, domain.AuctionCompleted), // terminal, excluded
		testAuction("TOKD", 9000, domain.AuctionActive),    // not yet expired
	}

	for _, a := range auctions {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.ListExpiredActive(ctx, 5000)
	if err != nil {
		t.Fatalf("ListExpiredActive failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result))
	}

	// Oldest deadline first
	if result[0].Token.AssetCode != "TOKB" {
		t.Errorf("First result should be TOKB, got %s", result[0].Token.AssetCode)
	}
	if result[1].Token.AssetCode != "TOKA" {
		t.Errorf("Second result should be TOKA, got %s", result[1].Token.AssetCode)
	}
}

func TestAuctionStore_ListExpiredActiveBoundary(t *testing.T) {
	store := NewAuctionStore()
	ctx := context.Background()

	a := testAuction("TOKA", 5000, domain.AuctionActive)
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// EndTime == now counts as expired
	result, err := store.ListExpiredActive(ctx, 5000)
	if err != nil {
		t.Fatalf("ListExpiredActive failed: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("Expected 1 result at exact deadline, got %d", len(result))
	}
}
