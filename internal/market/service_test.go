package market

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-nft-market/internal/auction"
	"stellar-nft-market/internal/bids"
	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	hstub "stellar-nft-market/internal/horizon/stub"
	"stellar-nft-market/internal/offchain"
	offmem "stellar-nft-market/internal/offchain/memory"
	sstub "stellar-nft-market/internal/signing/stub"
	"stellar-nft-market/internal/storage"
	storemem "stellar-nft-market/internal/storage/memory"
	"stellar-nft-market/internal/txassemble"
	"stellar-nft-market/internal/validate"
)

const (
	testIssuer  = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	testCreator = "creator1"
	testBuyer   = "buyer1"
	testEscrow  = "escrow1"
	testNow     = int64(1700000000000)
)

type fixture struct {
	client   *hstub.Client
	signer   *sstub.Signer
	listings *storemem.ListingStore
	auctions *storemem.AuctionStore
	sales    *storemem.SaleArchive
	offchain *offmem.Store
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := hstub.New()
	client.Ledger = horizon.Ledger{Sequence: 500, CloseTime: testNow}
	client.SetAccount(&horizon.Account{Address: testCreator, Sequence: 7})
	client.SetAccount(&horizon.Account{Address: testBuyer, Sequence: 3})

	signer := sstub.New()
	listings := storemem.NewListingStore()
	auctionRows := storemem.NewAuctionStore()
	sales := storemem.NewSaleArchive()
	off := offmem.NewStore()
	logger := log.New(testWriter{t}, "", 0)
	clock := func() time.Time { return time.UnixMilli(testNow) }

	assembler := txassemble.NewAssembler(testEscrow, txassemble.WithClock(clock))
	reconciler := bids.New(bids.Options{Client: client, Store: off, Logger: logger})

	manager := auction.New(auction.Options{
		Client:    client,
		Bids:      reconciler,
		Assembler: assembler,
		Signer:    signer,
		Auctions:  auctionRows,
		Sales:     sales,
		Offchain:  off,
		Logger:    logger,
		Clock:     clock,
	})

	service := New(Options{
		Client:      client,
		Assembler:   assembler,
		Signer:      signer,
		Bids:        reconciler,
		Auctions:    manager,
		Listings:    listings,
		AuctionRows: auctionRows,
		Sales:       sales,
		Offchain:    off,
		Logger:      logger,
		Clock:       clock,
	})

	return &fixture{
		client:   client,
		signer:   signer,
		listings: listings,
		auctions: auctionRows,
		sales:    sales,
		offchain: off,
		service:  service,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func testToken(code string) domain.Token {
	return domain.Token{AssetCode: code, Issuer: testIssuer}
}

func sellOffer(code string, id uint64) horizon.Offer {
	return horizon.Offer{
		ID:      id,
		Seller:  testCreator,
		Selling: domain.Asset{Code: code, Issuer: testIssuer},
		Buying:  domain.NativeAsset,
		Amount:  domain.TokenUnit,
		Price:   "25",
	}
}

func buyOffer(code, bidder, price string, id uint64, modified int64) horizon.Offer {
	return horizon.Offer{
		ID:           id,
		Seller:       bidder,
		Selling:      domain.NativeAsset,
		Buying:       domain.Asset{Code: code, Issuer: testIssuer},
		Amount:       domain.TokenUnit,
		Price:        price,
		LastModified: modified,
	}
}

func TestService_ListFixedPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.SetOffers([]horizon.Offer{sellOffer("ARTPIECE", 555)})

	listing, receipt, err := f.service.List(ctx, ListRequest{
		Token:       testToken("ARTPIECE"),
		Kind:        domain.ListingFixedPrice,
		Creator:     testCreator,
		Price:       "25",
		MetadataRef: "QmMeta123",
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, uint64(555), listing.OfferID)
	assert.Equal(t, testNow, listing.CreatedAt)

	// Plan leads with the sell offer.
	require.Equal(t, 1, f.signer.Calls())
	sell, ok := f.signer.Plans[0].Operations[0].(txassemble.CreateSellOffer)
	require.True(t, ok)
	assert.Equal(t, "25", sell.Price)
	assert.Equal(t, domain.TokenUnit, sell.Amount)

	stored, err := f.listings.GetByToken(ctx, listing.Token.Canonical())
	require.NoError(t, err)
	assert.Equal(t, domain.ListingFixedPrice, stored.Kind)
}

func TestService_ListNormalizesAssetCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing, _, err := f.service.List(ctx, ListRequest{
		Token:   testToken("myNFT-23"),
		Kind:    domain.ListingFixedPrice,
		Creator: testCreator,
		Price:   "10",
	})
	require.NoError(t, err)
	assert.Equal(t, "MYNFT23", listing.Token.AssetCode)
}

func TestService_ListRejectsInvalidPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.List(ctx, ListRequest{
		Token:   testToken("ARTPIECE"),
		Kind:    domain.ListingFixedPrice,
		Creator: testCreator,
		Price:   "0.00000001", // below the price grid
	})
	require.Error(t, err)
	assert.Zero(t, f.signer.Calls())

	_, gerr := f.listings.GetByToken(ctx, testToken("ARTPIECE").Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)
}

func TestService_ListSupersedesOwnListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:     testToken("ARTPIECE"),
		Kind:      domain.ListingFixedPrice,
		Creator:   testCreator,
		Price:     "25",
		OfferID:   555,
		CreatedAt: testNow - 1000,
	}))

	listing, _, err := f.service.List(ctx, ListRequest{
		Token:   testToken("ARTPIECE"),
		Kind:    domain.ListingFixedPrice,
		Creator: testCreator,
		Price:   "30",
	})
	require.NoError(t, err)

	// First submission cancels offer 555, second creates the new one.
	require.Equal(t, 2, f.signer.Calls())
	cancel, ok := f.signer.Plans[0].Operations[0].(txassemble.CreateSellOffer)
	require.True(t, ok)
	assert.Equal(t, "0", cancel.Amount)
	assert.Equal(t, uint64(555), cancel.OfferID)

	assert.Equal(t, "30", listing.Price)

	stored, err := f.listings.GetByToken(ctx, listing.Token.Canonical())
	require.NoError(t, err)
	assert.Equal(t, "30", stored.Price)
}

func TestService_ListTimedAuctionCreatesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	end := testNow + 3600000
	listing, _, err := f.service.List(ctx, ListRequest{
		Token:        testToken("ARTPIECE"),
		Kind:         domain.ListingTimedAuction,
		Creator:      testCreator,
		Price:        "10",
		AuctionStart: testNow,
		AuctionEnd:   end,
	})
	require.NoError(t, err)

	row, err := f.auctions.GetByToken(ctx, listing.Token.Canonical())
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, row.Status)
	assert.Equal(t, end, row.EndTime)
}

func TestService_ListTimedAuctionRejectsPastEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.List(ctx, ListRequest{
		Token:        testToken("ARTPIECE"),
		Kind:         domain.ListingTimedAuction,
		Creator:      testCreator,
		Price:        "10",
		AuctionStart: testNow - 7200000,
		AuctionEnd:   testNow - 3600000,
	})
	require.Error(t, err)
	assert.Zero(t, f.signer.Calls())

	_, gerr := f.auctions.GetByToken(ctx, testToken("ARTPIECE").Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)
}

func TestService_BidPinsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.SetAccount(&horizon.Account{Address: "bidder1", Sequence: 11})

	bid, receipt, err := f.service.Bid(ctx, testToken("ARTPIECE"), "bidder1", "42.5")
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, "bidder1", bid.Bidder)
	assert.Equal(t, "42.5", bid.Amount.String())
	assert.Equal(t, domain.BidOriginRecord, bid.Origin)

	recorded, err := offchain.FindBidRecords(ctx, f.offchain, testToken("ARTPIECE"))
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "bidder1", recorded[0].Bidder)
}

func TestService_BidNormalizesPaddedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.SetAccount(&horizon.Account{Address: "bidder1", Sequence: 11})

	// A settled submission must always come back with its receipt,
	// even when the raw amount carries whitespace.
	bid, receipt, err := f.service.Bid(ctx, testToken("ARTPIECE"), "bidder1", " 5.5 ")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.NotNil(t, bid)

	assert.Equal(t, "5.5", bid.Amount.String())
	assert.Equal(t, 1, f.signer.Calls())

	recorded, err := offchain.FindBidRecords(ctx, f.offchain, testToken("ARTPIECE"))
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "5.5", recorded[0].Amount.String())
}

func TestService_BidRejectsInvalidAmountBeforeSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.SetAccount(&horizon.Account{Address: "bidder1", Sequence: 11})

	_, _, err := f.service.Bid(ctx, testToken("ARTPIECE"), "bidder1", "not-a-number")
	var priceErr *validate.InvalidPriceError
	require.ErrorAs(t, err, &priceErr)
	assert.Zero(t, f.signer.Calls())
}

func TestService_BuySettlesFixedPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingFixedPrice,
		Creator: testCreator,
		Price:   "25.5",
		OfferID: 555,
	}))

	sale, receipt, err := f.service.Buy(ctx, token, testBuyer)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	// Escrow pattern: trustline, payment, buy offer.
	require.Equal(t, 1, f.signer.Calls())
	ops := f.signer.Plans[0].Operations
	require.Len(t, ops, 3)
	_, ok := ops[0].(txassemble.ChangeTrust)
	assert.True(t, ok)
	payment, ok := ops[1].(txassemble.Payment)
	require.True(t, ok)
	assert.Equal(t, testEscrow, payment.Destination)
	assert.Equal(t, "25.5", payment.Amount)
	_, ok = ops[2].(txassemble.CreateBuyOffer)
	assert.True(t, ok)

	assert.Equal(t, domain.SaleFixedPrice, sale.Kind)
	assert.Equal(t, testCreator, sale.Seller)
	assert.Equal(t, testBuyer, sale.Buyer)
	assert.Equal(t, "25.5", sale.Amount)

	// Listing retired, sale archived.
	_, gerr := f.listings.GetByToken(ctx, token.Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)

	archived, err := f.sales.ListByToken(ctx, token.Canonical())
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestService_BuyRejectsBidListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingOpenBid,
		Creator: testCreator,
		Price:   "10",
	}))

	_, _, err := f.service.Buy(ctx, token, testBuyer)
	assert.ErrorIs(t, err, ErrNotFixedPrice)
	assert.Zero(t, f.signer.Calls())
}

func TestService_AcceptBidSettlesHighest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingOpenBid,
		Creator: testCreator,
		Price:   "10",
		OfferID: 555,
	}))
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
		buyOffer("ARTPIECE", "bidder2", "30", 902, 3000),
	})

	sale, _, err := f.service.AcceptBid(ctx, token, testCreator)
	require.NoError(t, err)

	assert.Equal(t, domain.SaleAcceptedBid, sale.Kind)
	assert.Equal(t, "bidder1", sale.Buyer)
	assert.Equal(t, "42.5", sale.Amount)

	sell, ok := f.signer.Plans[0].Operations[0].(txassemble.CreateSellOffer)
	require.True(t, ok)
	assert.Equal(t, "42.5", sell.Price)

	_, gerr := f.listings.GetByToken(ctx, token.Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)
}

func TestService_AcceptBidChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingOpenBid,
		Creator: testCreator,
		Price:   "10",
	}))

	_, _, err := f.service.AcceptBid(ctx, token, "stranger")
	assert.ErrorIs(t, err, ErrNotCreator)

	_, _, err = f.service.AcceptBid(ctx, token, testCreator)
	assert.ErrorIs(t, err, ErrNoBids)
}

func TestService_AcceptBidRejectsAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingTimedAuction,
		Creator: testCreator,
		Price:   "10",
	}))

	_, _, err := f.service.AcceptBid(ctx, token, testCreator)
	assert.ErrorIs(t, err, ErrAuctionListing)
}

func TestService_AcceptBidStaleOfferRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingOpenBid,
		Creator: testCreator,
		Price:   "10",
		OfferID: 555,
	}))
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
	})

	f.signer.Queue(nil, &txassemble.ResourceStateError{
		OperationIndex: 0,
		LedgerCode:     horizon.OpOfferNotFound,
		Reason:         "offer withdrawn",
	})

	sale, _, err := f.service.AcceptBid(ctx, token, testCreator)
	require.NoError(t, err)
	assert.Equal(t, 2, f.signer.Calls())
	assert.Equal(t, "bidder1", sale.Buyer)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingTimedAuction,
		Creator: testCreator,
		Price:   "10",
		OfferID: 555,
	}))
	require.NoError(t, f.auctions.Insert(ctx, &domain.Auction{
		Listing: domain.Listing{
			Token:   token,
			Kind:    domain.ListingTimedAuction,
			Creator: testCreator,
			Price:   "10",
		},
		EndTime: testNow + 3600000,
		Status:  domain.AuctionActive,
	}))

	_, err := f.service.Cancel(ctx, token, "stranger")
	assert.ErrorIs(t, err, ErrNotCreator)

	receipt, err := f.service.Cancel(ctx, token, testCreator)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	_, gerr := f.listings.GetByToken(ctx, token.Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)

	row, err := f.auctions.GetByToken(ctx, token.Canonical())
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCancelled, row.Status)
}

func TestService_GetListingDerivesSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingFixedPrice,
		Creator: testCreator,
		Price:   "25",
	}))

	// Creator still holds the unit.
	f.client.SetAccount(&horizon.Account{
		Address:  testCreator,
		Sequence: 7,
		Balances: []horizon.Balance{{Asset: token.Asset(), Amount: "1"}},
	})
	view, err := f.service.GetListing(ctx, token)
	require.NoError(t, err)
	assert.False(t, view.Sold)

	// Balance drained to zero: sold.
	f.client.SetAccount(&horizon.Account{
		Address:  testCreator,
		Sequence: 7,
		Balances: []horizon.Balance{{Asset: token.Asset(), Amount: "0"}},
	})
	view, err = f.service.GetListing(ctx, token)
	require.NoError(t, err)
	assert.True(t, view.Sold)

	// No balance line at all: sold.
	f.client.SetAccount(&horizon.Account{Address: testCreator, Sequence: 7})
	view, err = f.service.GetListing(ctx, token)
	require.NoError(t, err)
	assert.True(t, view.Sold)
}

func TestService_GetBidsCachesBriefly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
	})

	first, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// New offer lands; the cached list is served until the TTL lapses.
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
		buyOffer("ARTPIECE", "bidder2", "50", 902, 5000),
	})
	second, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}

func TestService_GetBidsCachedListIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
	})

	first, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Mutating a returned list must not bleed into the cache.
	first[0].Bidder = "mangled"

	second, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "bidder1", second[0].Bidder)
}

func TestService_FinalizeAuctionRetiresListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	require.NoError(t, f.listings.Insert(ctx, &domain.Listing{
		Token:   token,
		Kind:    domain.ListingTimedAuction,
		Creator: testCreator,
		Price:   "10",
		OfferID: 555,
	}))
	require.NoError(t, f.auctions.Insert(ctx, &domain.Auction{
		Listing: domain.Listing{
			Token:   token,
			Kind:    domain.ListingTimedAuction,
			Creator: testCreator,
			Price:   "10",
			OfferID: 555,
		},
		EndTime: testNow - 1000,
		Status:  domain.AuctionActive,
	}))
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
	})

	outcome, err := f.service.CheckAndFinalizeAuction(ctx, token)
	require.NoError(t, err)

	assert.Equal(t, domain.AuctionCompleted, outcome.Status)
	assert.True(t, outcome.Finalized)

	_, gerr := f.listings.GetByToken(ctx, token.Canonical())
	assert.ErrorIs(t, gerr, storage.ErrNotFound)
}

func TestService_WatchTradesEvictsBidCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := testToken("ARTPIECE")
	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
	})

	first, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.client.SetOffers([]horizon.Offer{
		buyOffer("ARTPIECE", "bidder1", "42.5", 901, 4000),
		buyOffer("ARTPIECE", "bidder2", "50", 902, 5000),
	})

	// A settled trade on the token invalidates the cached list.
	events := make(chan horizon.TradeEvent, 1)
	events <- horizon.TradeEvent{
		Selling: domain.Asset{Code: "ARTPIECE", Issuer: testIssuer},
		Buying:  domain.NativeAsset,
		Seller:  testCreator,
		Buyer:   testBuyer,
		Amount:  domain.TokenUnit,
	}
	close(events)
	f.service.WatchTrades(ctx, events)

	second, err := f.service.GetBids(ctx, token)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestTradedToken(t *testing.T) {
	ev := horizon.TradeEvent{
		Selling: domain.NativeAsset,
		Buying:  domain.Asset{Code: "ARTPIECE", Issuer: testIssuer},
	}
	token, ok := tradedToken(ev)
	require.True(t, ok)
	assert.Equal(t, testToken("ARTPIECE"), token)

	_, ok = tradedToken(horizon.TradeEvent{Selling: domain.NativeAsset, Buying: domain.NativeAsset})
	assert.False(t, ok)
}
