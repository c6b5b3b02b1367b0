package bids

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	hzstub "stellar-nft-market/internal/horizon/stub"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
	"stellar-nft-market/internal/offchain/memory"
)

var testToken = domain.Token{AssetCode: "MYNFT23", Issuer: "Issuer1"}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// bookBid installs a live buy offer for the token.
func bookBid(client *hzstub.Client, id uint64, bidder, price string, modified int64) {
	client.LiveOffers = append(client.LiveOffers, horizon.Offer{
		ID:           id,
		Seller:       bidder,
		Selling:      domain.NativeAsset,
		Buying:       testToken.Asset(),
		Amount:       domain.TokenUnit,
		Price:        price,
		LastModified: modified,
	})
}

func TestGetBids_MergesAndRanks(t *testing.T) {
	ctx := context.Background()
	client := hzstub.New()
	store := memory.NewStore()

	bookBid(client, 1, "BidderA", "10", 1000)
	bookBid(client, 2, "BidderB", "15", 2000)

	// Off-chain record duplicating BidderA's book bid: must collapse.
	_, err := offchain.PutBidRecord(ctx, store, offchain.BidRecord{
		Token: testToken, Bidder: "BidderA", Amount: "10", Timestamp: 900,
	})
	require.NoError(t, err)

	// Off-chain-only record: must survive the merge.
	_, err = offchain.PutBidRecord(ctx, store, offchain.BidRecord{
		Token: testToken, Bidder: "BidderC", Amount: "12", Timestamp: 1500,
	})
	require.NoError(t, err)

	r := New(Options{Client: client, Store: store, Logger: quietLogger()})

	bids, err := r.GetBids(ctx, testToken)
	require.NoError(t, err)
	require.Len(t, bids, 3)

	assert.Equal(t, "BidderB", bids[0].Bidder)
	assert.Equal(t, "15", bids[0].Amount.String())
	assert.Equal(t, "BidderC", bids[1].Bidder)
	assert.Equal(t, "BidderA", bids[2].Bidder)

	// The duplicate keeps the order-book entry, which is fillable.
	assert.Equal(t, domain.BidOriginOrderBook, bids[2].Origin)
	assert.Equal(t, uint64(1), bids[2].OfferID)
}

func TestGetBids_TiesBreakByEarliestTimestamp(t *testing.T) {
	ctx := context.Background()
	client := hzstub.New()

	bookBid(client, 1, "Late", "10", 2000)
	bookBid(client, 2, "Early", "10", 1000)

	r := New(Options{Client: client, Store: memory.NewStore(), Logger: quietLogger()})

	bids, err := r.GetBids(ctx, testToken)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, "Early", bids[0].Bidder)
}

// failingStore simulates an unreachable pinning service.
type failingStore struct{}

func (failingStore) Put(context.Context, []byte, []string) (string, error) {
	return "", offchain.ErrUnavailable
}
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, offchain.ErrUnavailable
}
func (failingStore) Find(context.Context, []string) ([]string, error) {
	return nil, offchain.ErrUnavailable
}
func (failingStore) Unpin(context.Context, string) error {
	return offchain.ErrUnavailable
}

func TestGetBids_StoreOutageNeverHidesBookBids(t *testing.T) {
	ctx := context.Background()
	client := hzstub.New()
	bookBid(client, 1, "BidderA", "10", 1000)

	r := New(Options{Client: client, Store: failingStore{}, Logger: quietLogger()})

	bids, err := r.GetBids(ctx, testToken)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "BidderA", bids[0].Bidder)
}

func TestGetBids_StoreOutageCountsDegradation(t *testing.T) {
	ctx := context.Background()
	client := hzstub.New()
	bookBid(client, 1, "BidderA", "10", 1000)

	runs := testutil.ToFloat64(observability.DefaultMetrics.BidsReconciled)
	degraded := testutil.ToFloat64(observability.DefaultMetrics.OffchainDegradation)

	r := New(Options{Client: client, Store: failingStore{}, Logger: quietLogger()})
	_, err := r.GetBids(ctx, testToken)
	require.NoError(t, err)

	assert.Equal(t, runs+1, testutil.ToFloat64(observability.DefaultMetrics.BidsReconciled))
	assert.Equal(t, degraded+1, testutil.ToFloat64(observability.DefaultMetrics.OffchainDegradation))

	// A healthy store run counts the reconciliation but not a degradation.
	healthy := New(Options{Client: client, Store: memory.NewStore(), Logger: quietLogger()})
	_, err = healthy.GetBids(ctx, testToken)
	require.NoError(t, err)

	assert.Equal(t, runs+2, testutil.ToFloat64(observability.DefaultMetrics.BidsReconciled))
	assert.Equal(t, degraded+1, testutil.ToFloat64(observability.DefaultMetrics.OffchainDegradation))
}

func TestGetHighestBid(t *testing.T) {
	ctx := context.Background()
	client := hzstub.New()
	store := memory.NewStore()
	r := New(Options{Client: client, Store: store, Logger: quietLogger()})

	// No bids anywhere: none.
	top, err := r.GetHighestBid(ctx, testToken)
	require.NoError(t, err)
	assert.Nil(t, top)

	bookBid(client, 1, "BidderA", "10", 1000)
	bookBid(client, 2, "BidderB", "15", 2000)

	top, err = r.GetHighestBid(ctx, testToken)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "BidderB", top.Bidder)
	assert.Equal(t, "15", top.Amount.String())
}
