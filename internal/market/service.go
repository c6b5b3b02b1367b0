// Package market is the application surface of the marketplace: it
// turns user requests into validated plans, drives signing and
// submission, and keeps the store index and off-chain records in step
// with what the ledger settled.
package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"stellar-nft-market/internal/auction"
	"stellar-nft-market/internal/bids"
	"stellar-nft-market/internal/cache"
	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
	"stellar-nft-market/internal/signing"
	"stellar-nft-market/internal/storage"
	"stellar-nft-market/internal/txassemble"
	"stellar-nft-market/internal/validate"
)

// DefaultBidCacheTTL bounds how stale a cached bid list may be.
const DefaultBidCacheTTL = 5 * time.Second

// TradeSubscriber registers interest in settled trades for a pair.
// Satisfied by horizon.TradeStream.
type TradeSubscriber interface {
	Subscribe(selling, buying domain.Asset) error
}

// Service exposes the marketplace operations. All writes settle on the
// ledger first; the store index and off-chain records follow.
type Service struct {
	client    horizon.Client
	assembler *txassemble.Assembler
	signer    signing.Capability
	bids      *bids.Reconciler
	auctions  *auction.Manager
	stream    TradeSubscriber

	listings     storage.ListingStore
	auctionStore storage.AuctionStore
	sales        storage.SaleArchive
	store        offchain.Store

	bidCache *cache.Cache[string, []domain.Bid]
	logger   *log.Logger
	now      func() time.Time
}

// Options for creating a Service. Sales and Offchain are optional and
// receive best-effort writes.
type Options struct {
	Client      horizon.Client
	Assembler   *txassemble.Assembler
	Signer      signing.Capability
	Bids        *bids.Reconciler
	Auctions    *auction.Manager
	Listings    storage.ListingStore
	AuctionRows storage.AuctionStore
	Sales       storage.SaleArchive
	Offchain    offchain.Store
	Stream      TradeSubscriber
	BidCacheTTL time.Duration
	Logger      *log.Logger
	Clock       func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ttl := opts.BidCacheTTL
	if ttl <= 0 {
		ttl = DefaultBidCacheTTL
	}
	return &Service{
		client:       opts.Client,
		assembler:    opts.Assembler,
		signer:       opts.Signer,
		bids:         opts.Bids,
		auctions:     opts.Auctions,
		stream:       opts.Stream,
		listings:     opts.Listings,
		auctionStore: opts.AuctionRows,
		sales:        opts.Sales,
		store:        opts.Offchain,
		bidCache:     cache.New[string, []domain.Bid](ttl),
		logger:       logger,
		now:          now,
	}
}

// ListRequest creates or supersedes a listing.
type ListRequest struct {
	Token       domain.Token
	Kind        domain.ListingKind
	Creator     string
	Price       string
	MetadataRef string

	// Auction window, TIMED_AUCTION only. Unix milliseconds.
	AuctionStart int64
	AuctionEnd   int64
}

// List puts a token up for sale. A token already listed by the same
// creator is superseded: the old sell offer is cancelled on the ledger
// before the new one is created, so at most one live sell offer backs
// any token.
func (s *Service) List(ctx context.Context, req ListRequest) (*domain.Listing, *signing.Receipt, error) {
	code, err := validate.NormalizeAssetCode(req.Token.AssetCode)
	if err != nil {
		observability.RecordValidationError(validate.Reason(err))
		return nil, nil, err
	}
	token := domain.Token{AssetCode: code, Issuer: req.Token.Issuer}

	existing, err := s.listings.GetByToken(ctx, token.Canonical())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("check existing listing: %w", err)
	}
	if existing != nil && existing.Creator == req.Creator && existing.OfferID != 0 {
		if _, err := s.submit(ctx, txassemble.NewCancelIntent(token, req.Creator, existing.OfferID)); err != nil {
			return nil, nil, fmt.Errorf("supersede listing %s: %w", token.Canonical(), err)
		}
		s.logger.Printf("superseded listing %s, cancelled offer %d", token.Canonical(), existing.OfferID)
	}

	intent := txassemble.NewListIntent(token, req.Kind, req.Creator, req.Price, req.MetadataRef, req.AuctionStart, req.AuctionEnd)
	receipt, err := s.submit(ctx, intent)
	if err != nil {
		return nil, nil, err
	}

	listing := &domain.Listing{
		Token:       token,
		Kind:        req.Kind,
		Creator:     req.Creator,
		Price:       req.Price,
		MetadataRef: req.MetadataRef,
		OfferID:     s.discoverOfferID(ctx, token, req.Creator),
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.upsertListing(ctx, listing, existing != nil); err != nil {
		return nil, nil, err
	}

	if req.Kind == domain.ListingTimedAuction {
		if err := s.upsertAuction(ctx, listing, req.AuctionStart, req.AuctionEnd); err != nil {
			return nil, nil, err
		}
	}

	if s.stream != nil {
		if err := s.stream.Subscribe(token.Asset(), domain.NativeAsset); err != nil {
			s.logger.Printf("subscribe trade stream %s: %v", token.Canonical(), err)
		}
	}

	s.bidCache.Evict(token.Canonical())
	return listing, receipt, nil
}

// Bid places a buy offer for the token and pins the bid record
// off-chain for history. The order book carries the authoritative bid;
// a failed pin only degrades history.
func (s *Service) Bid(ctx context.Context, token domain.Token, bidder, amount string) (*domain.Bid, *signing.Receipt, error) {
	// Canonicalize before submission; nothing may fail locally once
	// the ledger has settled the bid.
	canonical, err := validate.NormalizePrice(amount)
	if err != nil {
		observability.RecordValidationError(validate.Reason(err))
		return nil, nil, err
	}
	parsed, perr := decimal.NewFromString(canonical)
	if perr != nil {
		return nil, nil, fmt.Errorf("parse bid amount: %w", perr)
	}

	ts := s.now().UnixMilli()
	receipt, err := s.submit(ctx, txassemble.NewBidIntent(token, bidder, canonical, ts))
	if err != nil {
		return nil, nil, err
	}
	bid := &domain.Bid{
		Token:     token,
		Bidder:    bidder,
		Amount:    parsed,
		Timestamp: ts,
		Origin:    domain.BidOriginRecord,
	}

	if s.store != nil {
		rec := offchain.BidRecord{
			Token:     token,
			Bidder:    bidder,
			Amount:    parsed.String(),
			Timestamp: ts,
		}
		if _, err := offchain.PutBidRecord(ctx, s.store, rec); err != nil {
			s.logger.Printf("pin bid record for %s: %v", token.Canonical(), err)
		}
	}

	s.bidCache.Evict(token.Canonical())
	return bid, receipt, nil
}

// Buy settles a fixed-price purchase through the escrow pattern and
// retires the listing.
func (s *Service) Buy(ctx context.Context, token domain.Token, buyer string) (*domain.SaleRecord, *signing.Receipt, error) {
	listing, err := s.listings.GetByToken(ctx, token.Canonical())
	if err != nil {
		return nil, nil, fmt.Errorf("load listing %s: %w", token.Canonical(), err)
	}
	if listing.Kind != domain.ListingFixedPrice {
		return nil, nil, ErrNotFixedPrice
	}

	receipt, err := s.submit(ctx, txassemble.NewBuyIntent(listing.Token, buyer, listing.Price))
	if err != nil {
		return nil, nil, err
	}

	if err := s.listings.Delete(ctx, token.Canonical()); err != nil {
		s.logger.Printf("retire listing %s: %v", token.Canonical(), err)
	}

	sale := s.archiveSale(ctx, listing.Token, domain.SaleFixedPrice, listing.Creator, buyer, listing.Price, receipt)
	s.bidCache.Evict(token.Canonical())
	return sale, receipt, nil
}

// AcceptBid settles an open-bid listing against the highest reconciled
// bid. A stale-offer rejection re-queries the bid set and retries once.
// Timed auctions settle through CheckAndFinalizeAuction instead.
func (s *Service) AcceptBid(ctx context.Context, token domain.Token, actor string) (*domain.SaleRecord, *signing.Receipt, error) {
	listing, err := s.listings.GetByToken(ctx, token.Canonical())
	if err != nil {
		return nil, nil, fmt.Errorf("load listing %s: %w", token.Canonical(), err)
	}
	if listing.Creator != actor {
		return nil, nil, ErrNotCreator
	}
	if listing.Kind == domain.ListingTimedAuction {
		return nil, nil, ErrAuctionListing
	}

	top, err := s.bids.GetHighestBid(ctx, listing.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile bids for %s: %w", token.Canonical(), err)
	}
	if top == nil {
		return nil, nil, ErrNoBids
	}

	receipt, err := s.submit(ctx, txassemble.NewAcceptBidIntent(listing.Token, actor, *top))
	if txassemble.IsStaleOffer(err) {
		s.logger.Printf("stale offer accepting bid on %s, re-querying", token.Canonical())
		top, err = s.bids.GetHighestBid(ctx, listing.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("re-query bids for %s: %w", token.Canonical(), err)
		}
		if top == nil {
			return nil, nil, ErrNoBids
		}
		receipt, err = s.submit(ctx, txassemble.NewAcceptBidIntent(listing.Token, actor, *top))
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.listings.Delete(ctx, token.Canonical()); err != nil {
		s.logger.Printf("retire listing %s: %v", token.Canonical(), err)
	}

	sale := s.archiveSale(ctx, listing.Token, domain.SaleAcceptedBid, actor, top.Bidder, top.Amount.String(), receipt)
	s.bidCache.Evict(token.Canonical())
	return sale, receipt, nil
}

// Cancel withdraws a listing. Only the creator may cancel; an ACTIVE
// auction row transitions to CANCELLED.
func (s *Service) Cancel(ctx context.Context, token domain.Token, actor string) (*signing.Receipt, error) {
	listing, err := s.listings.GetByToken(ctx, token.Canonical())
	if err != nil {
		return nil, fmt.Errorf("load listing %s: %w", token.Canonical(), err)
	}
	if listing.Creator != actor {
		return nil, ErrNotCreator
	}

	var receipt *signing.Receipt
	if listing.OfferID != 0 {
		receipt, err = s.submit(ctx, txassemble.NewCancelIntent(listing.Token, actor, listing.OfferID))
		if err != nil {
			return nil, err
		}
	}

	if err := s.listings.Delete(ctx, token.Canonical()); err != nil {
		s.logger.Printf("retire listing %s: %v", token.Canonical(), err)
	}
	s.cancelAuctionRow(ctx, token)

	s.bidCache.Evict(token.Canonical())
	return receipt, nil
}

// ListingView is a listing plus derived state.
type ListingView struct {
	Listing domain.Listing `json:"listing"`

	// Sold reports whether the creator no longer holds the token unit.
	// Derived from the ledger on every read, never stored.
	Sold bool `json:"sold"`
}

// GetListing returns the listing with its derived sold state.
func (s *Service) GetListing(ctx context.Context, token domain.Token) (*ListingView, error) {
	listing, err := s.listings.GetByToken(ctx, token.Canonical())
	if err != nil {
		return nil, err
	}

	view := &ListingView{Listing: *listing}

	account, err := s.client.LoadAccount(ctx, listing.Creator)
	if err != nil {
		// Ledger read failure degrades to an unknown sold state.
		s.logger.Printf("load creator %s for sold check: %v", listing.Creator, err)
		return view, nil
	}

	balance := account.BalanceOf(listing.Token.Asset())
	if balance == "" {
		view.Sold = true
		return view, nil
	}
	held, perr := decimal.NewFromString(balance)
	view.Sold = perr == nil && !held.IsPositive()
	return view, nil
}

// GetBids returns the reconciled bid list, cached briefly.
func (s *Service) GetBids(ctx context.Context, token domain.Token) ([]domain.Bid, error) {
	key := token.Canonical()
	if cached, ok := s.bidCache.Get(key); ok {
		return cloneBids(cached), nil
	}

	result, err := s.bids.GetBids(ctx, token)
	if err != nil {
		return nil, err
	}

	// Cache a copy to prevent external mutation
	s.bidCache.Put(key, cloneBids(result))
	return result, nil
}

func cloneBids(bids []domain.Bid) []domain.Bid {
	out := make([]domain.Bid, len(bids))
	copy(out, bids)
	return out
}

// GetSales returns the archived sale history for the token, newest
// first. Returns nil without error when no archive is configured.
func (s *Service) GetSales(ctx context.Context, token domain.Token) ([]*domain.SaleRecord, error) {
	if s.sales == nil {
		return nil, nil
	}
	return s.sales.ListByToken(ctx, token.Canonical())
}

// ListByCreator returns the creator's listings, newest first.
func (s *Service) ListByCreator(ctx context.Context, creator string) ([]*domain.Listing, error) {
	return s.listings.ListByCreator(ctx, creator)
}

// CheckAndFinalizeAuction checks the token's auction deadline and
// settles it if expired. The listing row is retired on finalization.
func (s *Service) CheckAndFinalizeAuction(ctx context.Context, token domain.Token) (*auction.Outcome, error) {
	outcome, err := s.auctions.CheckAndFinalize(ctx, token)
	if err != nil {
		return nil, err
	}

	if outcome.Finalized {
		observability.RecordFinalized(string(outcome.Status))
		if err := s.listings.Delete(ctx, token.Canonical()); err != nil {
			s.logger.Printf("retire auction listing %s: %v", token.Canonical(), err)
		}
		s.bidCache.Evict(token.Canonical())
	}
	return outcome, nil
}

// submit loads fresh account state, builds the plan, and drives it
// through the signing capability, recording metrics along the way.
func (s *Service) submit(ctx context.Context, intent txassemble.Intent) (*signing.Receipt, error) {
	account, err := s.client.LoadAccount(ctx, intent.Actor)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", intent.Actor, err)
	}

	plan, err := s.assembler.Build(intent, account)
	if err != nil {
		return nil, err
	}
	observability.RecordPlanBuilt(string(intent.Kind))

	start := s.now()
	receipt, err := s.signer.SignAndSubmit(ctx, plan)
	observability.DefaultMetrics.SubmissionLatency.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		var indeterminate *signing.IndeterminateOutcomeError
		switch {
		case errors.As(err, &indeterminate):
			observability.RecordSubmission("indeterminate")
		default:
			observability.RecordSubmission("rejected")
		}
		return nil, err
	}

	observability.RecordSubmission("success")
	return receipt, nil
}

// discoverOfferID looks up the live sell offer backing the new listing.
// Best-effort: a failed read leaves the id unset until the next sync.
func (s *Service) discoverOfferID(ctx context.Context, token domain.Token, creator string) uint64 {
	asset := token.Asset()
	offers, err := s.client.Offers(ctx, horizon.OfferFilter{
		Seller:  creator,
		Selling: &asset,
		Limit:   1,
	})
	if err != nil || len(offers) == 0 {
		if err != nil {
			s.logger.Printf("discover offer id for %s: %v", token.Canonical(), err)
		}
		return 0
	}
	return offers[0].ID
}

func (s *Service) upsertListing(ctx context.Context, listing *domain.Listing, exists bool) error {
	if exists {
		if err := s.listings.Update(ctx, listing); err != nil {
			return fmt.Errorf("update listing %s: %w", listing.Token.Canonical(), err)
		}
		return nil
	}
	err := s.listings.Insert(ctx, listing)
	if errors.Is(err, storage.ErrDuplicateKey) {
		err = s.listings.Update(ctx, listing)
	}
	if err != nil {
		return fmt.Errorf("store listing %s: %w", listing.Token.Canonical(), err)
	}
	return nil
}

func (s *Service) upsertAuction(ctx context.Context, listing *domain.Listing, start, end int64) error {
	row := &domain.Auction{
		Listing:   *listing,
		StartTime: start,
		EndTime:   end,
		Status:    domain.AuctionActive,
	}
	err := s.auctionStore.Insert(ctx, row)
	if errors.Is(err, storage.ErrDuplicateKey) {
		err = s.auctionStore.Update(ctx, row)
	}
	if err != nil {
		return fmt.Errorf("store auction %s: %w", listing.Token.Canonical(), err)
	}
	return nil
}

// cancelAuctionRow moves an ACTIVE auction row to CANCELLED. Terminal
// rows are left alone.
func (s *Service) cancelAuctionRow(ctx context.Context, token domain.Token) {
	row, err := s.auctionStore.GetByToken(ctx, token.Canonical())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("load auction row %s: %v", token.Canonical(), err)
		}
		return
	}
	if row.Status.Terminal() {
		return
	}
	row.Status = domain.AuctionCancelled
	if err := s.auctionStore.Update(ctx, row); err != nil {
		s.logger.Printf("cancel auction row %s: %v", token.Canonical(), err)
	}
}

// archiveSale appends the settled sale. Best-effort.
func (s *Service) archiveSale(ctx context.Context, token domain.Token, kind domain.SaleKind, seller, buyer, amount string, receipt *signing.Receipt) *domain.SaleRecord {
	rec := &domain.SaleRecord{
		SaleID:    domain.NewSaleID(receipt.TxHash, token),
		Token:     token,
		Kind:      kind,
		Seller:    seller,
		Buyer:     buyer,
		Amount:    amount,
		TxHash:    receipt.TxHash,
		Ledger:    receipt.Ledger,
		SettledAt: receipt.SettledAt,
	}
	if rec.SettledAt == 0 {
		rec.SettledAt = s.now().UnixMilli()
	}
	if s.sales == nil {
		return rec
	}
	if err := s.sales.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.logger.Printf("archive sale %s: %v", rec.SaleID, err)
	}
	return rec
}

// WatchTrades drains settled trades from the live stream. A trade
// touching a collectible invalidates its cached bids so the next read
// reflects the post-trade order book. Returns when the channel closes
// or ctx is cancelled.
func (s *Service) WatchTrades(ctx context.Context, events <-chan horizon.TradeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			token, ok := tradedToken(ev)
			if !ok {
				continue
			}
			s.bidCache.Evict(token.Canonical())
			s.logger.Printf("trade observed for %s: %s -> %s, amount %s",
				token.Canonical(), ev.Seller, ev.Buyer, ev.Amount)
		}
	}
}

// tradedToken extracts the collectible leg of a trade; the other leg
// is always the native currency.
func tradedToken(ev horizon.TradeEvent) (domain.Token, bool) {
	switch {
	case !ev.Selling.IsNative():
		return domain.Token{AssetCode: ev.Selling.Code, Issuer: ev.Selling.Issuer}, true
	case !ev.Buying.IsNative():
		return domain.Token{AssetCode: ev.Buying.Code, Issuer: ev.Buying.Issuer}, true
	}
	return domain.Token{}, false
}
