// Package auction drives the timed-auction lifecycle: expiry checks
// against ledger time, winner settlement, and the terminal status
// writes. Terminal states are idempotent; an expired auction is never
// left ACTIVE after a successful finalize.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stellar-nft-market/internal/bids"
	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
	"stellar-nft-market/internal/signing"
	"stellar-nft-market/internal/storage"
	"stellar-nft-market/internal/txassemble"
)

// Manager finalizes timed auctions. Expiry is anchored to the latest
// ledger close time so every observer agrees on "now"; the local clock
// is only a fallback when the ledger is unreachable.
type Manager struct {
	client    horizon.Client
	bids      *bids.Reconciler
	assembler *txassemble.Assembler
	signer    signing.Capability
	auctions  storage.AuctionStore
	sales     storage.SaleArchive
	store     offchain.Store
	logger    *log.Logger
	now       func() time.Time
}

// Options for creating a Manager. Sales and Offchain are optional;
// when set they receive best-effort writes that never block settlement.
type Options struct {
	Client    horizon.Client
	Bids      *bids.Reconciler
	Assembler *txassemble.Assembler
	Signer    signing.Capability
	Auctions  storage.AuctionStore
	Sales     storage.SaleArchive
	Offchain  offchain.Store
	Logger    *log.Logger
	Clock     func() time.Time
}

// New creates a Manager.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		client:    opts.Client,
		bids:      opts.Bids,
		assembler: opts.Assembler,
		signer:    opts.Signer,
		auctions:  opts.Auctions,
		sales:     opts.Sales,
		store:     opts.Offchain,
		logger:    logger,
		now:       now,
	}
}

// Outcome reports what CheckAndFinalize did.
type Outcome struct {
	Status domain.AuctionStatus

	// RemainingMillis is set only when the auction is still ACTIVE.
	RemainingMillis int64

	// Winner and WinningAmount are set for COMPLETED outcomes.
	Winner        string
	WinningAmount string

	// Receipt is the settlement confirmation when this call submitted
	// a transaction.
	Receipt *signing.Receipt

	// Finalized is true when this call performed the terminal
	// transition, false for no-op reads of already-settled auctions.
	Finalized bool
}

// CheckAndFinalize checks the auction for the token and, if its
// deadline has passed, settles it: highest reconciled bid wins, or the
// auction is cancelled when no bid exists. Calling it on an auction
// already in a terminal state is a no-op that reports that state. A
// still-running auction causes zero writes.
func (m *Manager) CheckAndFinalize(ctx context.Context, token domain.Token) (*Outcome, error) {
	a, err := m.auctions.GetByToken(ctx, token.Canonical())
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", token.Canonical(), err)
	}

	if a.Status.Terminal() {
		return &Outcome{
			Status:        a.Status,
			Winner:        a.Winner,
			WinningAmount: a.WinningAmount,
		}, nil
	}

	nowMillis := m.ledgerNow(ctx)
	if !a.Expired(nowMillis) {
		return &Outcome{
			Status:          domain.AuctionActive,
			RemainingMillis: a.EndTime - nowMillis,
		}, nil
	}

	top, err := m.bids.GetHighestBid(ctx, a.Token)
	if err != nil {
		return nil, fmt.Errorf("reconcile bids for %s: %w", a.Token.Canonical(), err)
	}

	return m.finalize(ctx, a, top, false)
}

// finalize performs the terminal transition. A stale-offer rejection
// means the winning buy offer vanished between reconciliation and
// submission; the bid set is re-queried and settlement retried exactly
// once with the fresh winner.
func (m *Manager) finalize(ctx context.Context, a *domain.Auction, top *domain.Bid, retried bool) (*Outcome, error) {
	var (
		receipt *signing.Receipt
		err     error
	)

	if top != nil {
		receipt, err = m.submit(ctx, a, txassemble.NewAcceptBidIntent(a.Token, a.Creator, *top))
	} else if a.OfferID != 0 {
		receipt, err = m.submit(ctx, a, txassemble.NewCancelIntent(a.Token, a.Creator, a.OfferID))
	}
	// top == nil with no backing sell offer: nothing on the ledger to
	// unwind, the status write below is the whole cancellation.

	if err != nil {
		var indeterminate *signing.IndeterminateOutcomeError
		if errors.As(err, &indeterminate) {
			// Unknown outcome: leave the auction ACTIVE for the next
			// sweep rather than guess a terminal state.
			return nil, err
		}
		if txassemble.IsStaleOffer(err) && !retried {
			m.logger.Printf("stale offer finalizing %s, re-querying bids", a.Token.Canonical())
			fresh, berr := m.bids.GetHighestBid(ctx, a.Token)
			if berr != nil {
				return nil, fmt.Errorf("re-query bids for %s: %w", a.Token.Canonical(), berr)
			}
			return m.finalize(ctx, a, fresh, true)
		}
		return nil, fmt.Errorf("finalize auction %s: %w", a.Token.Canonical(), err)
	}

	if top != nil {
		a.Status = domain.AuctionCompleted
		a.Winner = top.Bidder
		a.WinningAmount = top.Amount.String()
	} else {
		a.Status = domain.AuctionCancelled
	}

	if err := m.auctions.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("persist auction %s status %s: %w", a.Token.Canonical(), a.Status, err)
	}

	m.recordStatus(ctx, a, receipt)
	if a.Status == domain.AuctionCompleted && receipt != nil {
		m.archiveSale(ctx, a, top, receipt)
	}

	return &Outcome{
		Status:        a.Status,
		Winner:        a.Winner,
		WinningAmount: a.WinningAmount,
		Receipt:       receipt,
		Finalized:     true,
	}, nil
}

// submit builds, signs, and submits the settlement plan for the
// creator's account.
func (m *Manager) submit(ctx context.Context, a *domain.Auction, intent txassemble.Intent) (*signing.Receipt, error) {
	account, err := m.client.LoadAccount(ctx, a.Creator)
	if err != nil {
		return nil, fmt.Errorf("load creator account %s: %w", a.Creator, err)
	}
	plan, err := m.assembler.Build(intent, account)
	if err != nil {
		return nil, err
	}
	return m.signer.SignAndSubmit(ctx, plan)
}

// recordStatus pins the terminal status off-chain. Best-effort: the
// store index already holds the authoritative row.
func (m *Manager) recordStatus(ctx context.Context, a *domain.Auction, receipt *signing.Receipt) {
	if m.store == nil {
		return
	}
	rec := offchain.AuctionStatusRecord{
		Token:     a.Token,
		Status:    a.Status,
		Winner:    a.Winner,
		Amount:    a.WinningAmount,
		CreatedAt: m.now().UnixMilli(),
	}
	if receipt != nil {
		rec.TxHash = receipt.TxHash
	}
	if _, err := offchain.UpdateAuctionStatus(ctx, m.store, rec); err != nil {
		m.logger.Printf("pin auction status for %s: %v", a.Token.Canonical(), err)
	}
}

// archiveSale appends the settled sale to the archive. Best-effort.
func (m *Manager) archiveSale(ctx context.Context, a *domain.Auction, top *domain.Bid, receipt *signing.Receipt) {
	if m.sales == nil {
		return
	}
	rec := &domain.SaleRecord{
		SaleID:    domain.NewSaleID(receipt.TxHash, a.Token),
		Token:     a.Token,
		Kind:      domain.SaleAuctionWin,
		Seller:    a.Creator,
		Buyer:     top.Bidder,
		Amount:    top.Amount.String(),
		TxHash:    receipt.TxHash,
		Ledger:    receipt.Ledger,
		SettledAt: receipt.SettledAt,
	}
	if err := m.sales.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		m.logger.Printf("archive auction sale %s: %v", rec.SaleID, err)
	}
}

// Sweep finalizes every auction whose deadline has passed. Errors on
// individual auctions are logged and skipped so one stuck settlement
// cannot stall the rest. Returns the number of auctions finalized.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	nowMillis := m.ledgerNow(ctx)

	expired, err := m.auctions.ListExpiredActive(ctx, nowMillis)
	if err != nil {
		return 0, fmt.Errorf("list expired auctions: %w", err)
	}
	observability.DefaultMetrics.SweepBacklog.Set(float64(len(expired)))

	finalized := 0
	for _, a := range expired {
		outcome, err := m.CheckAndFinalize(ctx, a.Token)
		if err != nil {
			m.logger.Printf("finalize %s: %v", a.Token.Canonical(), err)
			continue
		}
		if outcome.Finalized {
			finalized++
			m.logger.Printf("auction %s finalized: %s", a.Token.Canonical(), outcome.Status)
		}
	}
	return finalized, nil
}

// ledgerNow returns the latest ledger close time, falling back to the
// local clock when the ledger is unreachable.
func (m *Manager) ledgerNow(ctx context.Context) int64 {
	lg, err := m.client.LatestLedger(ctx)
	if err != nil || lg == nil {
		m.logger.Printf("latest ledger unavailable, using local clock: %v", err)
		return m.now().UnixMilli()
	}
	return lg.CloseTime
}
