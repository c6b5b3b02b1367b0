package txassemble

import (
	"fmt"
	"strconv"
	"time"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/validate"
)

// Default assembler configuration.
const (
	DefaultBaseFee        = 100 // stroops per operation
	DefaultValidityWindow = 5 * time.Minute
	DefaultTrustLimit     = domain.TokenUnit
)

// Data-entry names annotating a listing on the creator's account.
// All are keyed by asset code; the issuer is implied by the account.
func dataKeyKind(code string) string   { return "mkt:kind:" + code }
func dataKeyMin(code string) string    { return "mkt:min:" + code }
func dataKeyEnd(code string) string    { return "mkt:end:" + code }
func dataKeyMeta(code string) string   { return "mkt:meta:" + code }
func dataKeyBidTS(code string) string  { return "mkt:bidts:" + code }
func dataKeySold(code string) string   { return "mkt:sold:" + code }
func dataKeyCancel(code string) string { return "mkt:cxl:" + code }

// Assembler builds transaction plans from marketplace intents. One
// parameterized path serves all three listing kinds.
type Assembler struct {
	escrowAccount string
	baseFee       int64
	window        time.Duration
	now           func() time.Time
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithBaseFee sets the per-operation fee bid.
func WithBaseFee(fee int64) AssemblerOption {
	return func(a *Assembler) {
		a.baseFee = fee
	}
}

// WithValidityWindow sets the plan validity window.
func WithValidityWindow(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		a.window = d
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		a.now = now
	}
}

// NewAssembler creates an Assembler. The escrow account receives buyer
// funds during fixed-price purchases.
func NewAssembler(escrowAccount string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		escrowAccount: escrowAccount,
		baseFee:       DefaultBaseFee,
		window:        DefaultValidityWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build validates the intent's inputs and assembles the operation plan.
// Validation failures surface before any operation is built; the
// returned plan consumes account.Sequence+1 when submitted.
func (a *Assembler) Build(intent Intent, account *horizon.Account) (*Plan, error) {
	if account == nil {
		return nil, fmt.Errorf("build plan: account state required")
	}
	if intent.Actor == "" || intent.Actor != account.Address {
		return nil, fmt.Errorf("build plan: intent actor %q does not match account %q", intent.Actor, account.Address)
	}

	code, err := validate.NormalizeAssetCode(intent.Token.AssetCode)
	if err != nil {
		observability.RecordValidationError(validate.Reason(err))
		return nil, err
	}
	token := domain.Token{AssetCode: code, Issuer: intent.Token.Issuer}

	var price string
	if intent.Kind != IntentCancel {
		price, err = validate.NormalizePrice(intent.Price)
		if err != nil {
			observability.RecordValidationError(validate.Reason(err))
			return nil, err
		}
	}

	now := a.now()
	plan := &Plan{
		Source:     account.Address,
		Sequence:   account.Sequence + 1,
		BaseFee:    a.baseFee,
		ValidAfter: now.Add(-time.Minute), // tolerate modest clock skew
		ValidUntil: now.Add(a.window),
	}

	switch intent.Kind {
	case IntentList:
		err = a.buildList(plan, intent, token, price, now)
	case IntentBid:
		a.buildBid(plan, intent, token, price, account)
	case IntentBuy:
		a.buildBuy(plan, token, price, account)
	case IntentAcceptBid:
		err = a.buildAcceptBid(plan, intent, token, price)
	case IntentCancel:
		err = a.buildCancel(plan, intent, token)
	default:
		err = fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// buildList assembles the sell offer plus listing annotations.
func (a *Assembler) buildList(plan *Plan, intent Intent, token domain.Token, price string, now time.Time) error {
	if !intent.ListingKind.Valid() {
		return fmt.Errorf("invalid listing kind %q", intent.ListingKind)
	}
	if intent.ListingKind == domain.ListingTimedAuction {
		if err := validate.ValidateAuctionWindow(intent.AuctionStart, intent.AuctionEnd, now.UnixMilli()); err != nil {
			return err
		}
	}

	plan.Operations = append(plan.Operations, CreateSellOffer{
		Selling: token.Asset(),
		Buying:  domain.NativeAsset,
		Amount:  domain.TokenUnit,
		Price:   price,
	})

	// Metadata pointer goes on-ledger only when it fits the data slot.
	if intent.MetadataRef != "" && len(intent.MetadataRef) <= MaxDataValueLen {
		plan.Operations = append(plan.Operations, ManageData{
			Name:  dataKeyMeta(token.AssetCode),
			Value: []byte(intent.MetadataRef),
		})
	}

	if intent.ListingKind != domain.ListingFixedPrice {
		plan.Operations = append(plan.Operations,
			ManageData{Name: dataKeyKind(token.AssetCode), Value: []byte(intent.ListingKind)},
			ManageData{Name: dataKeyMin(token.AssetCode), Value: []byte(price)},
		)
		if intent.ListingKind == domain.ListingTimedAuction {
			plan.Operations = append(plan.Operations, ManageData{
				Name:  dataKeyEnd(token.AssetCode),
				Value: []byte(strconv.FormatInt(intent.AuctionEnd, 10)),
			})
		}
	} else {
		plan.Operations = append(plan.Operations,
			ManageData{Name: dataKeyKind(token.AssetCode), Value: []byte(domain.ListingFixedPrice)},
		)
	}
	return nil
}

// buildBid assembles trustline (if absent), buy offer, bid timestamp.
func (a *Assembler) buildBid(plan *Plan, intent Intent, token domain.Token, price string, account *horizon.Account) {
	if !account.HasTrustline(token.Asset()) {
		plan.Operations = append(plan.Operations, ChangeTrust{
			Asset: token.Asset(),
			Limit: DefaultTrustLimit,
		})
	}
	plan.Operations = append(plan.Operations, CreateBuyOffer{
		Selling: token.Asset(),
		Buying:  domain.NativeAsset,
		Amount:  domain.TokenUnit,
		Price:   price,
	})

	ts := intent.BidTimestamp
	if ts == 0 {
		ts = a.now().UnixMilli()
	}
	plan.Operations = append(plan.Operations, ManageData{
		Name:  dataKeyBidTS(token.AssetCode),
		Value: []byte(strconv.FormatInt(ts, 10)),
	})
}

// buildBuy assembles the escrow purchase: trustline (if absent),
// payment into escrow, then a buy offer crossing the seller's sell
// offer at the same price.
func (a *Assembler) buildBuy(plan *Plan, token domain.Token, price string, account *horizon.Account) {
	if !account.HasTrustline(token.Asset()) {
		plan.Operations = append(plan.Operations, ChangeTrust{
			Asset: token.Asset(),
			Limit: DefaultTrustLimit,
		})
	}
	plan.Operations = append(plan.Operations,
		Payment{
			Destination: a.escrowAccount,
			Asset:       domain.NativeAsset,
			Amount:      price,
		},
		CreateBuyOffer{
			Selling: token.Asset(),
			Buying:  domain.NativeAsset,
			Amount:  domain.TokenUnit,
			Price:   price,
		},
	)
}

// buildAcceptBid assembles the sell offer sized to cross the winning
// buy offer, plus completion annotations.
func (a *Assembler) buildAcceptBid(plan *Plan, intent Intent, token domain.Token, price string) error {
	if intent.WinningBid == nil {
		return fmt.Errorf("accept bid: winning bid required")
	}
	plan.Operations = append(plan.Operations,
		CreateSellOffer{
			Selling: token.Asset(),
			Buying:  domain.NativeAsset,
			Amount:  domain.TokenUnit,
			Price:   price,
		},
		// Clear the active-listing marker, then record completion.
		ManageData{Name: dataKeyKind(token.AssetCode)},
		ManageData{
			Name:  dataKeySold(token.AssetCode),
			Value: []byte(intent.WinningBid.Bidder + "|" + price),
		},
	)
	return nil
}

// buildCancel assembles the qty-0 sell offer referencing the existing
// offer id, plus annotations clearing the listing.
func (a *Assembler) buildCancel(plan *Plan, intent Intent, token domain.Token) error {
	if intent.OfferID == 0 {
		return fmt.Errorf("cancel: existing offer id required")
	}
	plan.Operations = append(plan.Operations,
		CreateSellOffer{
			Selling: token.Asset(),
			Buying:  domain.NativeAsset,
			Amount:  "0",
			Price:   "1", // ignored for a cancel, must still be positive
			OfferID: intent.OfferID,
		},
		ManageData{Name: dataKeyKind(token.AssetCode)},
		ManageData{Name: dataKeyMin(token.AssetCode)},
		ManageData{Name: dataKeyEnd(token.AssetCode)},
		ManageData{
			Name:  dataKeyCancel(token.AssetCode),
			Value: []byte(strconv.FormatInt(a.now().UnixMilli(), 10)),
		},
	)
	return nil
}
