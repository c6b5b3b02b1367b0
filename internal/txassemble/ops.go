package txassemble

import "stellar-nft-market/internal/domain"

// OpType identifies a ledger operation kind.
type OpType string

const (
	OpCreateSellOffer OpType = "create_sell_offer"
	OpCreateBuyOffer  OpType = "create_buy_offer"
	OpPayment         OpType = "payment"
	OpChangeTrust     OpType = "change_trust"
	OpManageData      OpType = "manage_data"
)

// Operation is one ledger operation inside a plan.
type Operation interface {
	Type() OpType
}

// CreateSellOffer places (or, with Amount "0" and a non-zero OfferID,
// cancels) a sell offer on the order book.
type CreateSellOffer struct {
	Selling domain.Asset `json:"selling"`
	Buying  domain.Asset `json:"buying"`
	Amount  string       `json:"amount"` // units of Selling
	Price   string       `json:"price"`  // Buying per unit of Selling
	OfferID uint64       `json:"offer_id,omitempty"`
}

func (CreateSellOffer) Type() OpType { return OpCreateSellOffer }

// CreateBuyOffer places a buy offer on the order book.
type CreateBuyOffer struct {
	Selling domain.Asset `json:"selling"` // what the counterparty sells
	Buying  domain.Asset `json:"buying"`  // what this account pays
	Amount  string       `json:"amount"`  // units of Selling to acquire
	Price   string       `json:"price"`   // Buying per unit of Selling
	OfferID uint64       `json:"offer_id,omitempty"`
}

func (CreateBuyOffer) Type() OpType { return OpCreateBuyOffer }

// Payment transfers value to a destination account.
type Payment struct {
	Destination string       `json:"destination"`
	Asset       domain.Asset `json:"asset"`
	Amount      string       `json:"amount"`
}

func (Payment) Type() OpType { return OpPayment }

// ChangeTrust establishes a trustline so the account can hold the asset.
type ChangeTrust struct {
	Asset domain.Asset `json:"asset"`
	Limit string       `json:"limit"`
}

func (ChangeTrust) Type() OpType { return OpChangeTrust }

// ManageData sets (or, with a nil Value, deletes) a small named data
// entry on the source account. Values are capped at MaxDataValueLen.
type ManageData struct {
	Name  string `json:"name"`
	Value []byte `json:"value,omitempty"` // nil deletes the entry
}

func (ManageData) Type() OpType { return OpManageData }

// MaxDataValueLen is the ledger's fixed data-slot size in bytes.
// Metadata pointers that do not fit stay off-ledger only.
const MaxDataValueLen = 64
