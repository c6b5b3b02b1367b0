package txassemble

import (
	"errors"
	"fmt"
	"strings"

	"stellar-nft-market/internal/horizon"
)

// ResourceStateError reports a rejection caused by account or offer
// state: insufficient balance, missing trustline, stale offer. The
// caller can remediate (fund, trust, refresh) and retry.
type ResourceStateError struct {
	OperationIndex int    // -1 when transaction-level
	LedgerCode     string // the exact ledger result code
	Reason         string // human-actionable summary
}

func (e *ResourceStateError) Error() string {
	if e.OperationIndex >= 0 {
		return fmt.Sprintf("%s (operation %d, code %s)", e.Reason, e.OperationIndex, e.LedgerCode)
	}
	return fmt.Sprintf("%s (code %s)", e.Reason, e.LedgerCode)
}

// SubmissionError reports a ledger rejection that does not map to a
// known resource-state cause. It carries the transaction-level code and
// the full per-operation code list.
type SubmissionError struct {
	TxCode         string
	OperationCodes []string
}

func (e *SubmissionError) Error() string {
	if len(e.OperationCodes) == 0 {
		return fmt.Sprintf("submission rejected: %s", e.TxCode)
	}
	return fmt.Sprintf("submission rejected: %s (operations: %s)",
		e.TxCode, strings.Join(e.OperationCodes, ", "))
}

// Reasons for known resource-state rejections, keyed by operation code.
var opCodeReasons = map[string]string{
	horizon.OpUnderfunded:   "insufficient funds",
	horizon.OpNoTrust:       "missing trustline",
	horizon.OpMalformed:     "malformed offer",
	horizon.OpOfferNotFound: "offer no longer exists",
	horizon.OpLowReserve:    "balance below ledger reserve",
	horizon.OpLineFull:      "trustline limit exceeded",
}

// DecodeSubmitError converts a ledger rejection into the marketplace
// error taxonomy, combining the transaction-level code with the first
// failed operation's code into one actionable error. Non-ledger errors
// pass through unchanged.
func DecodeSubmitError(err error) error {
	if err == nil {
		return nil
	}

	var hzErr *horizon.Error
	if !errors.As(err, &hzErr) {
		return err
	}

	if hzErr.ResultCode == horizon.TxBadSeq {
		return &ResourceStateError{
			OperationIndex: -1,
			LedgerCode:     hzErr.ResultCode,
			Reason:         "stale account sequence; rebuild the plan from refreshed account state",
		}
	}
	if hzErr.ResultCode == horizon.TxInsufficientBalance {
		return &ResourceStateError{
			OperationIndex: -1,
			LedgerCode:     hzErr.ResultCode,
			Reason:         "insufficient balance to cover the fee",
		}
	}

	for i, code := range hzErr.OperationCodes {
		if code == horizon.OpSuccess || code == "" {
			continue
		}
		if reason, known := opCodeReasons[code]; known {
			return &ResourceStateError{
				OperationIndex: i,
				LedgerCode:     code,
				Reason:         reason,
			}
		}
	}

	return &SubmissionError{
		TxCode:         hzErr.ResultCode,
		OperationCodes: hzErr.OperationCodes,
	}
}

// IsStaleOffer reports whether err is a stale-offer rejection: the
// counter-offer the plan was sized to cross has been withdrawn.
func IsStaleOffer(err error) bool {
	var rsErr *ResourceStateError
	if !errors.As(err, &rsErr) {
		return false
	}
	return rsErr.LedgerCode == horizon.OpOfferNotFound
}
