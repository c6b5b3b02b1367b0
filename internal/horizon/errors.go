package horizon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested resource does not exist on
// the ledger.
var ErrNotFound = errors.New("not found")

// Transaction-level result codes.
const (
	TxSuccess             = "tx_success"
	TxFailed              = "tx_failed"
	TxBadSeq              = "tx_bad_seq"
	TxInsufficientBalance = "tx_insufficient_balance"
	TxTooLate             = "tx_too_late"
	TxTooEarly            = "tx_too_early"
)

// Per-operation result codes.
const (
	OpSuccess       = "op_success"
	OpUnderfunded   = "op_underfunded"
	OpNoTrust       = "op_no_trust"
	OpMalformed     = "op_malformed"
	OpOfferNotFound = "op_offer_not_found"
	OpCrossSelf     = "op_cross_self"
	OpLowReserve    = "op_low_reserve"
	OpLineFull      = "op_line_full"
)

// Error is a structured ledger rejection carrying both the
// transaction-level code and the per-operation code list.
type Error struct {
	Status         int    // HTTP status, 0 when not applicable
	ResultCode     string // transaction-level code
	OperationCodes []string
	Detail         string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ledger rejected transaction: %s", e.ResultCode)
	if len(e.OperationCodes) > 0 {
		fmt.Fprintf(&b, " (operations: %s)", strings.Join(e.OperationCodes, ", "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// FailedOperations returns the indexes of operations that did not succeed.
func (e *Error) FailedOperations() []int {
	var failed []int
	for i, code := range e.OperationCodes {
		if code != OpSuccess && code != "" {
			failed = append(failed, i)
		}
	}
	return failed
}

// HasOperationCode reports whether any operation failed with code.
func (e *Error) HasOperationCode(code string) bool {
	for _, c := range e.OperationCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsBadSequence reports whether err is a stale-sequence rejection, which
// requires rebuilding the plan against refreshed account state.
func IsBadSequence(err error) bool {
	var hzErr *Error
	return errors.As(err, &hzErr) && hzErr.ResultCode == TxBadSeq
}
