// Package signing defines the injected signing capability. The
// marketplace core never touches key material directly: it hands an
// unsigned plan to a Capability and consumes the settlement result.
package signing

import (
	"context"
	"fmt"

	"stellar-nft-market/internal/txassemble"
)

// Receipt is the settlement confirmation for an applied plan.
type Receipt struct {
	TxHash    string `json:"txHash"`
	Ledger    int64  `json:"ledger"`
	SettledAt int64  `json:"settledAt"` // Unix milliseconds
}

// Capability signs and submits a plan. Implementations may be local
// keys, hardware wallets, or interactive signers; choosing one is the
// caller's concern. Every implementation must honor ctx cancellation
// and return *IndeterminateOutcomeError when the outcome is unknown.
type Capability interface {
	SignAndSubmit(ctx context.Context, plan *txassemble.Plan) (*Receipt, error)
}

// IndeterminateOutcomeError reports a submission whose outcome could
// not be established: the transport timed out and the follow-up ledger
// query found no trace of the transaction. The caller must re-query
// before assuming anything.
type IndeterminateOutcomeError struct {
	TxHash string
	Cause  error
}

func (e *IndeterminateOutcomeError) Error() string {
	return fmt.Sprintf("outcome indeterminate for transaction %s: %v (re-query found no result)", e.TxHash, e.Cause)
}

func (e *IndeterminateOutcomeError) Unwrap() error {
	return e.Cause
}
