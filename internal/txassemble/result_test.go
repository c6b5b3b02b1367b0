package txassemble

import (
	"errors"
	"fmt"
	"testing"

	"stellar-nft-market/internal/horizon"
)

func TestDecodeSubmitError_ResourceState(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantIndex  int
		wantCode   string
		wantReason string
	}{
		{
			name: "insufficient funds",
			err: &horizon.Error{
				ResultCode:     horizon.TxFailed,
				OperationCodes: []string{horizon.OpSuccess, horizon.OpUnderfunded},
			},
			wantIndex:  1,
			wantCode:   horizon.OpUnderfunded,
			wantReason: "insufficient funds",
		},
		{
			name: "missing trustline",
			err: &horizon.Error{
				ResultCode:     horizon.TxFailed,
				OperationCodes: []string{horizon.OpNoTrust},
			},
			wantIndex:  0,
			wantCode:   horizon.OpNoTrust,
			wantReason: "missing trustline",
		},
		{
			name: "stale sequence",
			err: &horizon.Error{
				ResultCode: horizon.TxBadSeq,
			},
			wantIndex: -1,
			wantCode:  horizon.TxBadSeq,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := DecodeSubmitError(tt.err)
			var rsErr *ResourceStateError
			if !errors.As(decoded, &rsErr) {
				t.Fatalf("expected ResourceStateError, got %v", decoded)
			}
			if rsErr.OperationIndex != tt.wantIndex {
				t.Errorf("operation index: got %d, want %d", rsErr.OperationIndex, tt.wantIndex)
			}
			if rsErr.LedgerCode != tt.wantCode {
				t.Errorf("ledger code: got %s, want %s", rsErr.LedgerCode, tt.wantCode)
			}
			if tt.wantReason != "" && rsErr.Reason != tt.wantReason {
				t.Errorf("reason: got %s, want %s", rsErr.Reason, tt.wantReason)
			}
		})
	}
}

func TestDecodeSubmitError_UnknownCodesBecomeSubmissionError(t *testing.T) {
	decoded := DecodeSubmitError(&horizon.Error{
		ResultCode:     horizon.TxFailed,
		OperationCodes: []string{"op_weird_failure"},
	})

	var subErr *SubmissionError
	if !errors.As(decoded, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", decoded)
	}
	if subErr.TxCode != horizon.TxFailed {
		t.Errorf("tx code: got %s", subErr.TxCode)
	}
	if len(subErr.OperationCodes) != 1 {
		t.Errorf("operation codes: got %v", subErr.OperationCodes)
	}
}

func TestDecodeSubmitError_PassThrough(t *testing.T) {
	plain := fmt.Errorf("network unreachable")
	if got := DecodeSubmitError(plain); got != plain {
		t.Errorf("non-ledger error must pass through, got %v", got)
	}
	if got := DecodeSubmitError(nil); got != nil {
		t.Errorf("nil must stay nil, got %v", got)
	}
}

func TestIsStaleOffer(t *testing.T) {
	stale := DecodeSubmitError(&horizon.Error{
		ResultCode:     horizon.TxFailed,
		OperationCodes: []string{horizon.OpOfferNotFound},
	})
	if !IsStaleOffer(stale) {
		t.Error("op_offer_not_found must classify as stale offer")
	}

	other := DecodeSubmitError(&horizon.Error{
		ResultCode:     horizon.TxFailed,
		OperationCodes: []string{horizon.OpUnderfunded},
	})
	if IsStaleOffer(other) {
		t.Error("op_underfunded must not classify as stale offer")
	}
}
