// Package stub provides a scriptable signing.Capability for testing.
package stub

import (
	"context"
	"sync"

	"stellar-nft-market/internal/signing"
	"stellar-nft-market/internal/txassemble"
)

// Outcome scripts one SignAndSubmit call.
type Outcome struct {
	Receipt *signing.Receipt
	Err     error
}

// Signer implements signing.Capability against a scripted outcome
// queue, recording every plan it receives.
type Signer struct {
	mu       sync.Mutex
	Outcomes []Outcome
	Plans    []*txassemble.Plan

	calls int
}

// New creates an empty stub signer.
func New() *Signer {
	return &Signer{}
}

// Compile-time interface check.
var _ signing.Capability = (*Signer)(nil)

// Queue appends a scripted outcome.
func (s *Signer) Queue(receipt *signing.Receipt, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outcomes = append(s.Outcomes, Outcome{Receipt: receipt, Err: err})
}

// Calls returns how many plans have been submitted.
func (s *Signer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// SignAndSubmit records the plan and pops the next scripted outcome,
// succeeding with a generated receipt once the script is exhausted.
func (s *Signer) SignAndSubmit(_ context.Context, plan *txassemble.Plan) (*signing.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Plans = append(s.Plans, plan)
	s.calls++

	if s.calls <= len(s.Outcomes) {
		outcome := s.Outcomes[s.calls-1]
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Receipt, nil
	}

	hash, err := plan.Hash()
	if err != nil {
		return nil, err
	}
	return &signing.Receipt{TxHash: hash, Ledger: 1}, nil
}
