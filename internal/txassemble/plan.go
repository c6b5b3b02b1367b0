package txassemble

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Plan is an ordered, unsigned ledger-operation sequence with its
// validity window. A pure value: building a plan performs no I/O and
// reserves nothing; the sequence number is consumed only at submission.
type Plan struct {
	Source     string      `json:"source"`
	Sequence   int64       `json:"sequence"` // sequence this plan consumes
	BaseFee    int64       `json:"base_fee"` // stroops per operation
	Operations []Operation `json:"-"`
	ValidAfter time.Time   `json:"valid_after"`
	ValidUntil time.Time   `json:"valid_until"`
	Memo       string      `json:"memo,omitempty"`
}

// Fee returns the total fee the plan will bid: base fee per operation.
func (p *Plan) Fee() int64 {
	return p.BaseFee * int64(len(p.Operations))
}

// envelopeOp is the wire form of one operation inside the envelope.
type envelopeOp struct {
	Type OpType    `json:"type"`
	Body Operation `json:"body"`
}

type envelope struct {
	Source     string       `json:"source"`
	Sequence   int64        `json:"sequence"`
	Fee        int64        `json:"fee"`
	ValidAfter int64        `json:"valid_after"` // Unix seconds
	ValidUntil int64        `json:"valid_until"` // Unix seconds
	Memo       string       `json:"memo,omitempty"`
	Operations []envelopeOp `json:"operations"`
}

// Envelope returns the canonical byte encoding of the unsigned plan.
// Signing capabilities sign the SHA-256 of these bytes.
func (p *Plan) Envelope() ([]byte, error) {
	env := envelope{
		Source:     p.Source,
		Sequence:   p.Sequence,
		Fee:        p.Fee(),
		ValidAfter: p.ValidAfter.Unix(),
		ValidUntil: p.ValidUntil.Unix(),
		Memo:       p.Memo,
	}
	for _, op := range p.Operations {
		env.Operations = append(env.Operations, envelopeOp{Type: op.Type(), Body: op})
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode plan envelope: %w", err)
	}
	return data, nil
}

// Hash returns the hex SHA-256 of the canonical envelope.
func (p *Plan) Hash() (string, error) {
	data, err := p.Envelope()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}
