package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mr-tron/base58"

	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/txassemble"
)

// requeryTimeout bounds the detached outcome re-query after a timeout.
const requeryTimeout = 10 * time.Second

// LocalSigner signs plans with an in-process ed25519 key and submits
// them through a horizon client. Intended for servers and tests; user
// wallets plug in their own Capability.
type LocalSigner struct {
	key     ed25519.PrivateKey
	address string
	client  horizon.Client
}

// NewLocalSigner derives the signing key from a 32-byte seed. The
// signer's address is the base58-encoded public key.
func NewLocalSigner(seed []byte, client horizon.Client) (*LocalSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &LocalSigner{
		key:     key,
		address: base58.Encode(key.Public().(ed25519.PublicKey)),
		client:  client,
	}, nil
}

// Compile-time interface check.
var _ Capability = (*LocalSigner)(nil)

// Address returns the signer's account address.
func (s *LocalSigner) Address() string {
	return s.address
}

// signedEnvelope is the wire form of a signed transaction.
type signedEnvelope struct {
	Envelope   string `json:"envelope"` // base64 canonical plan envelope
	Signatures []struct {
		Signer    string `json:"signer"`
		Signature string `json:"signature"` // base64 ed25519 signature
	} `json:"signatures"`
}

// SignAndSubmit signs the plan's envelope hash and submits it. On a
// transport timeout the outcome is re-queried from the ledger exactly
// once; success and rejection are never assumed.
func (s *LocalSigner) SignAndSubmit(ctx context.Context, plan *txassemble.Plan) (*Receipt, error) {
	env, err := plan.Envelope()
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(env)
	sig := ed25519.Sign(s.key, hash[:])

	signed := signedEnvelope{Envelope: base64.StdEncoding.EncodeToString(env)}
	signed.Signatures = append(signed.Signatures, struct {
		Signer    string `json:"signer"`
		Signature string `json:"signature"`
	}{
		Signer:    s.address,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})

	payload, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("encode signed envelope: %w", err)
	}

	txHash := fmt.Sprintf("%x", hash)

	result, err := s.client.SubmitTransaction(ctx, payload)
	if err != nil {
		if isTimeout(err) {
			return s.requeryOutcome(txHash, err)
		}
		return nil, txassemble.DecodeSubmitError(err)
	}

	return receiptFrom(result), nil
}

// requeryOutcome resolves an unknown submission outcome with one
// detached ledger query. The query context is independent of the
// caller's (already expired) context.
func (s *LocalSigner) requeryOutcome(txHash string, cause error) (*Receipt, error) {
	observability.DefaultMetrics.OutcomeRequeries.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), requeryTimeout)
	defer cancel()

	result, err := s.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, &IndeterminateOutcomeError{TxHash: txHash, Cause: cause}
	}
	if !result.Successful {
		return nil, txassemble.DecodeSubmitError(&horizon.Error{
			ResultCode:     result.ResultCode,
			OperationCodes: result.OperationCodes,
		})
	}
	return receiptFrom(result), nil
}

func receiptFrom(result *horizon.SubmitResult) *Receipt {
	settledAt := result.CreatedAt
	if settledAt == 0 {
		settledAt = time.Now().UnixMilli()
	}
	return &Receipt{
		TxHash:    result.Hash,
		Ledger:    result.Ledger,
		SettledAt: settledAt,
	}
}

// isTimeout reports whether err is a transport timeout or cancellation,
// i.e. an unknown outcome rather than a definite rejection.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
