// Package offchain provides the content-addressed pinning store used
// for bid records, auction status records, and token metadata. The
// store is eventually consistent and append-and-unpin: updates pin a
// new version then unpin the old one, and readers treat the most
// recently created matching record as authoritative.
package offchain

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

// ErrNotFound is returned when a content id is not pinned.
var ErrNotFound = errors.New("content not found")

// ErrUnavailable is returned when the pinning service cannot be
// reached. Best-effort readers degrade on it; writers whose record is
// the sole source of truth must fail the operation.
var ErrUnavailable = errors.New("offchain store unavailable")

// Store is the pinning-service contract. No transactional or ordering
// guarantee holds across writers.
type Store interface {
	// Put pins content under the given tags and returns its content id.
	Put(ctx context.Context, content []byte, tags []string) (string, error)

	// Get retrieves pinned content. Returns ErrNotFound if not pinned.
	Get(ctx context.Context, contentID string) ([]byte, error)

	// Find returns the ids of all pinned contents carrying every tag.
	Find(ctx context.Context, tags []string) ([]string, error)

	// Unpin removes content. Unpinning an unknown id is a no-op.
	Unpin(ctx context.Context, contentID string) error
}

// ContentID computes the deterministic id for content: base58-encoded
// SHA-256, matching the pinning service's addressing.
func ContentID(content []byte) string {
	sum := sha256.Sum256(content)
	return base58.Encode(sum[:])
}
