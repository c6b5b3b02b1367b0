// Package memory provides an in-memory offchain.Store for tests and
// single-process runs.
package memory

import (
	"context"
	"sync"

	"stellar-nft-market/internal/offchain"
)

type pinned struct {
	content []byte
	tags    map[string]struct{}
}

// Store is an in-memory implementation of offchain.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]pinned // keyed by content id
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]pinned)}
}

// Compile-time interface check.
var _ offchain.Store = (*Store)(nil)

// Put pins content under the given tags.
func (s *Store) Put(_ context.Context, content []byte, tags []string) (string, error) {
	id := offchain.ContentID(content)

	stored := pinned{
		content: append([]byte(nil), content...),
		tags:    make(map[string]struct{}, len(tags)),
	}
	for _, tag := range tags {
		stored.tags[tag] = struct{}{}
	}

	s.mu.Lock()
	s.data[id] = stored
	s.mu.Unlock()
	return id, nil
}

// Get retrieves pinned content.
func (s *Store) Get(_ context.Context, contentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[contentID]
	if !ok {
		return nil, offchain.ErrNotFound
	}
	return append([]byte(nil), p.content...), nil
}

// Find returns ids of contents carrying every tag.
func (s *Store) Find(_ context.Context, tags []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, p := range s.data {
		match := true
		for _, tag := range tags {
			if _, ok := p.tags[tag]; !ok {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Unpin removes content. Unknown ids are a no-op.
func (s *Store) Unpin(_ context.Context, contentID string) error {
	s.mu.Lock()
	delete(s.data, contentID)
	s.mu.Unlock()
	return nil
}
