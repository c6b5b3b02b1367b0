package offchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHTTPTimeout bounds pinning-service calls.
const DefaultHTTPTimeout = 15 * time.Second

// HTTPStore implements Store against a pinning-service REST API.
// Transport failures surface as ErrUnavailable so callers can tell a
// degraded store from a missing record.
type HTTPStore struct {
	endpoint string
	client   *http.Client
}

// HTTPStoreOption configures HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		s.client = client
	}
}

// NewHTTPStore creates a pinning-service client.
func NewHTTPStore(endpoint string, opts ...HTTPStoreOption) *HTTPStore {
	s := &HTTPStore{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ Store = (*HTTPStore)(nil)

// Put pins content under the given tags.
func (s *HTTPStore) Put(ctx context.Context, content []byte, tags []string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"content": base64.StdEncoding.EncodeToString(content),
		"tags":    tags,
	})
	if err != nil {
		return "", fmt.Errorf("encode pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/pins", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: pin returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	return result.ID, nil
}

// Get retrieves pinned content.
func (s *HTTPStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.endpoint+"/pins/"+url.PathEscape(contentID)+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("create get request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: get returned status %d", ErrUnavailable, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

// Find returns the ids of pinned contents carrying every tag.
func (s *HTTPStore) Find(ctx context.Context, tags []string) ([]string, error) {
	q := url.Values{}
	for _, tag := range tags {
		q.Add("tag", tag)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/pins?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create find request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: find returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode find response: %w", err)
	}
	return result.IDs, nil
}

// Unpin removes content. Unknown ids are a no-op.
func (s *HTTPStore) Unpin(ctx context.Context, contentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.endpoint+"/pins/"+url.PathEscape(contentID), nil)
	if err != nil {
		return fmt.Errorf("create unpin request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: unpin returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
