package horizon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client against the ledger's REST API.
// Read calls retry with exponential backoff; SubmitTransaction never
// retries on its own because a transport timeout means "unknown
// outcome" and must be resolved by re-query, not resubmission.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new ledger REST client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// Wire types.

type accountJSON struct {
	Address  string        `json:"address"`
	Sequence string        `json:"sequence"`
	Balances []balanceJSON `json:"balances"`
}

type balanceJSON struct {
	AssetType string `json:"asset_type"`
	Code      string `json:"asset_code,omitempty"`
	Issuer    string `json:"asset_issuer,omitempty"`
	Balance   string `json:"balance"`
}

type offerJSON struct {
	ID           string    `json:"id"`
	Seller       string    `json:"seller"`
	Selling      assetJSON `json:"selling"`
	Buying       assetJSON `json:"buying"`
	Amount       string    `json:"amount"`
	Price        string    `json:"price"`
	LastModified int64     `json:"last_modified_time"`
}

type assetJSON struct {
	Type   string `json:"asset_type"`
	Code   string `json:"asset_code,omitempty"`
	Issuer string `json:"asset_issuer,omitempty"`
}

func (a assetJSON) toDomain() domain.Asset {
	if a.Type == "native" {
		return domain.NativeAsset
	}
	return domain.Asset{Code: a.Code, Issuer: a.Issuer}
}

func assetParams(prefix string, a domain.Asset, q url.Values) {
	if a.IsNative() {
		q.Set(prefix+"_asset_type", "native")
		return
	}
	q.Set(prefix+"_asset_type", string(a.Type()))
	q.Set(prefix+"_asset_code", a.Code)
	q.Set(prefix+"_asset_issuer", a.Issuer)
}

type orderBookJSON struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

type ledgerJSON struct {
	Sequence  int64  `json:"sequence"`
	CloseTime string `json:"closed_at"` // RFC3339
}

type submitResultJSON struct {
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Successful bool   `json:"successful"`
	CreatedAt  string `json:"created_at"` // RFC3339
	ResultCode string `json:"result_code,omitempty"`
	Extras     *struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras,omitempty"`
}

func (r *submitResultJSON) toDomain() *SubmitResult {
	result := &SubmitResult{
		Hash:       r.Hash,
		Ledger:     r.Ledger,
		Successful: r.Successful,
		ResultCode: r.ResultCode,
	}
	if r.Extras != nil {
		result.ResultCode = r.Extras.ResultCodes.Transaction
		result.OperationCodes = r.Extras.ResultCodes.Operations
	}
	if result.ResultCode == "" && r.Successful {
		result.ResultCode = TxSuccess
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		result.CreatedAt = t.UnixMilli()
	}
	return result
}

// LoadAccount retrieves an account snapshot.
func (c *HTTPClient) LoadAccount(ctx context.Context, address string) (*Account, error) {
	defer observability.ObserveLedgerCall("load_account", time.Now())

	var raw accountJSON
	if err := c.get(ctx, "/accounts/"+url.PathEscape(address), nil, &raw); err != nil {
		return nil, fmt.Errorf("load account %s: %w", address, err)
	}

	seq, err := strconv.ParseInt(raw.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse account sequence %q: %w", raw.Sequence, err)
	}

	account := &Account{Address: raw.Address, Sequence: seq}
	for _, b := range raw.Balances {
		asset := domain.NativeAsset
		if b.AssetType != "native" {
			asset = domain.Asset{Code: b.Code, Issuer: b.Issuer}
		}
		account.Balances = append(account.Balances, Balance{Asset: asset, Amount: b.Balance})
	}
	return account, nil
}

// Offers retrieves live offers matching the filter.
func (c *HTTPClient) Offers(ctx context.Context, filter OfferFilter) ([]Offer, error) {
	defer observability.ObserveLedgerCall("offers", time.Now())

	q := url.Values{}
	if filter.Seller != "" {
		q.Set("seller", filter.Seller)
	}
	if filter.Selling != nil {
		assetParams("selling", *filter.Selling, q)
	}
	if filter.Buying != nil {
		assetParams("buying", *filter.Buying, q)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var raw struct {
		Records []offerJSON `json:"records"`
	}
	if err := c.get(ctx, "/offers", q, &raw); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}

	offers := make([]Offer, 0, len(raw.Records))
	for _, o := range raw.Records {
		id, err := strconv.ParseUint(o.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse offer id %q: %w", o.ID, err)
		}
		offers = append(offers, Offer{
			ID:           id,
			Seller:       o.Seller,
			Selling:      o.Selling.toDomain(),
			Buying:       o.Buying.toDomain(),
			Amount:       o.Amount,
			Price:        o.Price,
			LastModified: o.LastModified,
		})
	}
	return offers, nil
}

// OrderBook retrieves the aggregated book for a trading pair.
func (c *HTTPClient) OrderBook(ctx context.Context, selling, buying domain.Asset, limit int) (*OrderBook, error) {
	defer observability.ObserveLedgerCall("order_book", time.Now())

	q := url.Values{}
	assetParams("selling", selling, q)
	assetParams("buying", buying, q)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var raw orderBookJSON
	if err := c.get(ctx, "/order_book", q, &raw); err != nil {
		return nil, fmt.Errorf("load order book: %w", err)
	}
	return &OrderBook{Selling: selling, Buying: buying, Bids: raw.Bids, Asks: raw.Asks}, nil
}

// LatestLedger retrieves the most recently closed ledger header.
func (c *HTTPClient) LatestLedger(ctx context.Context) (*Ledger, error) {
	defer observability.ObserveLedgerCall("latest_ledger", time.Now())

	var raw ledgerJSON
	if err := c.get(ctx, "/ledgers/latest", nil, &raw); err != nil {
		return nil, fmt.Errorf("load latest ledger: %w", err)
	}
	ledger := &Ledger{Sequence: raw.Sequence}
	t, err := time.Parse(time.RFC3339, raw.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("parse ledger close time %q: %w", raw.CloseTime, err)
	}
	ledger.CloseTime = t.UnixMilli()
	return ledger, nil
}

// SubmitTransaction submits a signed envelope. Exactly one attempt: the
// caller owns timeout semantics and the re-query on unknown outcome.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, envelope []byte) (*SubmitResult, error) {
	defer observability.ObserveLedgerCall("submit_transaction", time.Now())

	body, err := json.Marshal(map[string]string{
		"tx": base64.StdEncoding.EncodeToString(envelope),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}

	var raw submitResultJSON
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode submit response (status %d): %w", resp.StatusCode, err)
	}
	result := raw.toDomain()

	if resp.StatusCode >= 400 || !result.Successful {
		return nil, &Error{
			Status:         resp.StatusCode,
			ResultCode:     result.ResultCode,
			OperationCodes: result.OperationCodes,
		}
	}
	return result, nil
}

// TransactionByHash retrieves the outcome of a submitted transaction.
func (c *HTTPClient) TransactionByHash(ctx context.Context, hash string) (*SubmitResult, error) {
	defer observability.ObserveLedgerCall("transaction_by_hash", time.Now())

	var raw submitResultJSON
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash), nil, &raw); err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", hash, err)
	}
	return raw.toDomain(), nil
}

// get performs a GET with retries and exponential backoff.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server status %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return &Error{Status: resp.StatusCode, Detail: string(respBody)}
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("all %d attempts failed: %w", c.maxRetries+1, lastErr)
}
