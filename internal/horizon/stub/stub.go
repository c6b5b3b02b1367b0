// Package stub provides an in-memory horizon.Client for testing.
package stub

import (
	"context"
	"fmt"
	"sync"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/horizon"
)

// Client implements horizon.Client against scriptable in-memory state.
type Client struct {
	mu sync.Mutex

	Accounts     map[string]*horizon.Account
	LiveOffers   []horizon.Offer
	Ledger       horizon.Ledger
	Transactions map[string]*horizon.SubmitResult

	// SubmitResults are returned in order by SubmitTransaction; when
	// exhausted, submissions succeed with a generated result.
	SubmitResults []SubmitOutcome

	// Submitted records every envelope passed to SubmitTransaction.
	Submitted [][]byte

	submitCount int
}

// SubmitOutcome scripts one SubmitTransaction call.
type SubmitOutcome struct {
	Result *horizon.SubmitResult
	Err    error
}

// New creates an empty stub client.
func New() *Client {
	return &Client{
		Accounts:     make(map[string]*horizon.Account),
		Transactions: make(map[string]*horizon.SubmitResult),
	}
}

// Compile-time interface check.
var _ horizon.Client = (*Client)(nil)

// SetAccount installs an account snapshot.
func (c *Client) SetAccount(a *horizon.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[a.Address] = a
}

// SetOffers replaces the live offer set.
func (c *Client) SetOffers(offers []horizon.Offer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LiveOffers = offers
}

// QueueSubmit appends a scripted submission outcome.
func (c *Client) QueueSubmit(result *horizon.SubmitResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SubmitResults = append(c.SubmitResults, SubmitOutcome{Result: result, Err: err})
}

// LoadAccount returns the scripted account or horizon.ErrNotFound.
func (c *Client) LoadAccount(_ context.Context, address string) (*horizon.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.Accounts[address]
	if !ok {
		return nil, horizon.ErrNotFound
	}
	snapshot := *a
	return &snapshot, nil
}

// Offers returns live offers matching the filter.
func (c *Client) Offers(_ context.Context, filter horizon.OfferFilter) ([]horizon.Offer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []horizon.Offer
	for _, o := range c.LiveOffers {
		if filter.Seller != "" && o.Seller != filter.Seller {
			continue
		}
		if filter.Selling != nil && o.Selling != *filter.Selling {
			continue
		}
		if filter.Buying != nil && o.Buying != *filter.Buying {
			continue
		}
		result = append(result, o)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// OrderBook aggregates live offers into a book for the pair.
func (c *Client) OrderBook(_ context.Context, selling, buying domain.Asset, limit int) (*horizon.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	book := &horizon.OrderBook{Selling: selling, Buying: buying}
	for _, o := range c.LiveOffers {
		switch {
		case o.Selling == selling && o.Buying == buying:
			book.Asks = append(book.Asks, horizon.PriceLevel{Price: o.Price, Amount: o.Amount})
		case o.Selling == buying && o.Buying == selling:
			book.Bids = append(book.Bids, horizon.PriceLevel{Price: o.Price, Amount: o.Amount})
		}
	}
	return book, nil
}

// LatestLedger returns the scripted ledger header.
func (c *Client) LatestLedger(_ context.Context) (*horizon.Ledger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ledger := c.Ledger
	return &ledger, nil
}

// SubmitTransaction records the envelope and pops the next scripted
// outcome, succeeding by default once the script is exhausted.
func (c *Client) SubmitTransaction(_ context.Context, envelope []byte) (*horizon.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Submitted = append(c.Submitted, envelope)

	if c.submitCount < len(c.SubmitResults) {
		outcome := c.SubmitResults[c.submitCount]
		c.submitCount++
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		if outcome.Result != nil {
			c.Transactions[outcome.Result.Hash] = outcome.Result
		}
		return outcome.Result, nil
	}

	result := &horizon.SubmitResult{
		Hash:       generatedHash(len(c.Submitted)),
		Ledger:     c.Ledger.Sequence,
		Successful: true,
		ResultCode: horizon.TxSuccess,
	}
	c.Transactions[result.Hash] = result
	return result, nil
}

// TransactionByHash returns a recorded outcome or horizon.ErrNotFound.
func (c *Client) TransactionByHash(_ context.Context, hash string) (*horizon.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.Transactions[hash]
	if !ok {
		return nil, horizon.ErrNotFound
	}
	return result, nil
}

func generatedHash(n int) string {
	return fmt.Sprintf("stubtx%04d", n)
}
