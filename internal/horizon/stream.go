package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/observability"
)

// TradeEvent is a settled order-book trade pushed by the ledger's
// streaming endpoint.
type TradeEvent struct {
	Selling   domain.Asset `json:"selling"`
	Buying    domain.Asset `json:"buying"`
	Seller    string       `json:"seller"`
	Buyer     string       `json:"buyer"`
	Amount    string       `json:"amount"`
	Price     string       `json:"price"`
	TxHash    string       `json:"tx_hash"`
	Ledger    int64        `json:"ledger"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// StreamConfig configures TradeStream reconnect behavior.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// TradeStream subscribes to settled trades for a set of trading pairs
// over WebSocket, reconnecting with backoff and resubscribing after a
// dropped connection.
type TradeStream struct {
	endpoint string
	config   StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// pairs to resubscribe after reconnect
	pairs   []tradePair
	pairsMu sync.Mutex

	events chan TradeEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

type tradePair struct {
	Selling domain.Asset `json:"selling"`
	Buying  domain.Asset `json:"buying"`
}

type streamMessage struct {
	Type  string          `json:"type"`
	Trade json.RawMessage `json:"trade,omitempty"`
}

// NewTradeStream connects to the streaming endpoint.
func NewTradeStream(ctx context.Context, endpoint string, config *StreamConfig) (*TradeStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &TradeStream{
		endpoint: endpoint,
		config:   cfg,
		events:   make(chan TradeEvent, 256),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// Events returns the channel delivering settled trades. The channel is
// closed when the stream shuts down.
func (s *TradeStream) Events() <-chan TradeEvent {
	return s.events
}

// Subscribe starts streaming trades for the pair. Subscriptions persist
// across reconnects.
func (s *TradeStream) Subscribe(selling, buying domain.Asset) error {
	pair := tradePair{Selling: selling, Buying: buying}

	s.pairsMu.Lock()
	s.pairs = append(s.pairs, pair)
	s.pairsMu.Unlock()

	return s.send(map[string]interface{}{
		"type":    "subscribe",
		"stream":  "trades",
		"selling": pair.Selling,
		"buying":  pair.Buying,
	})
}

// Close shuts down the stream and closes the events channel.
func (s *TradeStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

func (s *TradeStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial trade stream %s: %w", s.endpoint, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *TradeStream) send(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("trade stream not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *TradeStream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			s.reconnect()
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.reconnect()
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "trade" || msg.Trade == nil {
			continue
		}

		var trade TradeEvent
		if err := json.Unmarshal(msg.Trade, &trade); err != nil {
			continue
		}

		select {
		case s.events <- trade:
		default:
			// Drop on backpressure; the archive is best-effort.
		}
	}
}

func (s *TradeStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff and
// replays active subscriptions.
func (s *TradeStream) reconnect() {
	delay := s.config.ReconnectDelay

	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			observability.DefaultMetrics.StreamReconnects.Inc()
			s.resubscribe()
			return
		}

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

func (s *TradeStream) resubscribe() {
	s.pairsMu.Lock()
	pairs := make([]tradePair, len(s.pairs))
	copy(pairs, s.pairs)
	s.pairsMu.Unlock()

	for _, pair := range pairs {
		s.send(map[string]interface{}{
			"type":    "subscribe",
			"stream":  "trades",
			"selling": pair.Selling,
			"buying":  pair.Buying,
		})
	}
}
