// Package feed streams live ticker updates over WebSocket into the price
// cache so the position ledger can value positions without a REST round trip.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akornilov/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the pause before a reconnection attempt.
	reconnectDelay = 2 * time.Second

	handshakeTimeout = 15 * time.Second
)

// tickerMessage is the wire format of one ticker update.
type tickerMessage struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Last     float64 `json:"last"`
	// Timestamp is Unix milliseconds; zero means "now".
	Timestamp int64 `json:"ts"`
}

// subscribeCommand asks the stream for updates on a symbol set.
type subscribeCommand struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// TickerFeed consumes a ticker WebSocket stream and warms the price cache
// with every update. It reconnects on disconnect and resubscribes.
type TickerFeed struct {
	wsURL   string
	symbols []string
	cache   domain.PriceCache
	logger  *slog.Logger
}

// NewTickerFeed creates a feed that subscribes to the given symbols.
func NewTickerFeed(wsURL string, symbols []string, cache domain.PriceCache, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		logger:  logger.With(slog.String("component", "ticker_feed")),
	}
}

// Run connects and consumes ticker updates until ctx is cancelled,
// reconnecting with a fixed delay on disconnect.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, feed disabled")
		return nil
	}

	for {
		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("ticker stream disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// runConnection holds one connection: subscribe, ping loop, read loop. It
// returns when the connection drops or the context ends.
func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Symbols: f.symbols}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("ticker stream subscribed", slog.Int("symbols", len(f.symbols)))

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, data)
	}
}

func (f *TickerFeed) handleMessage(ctx context.Context, data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable ticker message skipped", slog.String("error", err.Error()))
		return
	}
	if msg.Exchange == "" || msg.Symbol == "" {
		return
	}

	observed := time.Now().UTC()
	if msg.Timestamp > 0 {
		observed = time.UnixMilli(msg.Timestamp).UTC()
	}

	tick := domain.Tick{
		Bid:        msg.Bid,
		Ask:        msg.Ask,
		Last:       msg.Last,
		ObservedAt: observed,
	}
	if err := f.cache.SetTick(ctx, msg.Exchange, msg.Symbol, tick); err != nil {
		f.logger.Warn("tick cache write failed",
			slog.String("exchange", msg.Exchange),
			slog.String("symbol", msg.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
