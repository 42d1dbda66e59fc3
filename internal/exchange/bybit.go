package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

const bybitTickersPath = "/v5/market/tickers"

// BybitOptions parameterise the Bybit spot adapter.
type BybitOptions struct {
	Name    string
	BaseURL string
	WSURL   string
	Timeout time.Duration
}

// Bybit adapts the Bybit v5 spot API. Quotes can be pulled over REST or
// streamed over the public orderbook websocket; trading is not wired for this
// venue, so it always runs in public mode.
type Bybit struct {
	opts    BybitOptions
	client  *http.Client
	baseURL string
	wsURL   string
	logger  zerolog.Logger
}

// NewBybit constructs a Bybit adapter.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	wsURL := opts.WSURL
	if wsURL == "" {
		wsURL = "wss://stream.bybit.com/v5/public/spot"
	}

	name := opts.Name
	if name == "" {
		name = "bybit"
	}
	opts.Name = name

	return &Bybit{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		wsURL:   wsURL,
		logger:  logger.With().Str("component", "exchange_bybit").Logger(),
	}
}

// Name implements Adapter.
func (b *Bybit) Name() string { return b.opts.Name }

// Mode implements Adapter.
func (b *Bybit) Mode() Mode { return ModePublic }

// FetchBBO retrieves the top-of-book quote over REST.
func (b *Bybit) FetchBBO(ctx context.Context, symbol string) (market.BboSnapshot, error) {
	endpoint := fmt.Sprintf("%s%s?category=spot&symbol=%s", b.baseURL, bybitTickersPath, bybitSymbol(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.BboSnapshot{}, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return market.BboSnapshot{}, fmt.Errorf("bybit tickers: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.BboSnapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return market.BboSnapshot{}, fmt.Errorf("bybit api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Bid1Price string `json:"bid1Price"`
				Bid1Size  string `json:"bid1Size"`
				Ask1Price string `json:"ask1Price"`
				Ask1Size  string `json:"ask1Size"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("decode tickers: %w", err)
	}
	if body.RetCode != 0 || len(body.Result.List) == 0 {
		return market.BboSnapshot{}, fmt.Errorf("bybit tickers error: retCode=%d retMsg=%s", body.RetCode, body.RetMsg)
	}

	ticker := body.Result.List[0]
	snap := market.BboSnapshot{
		Exchange:   b.opts.Name,
		Symbol:     symbol,
		ObservedAt: time.Now().UTC(),
	}
	if snap.Bid, err = decimal.NewFromString(ticker.Bid1Price); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid price: %w", err)
	}
	if snap.Ask, err = decimal.NewFromString(ticker.Ask1Price); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask price: %w", err)
	}
	if snap.BidSize, err = decimal.NewFromString(ticker.Bid1Size); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid size: %w", err)
	}
	if snap.AskSize, err = decimal.NewFromString(ticker.Ask1Size); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask size: %w", err)
	}

	return snap, nil
}

type bybitSubscription struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type bybitOrderbookMsg struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`
	Ts int64 `json:"ts"`
}

// Stream subscribes to level-1 orderbook updates for the given symbols and
// pushes snapshots until the context is cancelled. Blocks for the lifetime of
// the connection.
func (b *Bybit) Stream(ctx context.Context, symbols []string, out chan<- market.BboSnapshot) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller shuts down.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	topics := make([]string, 0, len(symbols))
	reverse := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		topics = append(topics, fmt.Sprintf("orderbook.1.%s", bybitSymbol(symbol)))
		reverse[bybitSymbol(symbol)] = symbol
	}

	if err := conn.WriteJSON(bybitSubscription{Op: "subscribe", Args: topics}); err != nil {
		return fmt.Errorf("bybit subscribe: %w", err)
	}
	b.logger.Info().Strs("topics", topics).Msg("orderbook stream subscribed")

	// Level-1 deltas may omit an unchanged side; carry the last seen values.
	books := make(map[string]market.BboSnapshot)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bybit websocket read: %w", err)
		}

		var msg bybitOrderbookMsg
		if err := json.Unmarshal(message, &msg); err != nil || msg.Data.Symbol == "" {
			continue // subscription acks, pings
		}

		symbol, ok := reverse[msg.Data.Symbol]
		if !ok {
			continue
		}

		snap := books[symbol]
		snap.Exchange = b.opts.Name
		snap.Symbol = symbol
		snap.ObservedAt = time.UnixMilli(msg.Ts).UTC()

		if len(msg.Data.Bids) > 0 && len(msg.Data.Bids[0]) >= 2 {
			if price, err := decimal.NewFromString(msg.Data.Bids[0][0]); err == nil {
				snap.Bid = price
			}
			if size, err := decimal.NewFromString(msg.Data.Bids[0][1]); err == nil {
				snap.BidSize = size
			}
		}
		if len(msg.Data.Asks) > 0 && len(msg.Data.Asks[0]) >= 2 {
			if price, err := decimal.NewFromString(msg.Data.Asks[0][0]); err == nil {
				snap.Ask = price
			}
			if size, err := decimal.NewFromString(msg.Data.Asks[0][1]); err == nil {
				snap.AskSize = size
			}
		}
		books[symbol] = snap

		if err := snap.Validate(); err != nil {
			continue // partial book until both sides seen
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// bybitSymbol maps "BTC/USDT" to Bybit's "BTCUSDT" convention.
func bybitSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

var (
	_ Adapter  = (*Bybit)(nil)
	_ Streamer = (*Bybit)(nil)
)
