package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

const (
	binanceBookTickerPath = "/api/v3/ticker/bookTicker"
	binanceOrderPath      = "/api/v3/order"
)

// BinanceOptions parameterise the Binance spot adapter.
type BinanceOptions struct {
	Name      string
	BaseURL   string
	Mode      Mode
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Binance adapts the Binance spot REST API.
type Binance struct {
	opts    BinanceOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewBinance constructs a Binance adapter.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	name := opts.Name
	if name == "" {
		name = "binance"
	}
	opts.Name = name

	return &Binance{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "exchange_binance").Logger(),
	}
}

// Name implements Adapter.
func (b *Binance) Name() string { return b.opts.Name }

// Mode implements Adapter.
func (b *Binance) Mode() Mode {
	if b.opts.Mode == ModePrivate {
		return ModePrivate
	}
	return ModePublic
}

// FetchBBO retrieves the top-of-book quote for a symbol.
func (b *Binance) FetchBBO(ctx context.Context, symbol string) (market.BboSnapshot, error) {
	endpoint := fmt.Sprintf("%s%s?symbol=%s", b.baseURL, binanceBookTickerPath, binanceSymbol(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.BboSnapshot{}, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return market.BboSnapshot{}, fmt.Errorf("binance book ticker: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.BboSnapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return market.BboSnapshot{}, binanceAPIError(resp.StatusCode, payload)
	}

	var ticker struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		BidQty   string `json:"bidQty"`
		AskPrice string `json:"askPrice"`
		AskQty   string `json:"askQty"`
	}
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("decode book ticker: %w", err)
	}

	snap := market.BboSnapshot{
		Exchange:   b.opts.Name,
		Symbol:     symbol,
		ObservedAt: time.Now().UTC(),
	}
	if snap.Bid, err = decimal.NewFromString(ticker.BidPrice); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid price: %w", err)
	}
	if snap.Ask, err = decimal.NewFromString(ticker.AskPrice); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask price: %w", err)
	}
	if snap.BidSize, err = decimal.NewFromString(ticker.BidQty); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid qty: %w", err)
	}
	if snap.AskSize, err = decimal.NewFromString(ticker.AskQty); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask qty: %w", err)
	}

	return snap, nil
}

// PlaceOrder submits a signed spot order. Market orders only carry quantity;
// limit orders add a GTC price.
func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if b.Mode() != ModePrivate {
		return OrderResult{}, ErrTradingDisabled
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	values := url.Values{}
	values.Set("symbol", binanceSymbol(req.Symbol))
	values.Set("side", strings.ToUpper(string(req.Side)))
	values.Set("quantity", req.Size.String())
	values.Set("newClientOrderId", clientID)
	values.Set("newOrderRespType", "FULL")
	values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	switch req.Type {
	case OrderTypeLimit:
		values.Set("type", "LIMIT")
		values.Set("timeInForce", "GTC")
		values.Set("price", req.Price.String())
	default:
		values.Set("type", "MARKET")
	}

	query := values.Encode()
	mac := hmac.New(sha256.New, []byte(b.opts.APISecret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	endpoint := b.baseURL + binanceOrderPath + "?" + query
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return OrderResult{}, err
	}
	httpReq.Header.Set("X-MBX-APIKEY", b.opts.APIKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance place order: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return OrderResult{}, binanceAPIError(resp.StatusCode, payload)
	}

	var order struct {
		OrderID             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(payload, &order); err != nil {
		return OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}

	filled, err := decimal.NewFromString(order.ExecutedQty)
	if err != nil {
		return OrderResult{}, fmt.Errorf("parse executed qty: %w", err)
	}
	quote, err := decimal.NewFromString(order.CummulativeQuoteQty)
	if err != nil {
		return OrderResult{}, fmt.Errorf("parse quote qty: %w", err)
	}

	result := OrderResult{
		OrderID:    strconv.FormatInt(order.OrderID, 10),
		FilledSize: filled,
		Status:     order.Status,
	}
	if filled.IsPositive() {
		result.AvgPrice = quote.Div(filled)
	}
	if !filled.IsPositive() || order.Status != "FILLED" {
		return result, fmt.Errorf("binance order %s not filled (status=%s)", result.OrderID, order.Status)
	}

	b.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("size", req.Size.String()).
		Str("avg_price", result.AvgPrice.String()).
		Msg("order filled")
	return result, nil
}

// binanceSymbol maps "BTC/USDT" to Binance's "BTCUSDT" convention.
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func binanceAPIError(status int, payload []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var (
	_ Adapter = (*Binance)(nil)
	_ Trader  = (*Binance)(nil)
)
