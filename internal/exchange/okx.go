package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

const (
	okxTickerPath = "/api/v5/market/ticker"
	okxOrderPath  = "/api/v5/trade/order"
)

// OKXOptions parameterise the OKX adapter.
type OKXOptions struct {
	Name       string
	BaseURL    string
	Mode       Mode
	APIKey     string
	APISecret  string
	Passphrase string
	Timeout    time.Duration
}

// OKX adapts the OKX v5 REST API.
type OKX struct {
	opts    OKXOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewOKX constructs an OKX adapter.
func NewOKX(opts OKXOptions, logger zerolog.Logger) *OKX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.okx.com"
	}

	name := opts.Name
	if name == "" {
		name = "okx"
	}
	opts.Name = name

	return &OKX{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "exchange_okx").Logger(),
	}
}

// Name implements Adapter.
func (o *OKX) Name() string { return o.opts.Name }

// Mode implements Adapter.
func (o *OKX) Mode() Mode {
	if o.opts.Mode == ModePrivate {
		return ModePrivate
	}
	return ModePublic
}

// FetchBBO retrieves the top-of-book quote for a symbol.
func (o *OKX) FetchBBO(ctx context.Context, symbol string) (market.BboSnapshot, error) {
	endpoint := fmt.Sprintf("%s%s?instId=%s", o.baseURL, okxTickerPath, okxInstID(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.BboSnapshot{}, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return market.BboSnapshot{}, fmt.Errorf("okx ticker: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.BboSnapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return market.BboSnapshot{}, fmt.Errorf("okx api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			BidPx string `json:"bidPx"`
			BidSz string `json:"bidSz"`
			AskPx string `json:"askPx"`
			AskSz string `json:"askSz"`
			Ts    string `json:"ts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("decode ticker: %w", err)
	}
	if body.Code != "0" || len(body.Data) == 0 {
		return market.BboSnapshot{}, fmt.Errorf("okx ticker error: code=%s msg=%s", body.Code, body.Msg)
	}

	data := body.Data[0]
	snap := market.BboSnapshot{
		Exchange:   o.opts.Name,
		Symbol:     symbol,
		ObservedAt: time.Now().UTC(),
	}
	if ms, err := strconv.ParseInt(data.Ts, 10, 64); err == nil {
		snap.ObservedAt = time.UnixMilli(ms).UTC()
	}
	if snap.Bid, err = decimal.NewFromString(data.BidPx); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid px: %w", err)
	}
	if snap.Ask, err = decimal.NewFromString(data.AskPx); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask px: %w", err)
	}
	if snap.BidSize, err = decimal.NewFromString(data.BidSz); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse bid sz: %w", err)
	}
	if snap.AskSize, err = decimal.NewFromString(data.AskSz); err != nil {
		return market.BboSnapshot{}, fmt.Errorf("parse ask sz: %w", err)
	}

	return snap, nil
}

// PlaceOrder submits a signed spot order via the v5 trade endpoint.
func (o *OKX) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if o.Mode() != ModePrivate {
		return OrderResult{}, ErrTradingDisabled
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	order := map[string]string{
		"instId":  okxInstID(req.Symbol),
		"tdMode":  "cash",
		"side":    string(req.Side),
		"sz":      req.Size.String(),
		"clOrdId": clientID,
	}
	switch req.Type {
	case OrderTypeLimit:
		order["ordType"] = "limit"
		order["px"] = req.Price.String()
	default:
		order["ordType"] = "market"
		// Market buys default to quote-denominated size on OKX; keep base units.
		if req.Side == SideBuy {
			order["tgtCcy"] = "base_ccy"
		}
	}

	body, err := json.Marshal(order)
	if err != nil {
		return OrderResult{}, err
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+okxOrderPath, bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OK-ACCESS-KEY", o.opts.APIKey)
	httpReq.Header.Set("OK-ACCESS-SIGN", o.sign(timestamp, http.MethodPost, okxOrderPath, string(body)))
	httpReq.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	httpReq.Header.Set("OK-ACCESS-PASSPHRASE", o.opts.Passphrase)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return OrderResult{}, fmt.Errorf("okx place order: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResult{}, err
	}

	var result struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}
	if result.Code != "0" || len(result.Data) == 0 {
		return OrderResult{}, fmt.Errorf("okx order rejected: code=%s msg=%s", result.Code, result.Msg)
	}
	if result.Data[0].SCode != "0" {
		return OrderResult{}, fmt.Errorf("okx order rejected: %s", result.Data[0].SMsg)
	}

	ordID := result.Data[0].OrdID
	fill, err := o.fetchFill(ctx, okxInstID(req.Symbol), ordID)
	if err != nil {
		return OrderResult{OrderID: ordID, Status: "submitted"}, fmt.Errorf("okx fill lookup: %w", err)
	}

	o.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("size", fill.FilledSize.String()).
		Str("avg_price", fill.AvgPrice.String()).
		Msg("order filled")
	fill.OrderID = ordID
	return fill, nil
}

// fetchFill reads back the accumulated fill for an order id.
func (o *OKX) fetchFill(ctx context.Context, instID, ordID string) (OrderResult, error) {
	path := fmt.Sprintf("%s?instId=%s&ordId=%s", okxOrderPath, instID, ordID)
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return OrderResult{}, err
	}
	req.Header.Set("OK-ACCESS-KEY", o.opts.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", o.sign(timestamp, http.MethodGet, path, ""))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", o.opts.Passphrase)

	resp, err := o.client.Do(req)
	if err != nil {
		return OrderResult{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Code string `json:"code"`
		Data []struct {
			State      string `json:"state"`
			AccFillSz  string `json:"accFillSz"`
			AvgPx      string `json:"avgPx"`
			FillNotion string `json:"fillNotionalUsd"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return OrderResult{}, err
	}
	if body.Code != "0" || len(body.Data) == 0 {
		return OrderResult{}, fmt.Errorf("okx order state error: code=%s", body.Code)
	}

	data := body.Data[0]
	result := OrderResult{Status: data.State}
	if result.FilledSize, err = decimal.NewFromString(data.AccFillSz); err != nil {
		return OrderResult{}, fmt.Errorf("parse acc fill sz: %w", err)
	}
	if data.AvgPx != "" {
		if result.AvgPrice, err = decimal.NewFromString(data.AvgPx); err != nil {
			return OrderResult{}, fmt.Errorf("parse avg px: %w", err)
		}
	}
	if data.State != "filled" {
		return result, fmt.Errorf("okx order not filled (state=%s)", data.State)
	}
	return result, nil
}

func (o *OKX) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(o.opts.APISecret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// okxInstID maps "BTC/USDT" to OKX's "BTC-USDT" convention.
func okxInstID(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}

var (
	_ Adapter = (*OKX)(nil)
	_ Trader  = (*OKX)(nil)
)
