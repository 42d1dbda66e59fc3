package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestBinanceFetchBBO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != binanceBookTickerPath {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol 应映射为 BTCUSDT, 实际 %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"symbol":   "BTCUSDT",
			"bidPrice": "64000.10",
			"bidQty":   "1.5",
			"askPrice": "64000.50",
			"askQty":   "2.0",
		})
	}))
	defer srv.Close()

	adapter := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	snap, err := adapter.FetchBBO(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchBBO 应成功: %v", err)
	}

	if snap.Exchange != "binance" || snap.Symbol != "BTC/USDT" {
		t.Fatalf("快照标识不正确: %+v", snap)
	}
	if !snap.Bid.Equal(decimal.RequireFromString("64000.10")) {
		t.Fatalf("bid 解析错误: %s", snap.Bid.String())
	}
	if !snap.AskSize.Equal(decimal.RequireFromString("2.0")) {
		t.Fatalf("ask size 解析错误: %s", snap.AskSize.String())
	}
	if snap.ObservedAt.IsZero() {
		t.Fatal("应填充观测时间")
	}
}

func TestBinanceFetchBBOAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	adapter := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := adapter.FetchBBO(context.Background(), "BTC/USDT")
	if err == nil {
		t.Fatal("API 错误应向上传播")
	}
	if !strings.Contains(err.Error(), "Invalid symbol") {
		t.Fatalf("错误应携带 API 消息: %v", err)
	}
}

func TestBinancePlaceOrderPublicModeRejected(t *testing.T) {
	adapter := NewBinance(BinanceOptions{Mode: ModePublic}, zerolog.Nop())
	_, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTC/USDT",
		Side:   SideBuy,
		Type:   OrderTypeMarket,
		Size:   decimal.NewFromInt(1),
	})
	if err != ErrTradingDisabled {
		t.Fatalf("public 模式下单应返回 ErrTradingDisabled, 实际 %v", err)
	}
}

func TestBinancePlaceOrderFilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != binanceOrderPath {
			t.Fatalf("请求不正确: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Fatal("缺少 API key 头")
		}
		query := r.URL.Query()
		if query.Get("signature") == "" {
			t.Fatal("请求应已签名")
		}
		if query.Get("type") != "MARKET" || query.Get("side") != "BUY" {
			t.Fatalf("订单参数不正确: %v", query)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":             12345,
			"status":              "FILLED",
			"executedQty":         "2",
			"cummulativeQuoteQty": "128001.20",
		})
	}))
	defer srv.Close()

	adapter := NewBinance(BinanceOptions{
		BaseURL:   srv.URL,
		Mode:      ModePrivate,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   time.Second,
	}, zerolog.Nop())

	result, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTC/USDT",
		Side:   SideBuy,
		Type:   OrderTypeMarket,
		Size:   decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("下单应成功: %v", err)
	}
	if result.OrderID != "12345" {
		t.Fatalf("订单号不正确: %s", result.OrderID)
	}
	// 128001.20 / 2 = 64000.60
	if !result.AvgPrice.Equal(decimal.RequireFromString("64000.6")) {
		t.Fatalf("均价计算错误: %s", result.AvgPrice.String())
	}
}

func TestBinancePlaceOrderNotFilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":             777,
			"status":              "EXPIRED",
			"executedQty":         "0",
			"cummulativeQuoteQty": "0",
		})
	}))
	defer srv.Close()

	adapter := NewBinance(BinanceOptions{
		BaseURL:   srv.URL,
		Mode:      ModePrivate,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   time.Second,
	}, zerolog.Nop())

	_, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTC/USDT",
		Side:   SideSell,
		Type:   OrderTypeMarket,
		Size:   decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("未成交订单应报错")
	}
	if !strings.Contains(err.Error(), "EXPIRED") {
		t.Fatalf("错误应携带订单状态: %v", err)
	}
}
