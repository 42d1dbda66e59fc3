package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestOKXFetchBBO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != okxTickerPath {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT" {
			t.Fatalf("instId 应映射为 BTC-USDT, 实际 %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"data": []map[string]string{{
				"bidPx": "64000.1",
				"bidSz": "3",
				"askPx": "64000.9",
				"askSz": "4",
				"ts":    "1726000000000",
			}},
		})
	}))
	defer srv.Close()

	adapter := NewOKX(OKXOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	snap, err := adapter.FetchBBO(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchBBO 应成功: %v", err)
	}

	if !snap.Ask.Equal(decimal.RequireFromString("64000.9")) {
		t.Fatalf("ask 解析错误: %s", snap.Ask.String())
	}
	if !snap.BidSize.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("bid size 解析错误: %s", snap.BidSize.String())
	}

	// 观测时间应来自交易所时间戳, 而非本地时钟。
	want := time.UnixMilli(1726000000000).UTC()
	if !snap.ObservedAt.Equal(want) {
		t.Fatalf("观测时间应为 %s, 实际 %s", want, snap.ObservedAt)
	}
}

func TestOKXFetchBBOErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "51001",
			"msg":  "Instrument ID does not exist",
			"data": []map[string]string{},
		})
	}))
	defer srv.Close()

	adapter := NewOKX(OKXOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := adapter.FetchBBO(context.Background(), "BTC/USDT"); err == nil {
		t.Fatal("code != 0 应报错")
	}
}

func TestOKXPlaceOrderPublicModeRejected(t *testing.T) {
	adapter := NewOKX(OKXOptions{Mode: ModePublic}, zerolog.Nop())
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

func TestOKXPlaceOrderFilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OK-ACCESS-KEY") != "key" || r.Header.Get("OK-ACCESS-SIGN") == "" {
			t.Fatal("缺少认证头")
		}

		switch r.Method {
		case http.MethodPost:
			var order map[string]string
			if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
				t.Fatalf("解析订单失败: %v", err)
			}
			if order["tdMode"] != "cash" || order["ordType"] != "market" {
				t.Fatalf("订单参数不正确: %v", order)
			}
			if order["tgtCcy"] != "base_ccy" {
				t.Fatalf("市价买单应以基础币种计量: %v", order)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": "0",
				"data": []map[string]string{{"ordId": "abc123", "sCode": "0"}},
			})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": "0",
				"data": []map[string]string{{
					"state":     "filled",
					"accFillSz": "1",
					"avgPx":     "64000.5",
				}},
			})
		}
	}))
	defer srv.Close()

	adapter := NewOKX(OKXOptions{
		BaseURL:    srv.URL,
		Mode:       ModePrivate,
		APIKey:     "key",
		APISecret:  "secret",
		Passphrase: "phrase",
		Timeout:    time.Second,
	}, zerolog.Nop())

	result, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTC/USDT",
		Side:   SideBuy,
		Type:   OrderTypeMarket,
		Size:   decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("下单应成功: %v", err)
	}
	if result.OrderID != "abc123" {
		t.Fatalf("订单号不正确: %s", result.OrderID)
	}
	if !result.AvgPrice.Equal(decimal.RequireFromString("64000.5")) {
		t.Fatalf("均价不正确: %s", result.AvgPrice.String())
	}
}
