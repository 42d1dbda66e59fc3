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

func TestBybitFetchBBO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != bybitTickersPath {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("category") != "spot" || query.Get("symbol") != "BTCUSDT" {
			t.Fatalf("查询参数不正确: %v", query)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0,
			"result": map[string]any{
				"list": []map[string]string{{
					"bid1Price": "64000.2",
					"bid1Size":  "0.8",
					"ask1Price": "64000.7",
					"ask1Size":  "1.2",
				}},
			},
		})
	}))
	defer srv.Close()

	adapter := NewBybit(BybitOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	snap, err := adapter.FetchBBO(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchBBO 应成功: %v", err)
	}

	if snap.Exchange != "bybit" {
		t.Fatalf("交易所标识不正确: %s", snap.Exchange)
	}
	if !snap.Bid.Equal(decimal.RequireFromString("64000.2")) || !snap.Ask.Equal(decimal.RequireFromString("64000.7")) {
		t.Fatalf("价格解析错误: bid=%s ask=%s", snap.Bid.String(), snap.Ask.String())
	}
	if !snap.AskSize.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("ask size 解析错误: %s", snap.AskSize.String())
	}
}

func TestBybitFetchBBORetCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"retCode": 10001,
			"retMsg":  "params error",
			"result":  map[string]any{"list": []any{}},
		})
	}))
	defer srv.Close()

	adapter := NewBybit(BybitOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := adapter.FetchBBO(context.Background(), "BTC/USDT"); err == nil {
		t.Fatal("retCode != 0 应报错")
	}
}

func TestBybitAlwaysPublic(t *testing.T) {
	adapter := NewBybit(BybitOptions{}, zerolog.Nop())
	if adapter.Mode() != ModePublic {
		t.Fatalf("bybit 应始终为 public 模式, 实际 %s", adapter.Mode())
	}
}

func TestBybitSymbolMapping(t *testing.T) {
	if got := bybitSymbol("eth/usdt"); got != "ETHUSDT" {
		t.Fatalf("符号映射错误: %s", got)
	}
}
