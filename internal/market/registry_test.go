package market

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func snap(exchange, symbol string, bid, ask float64, at time.Time) BboSnapshot {
	return BboSnapshot{
		Exchange:   exchange,
		Symbol:     symbol,
		Bid:        decimal.NewFromFloat(bid),
		Ask:        decimal.NewFromFloat(ask),
		BidSize:    decimal.NewFromInt(1),
		AskSize:    decimal.NewFromInt(1),
		ObservedAt: at,
	}
}

func TestRegistryRejectsCrossedBook(t *testing.T) {
	reg := NewRegistry(time.Minute)
	now := time.Now()

	crossed := snap("binance", "BTC/USDT", 101, 100, now)
	for i := 0; i < 3; i++ {
		if _, err := reg.Update(crossed); !errors.Is(err, ErrInvalidQuote) {
			t.Fatalf("bid>ask 应返回 ErrInvalidQuote, 实际 %v", err)
		}
	}

	locked := snap("binance", "BTC/USDT", 100, 100, now)
	if _, err := reg.Update(locked); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("bid==ask 应返回 ErrInvalidQuote, 实际 %v", err)
	}

	if _, _, ok := reg.Get("binance", "BTC/USDT", now); ok {
		t.Fatal("非法快照不应进入注册表")
	}
}

func TestRegistryRejectsNonPositivePrices(t *testing.T) {
	reg := NewRegistry(time.Minute)
	now := time.Now()

	if _, err := reg.Update(snap("okx", "BTC/USDT", 0, 100, now)); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("bid=0 应返回 ErrInvalidQuote, 实际 %v", err)
	}
	if _, err := reg.Update(snap("okx", "BTC/USDT", -1, 100, now)); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("负价应返回 ErrInvalidQuote, 实际 %v", err)
	}
}

func TestRegistryLastWriteWinsByTimestamp(t *testing.T) {
	reg := NewRegistry(time.Minute)
	base := time.Now()

	if ok, err := reg.Update(snap("binance", "BTC/USDT", 100, 101, base)); err != nil || !ok {
		t.Fatalf("首次更新应成功: ok=%v err=%v", ok, err)
	}

	// Older observation arriving late must be dropped silently.
	if ok, err := reg.Update(snap("binance", "BTC/USDT", 90, 91, base.Add(-time.Second))); err != nil || ok {
		t.Fatalf("乱序快照应被丢弃: ok=%v err=%v", ok, err)
	}
	// Equal timestamp is not strictly newer.
	if ok, _ := reg.Update(snap("binance", "BTC/USDT", 90, 91, base)); ok {
		t.Fatal("相同时间戳不应替换")
	}

	got, fresh, ok := reg.Get("binance", "BTC/USDT", base.Add(time.Second))
	if !ok || !fresh {
		t.Fatalf("应返回新鲜快照: ok=%v fresh=%v", ok, fresh)
	}
	if !got.Bid.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("应保留较新的快照, 实际 bid=%s", got.Bid)
	}

	if ok, err := reg.Update(snap("binance", "BTC/USDT", 102, 103, base.Add(time.Second))); err != nil || !ok {
		t.Fatalf("更新的快照应替换: ok=%v err=%v", ok, err)
	}
}

func TestRegistryFreshness(t *testing.T) {
	reg := NewRegistry(30 * time.Second)
	base := time.Now()

	if _, err := reg.Update(snap("binance", "ETH/USDT", 2000, 2001, base)); err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	if _, fresh, _ := reg.Get("binance", "ETH/USDT", base.Add(29*time.Second)); !fresh {
		t.Fatal("阈值内应视为新鲜")
	}
	if _, fresh, _ := reg.Get("binance", "ETH/USDT", base.Add(31*time.Second)); fresh {
		t.Fatal("超过阈值应视为过期")
	}
}

func TestRegistryFreshForExcludesStale(t *testing.T) {
	reg := NewRegistry(30 * time.Second)
	base := time.Now()

	if _, err := reg.Update(snap("binance", "BTC/USDT", 100, 101, base.Add(-time.Minute))); err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if _, err := reg.Update(snap("okx", "BTC/USDT", 100, 101, base)); err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	all := reg.SnapshotsFor("BTC/USDT")
	if len(all) != 2 {
		t.Fatalf("SnapshotsFor 应包含全部条目, 实际 %d", len(all))
	}

	fresh := reg.FreshFor("BTC/USDT", base)
	if len(fresh) != 1 {
		t.Fatalf("FreshFor 应排除过期条目, 实际 %d", len(fresh))
	}
	if _, ok := fresh["okx"]; !ok {
		t.Fatal("okx 的快照应为新鲜")
	}
}

func TestRegistrySymbols(t *testing.T) {
	reg := NewRegistry(time.Minute)
	now := time.Now()

	_, _ = reg.Update(snap("binance", "ETH/USDT", 2000, 2001, now))
	_, _ = reg.Update(snap("binance", "BTC/USDT", 100, 101, now))
	_, _ = reg.Update(snap("okx", "BTC/USDT", 100, 101, now))

	symbols := reg.Symbols()
	if len(symbols) != 2 || symbols[0] != "BTC/USDT" || symbols[1] != "ETH/USDT" {
		t.Fatalf("Symbols 应排序去重, 实际 %v", symbols)
	}
}
