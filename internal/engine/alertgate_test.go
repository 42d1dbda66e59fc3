package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func spreadEvent(symbol, buy, sell string) SpreadEvent {
	return SpreadEvent{
		Symbol:       symbol,
		BuyExchange:  buy,
		SellExchange: sell,
		BuyAsk:       decimal.NewFromInt(100),
		SellBid:      decimal.NewFromFloat(100.6),
		SpreadPct:    decimal.NewFromFloat(0.6),
	}
}

func TestAlertGateCooldownWindow(t *testing.T) {
	gate := NewAlertGate(5*time.Minute, noopLogger())
	base := time.Now()
	ev := spreadEvent("BTC/USDT", "a", "b")

	emitted := 0
	for i := 0; i < 10; i++ {
		if gate.Allow(base.Add(time.Duration(i)*time.Second), ev) {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("一个窗口内应只放行 1 次, 实际 %d", emitted)
	}

	if !gate.Allow(base.Add(5*time.Minute), ev) {
		t.Fatal("冷却期满后应再次放行")
	}
	if gate.Allow(base.Add(5*time.Minute+time.Second), ev) {
		t.Fatal("新窗口内的重复事件应被抑制")
	}
}

func TestAlertGateKeysAreIndependent(t *testing.T) {
	gate := NewAlertGate(5*time.Minute, noopLogger())
	now := time.Now()

	if !gate.Allow(now, spreadEvent("BTC/USDT", "a", "b")) {
		t.Fatal("首个 key 应放行")
	}
	if !gate.Allow(now, spreadEvent("BTC/USDT", "b", "a")) {
		t.Fatal("反方向是独立的 key, 应放行")
	}
	if !gate.Allow(now, spreadEvent("ETH/USDT", "a", "b")) {
		t.Fatal("不同交易对是独立的 key, 应放行")
	}
	if gate.Allow(now.Add(time.Second), spreadEvent("BTC/USDT", "a", "b")) {
		t.Fatal("相同 key 应被抑制")
	}
}
