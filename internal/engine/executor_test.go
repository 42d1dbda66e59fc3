package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/internal/exchange"
	"crossarb/internal/market"
)

// fakeTrader records every placed order and answers from a script.
type fakeTrader struct {
	name string

	mu     sync.Mutex
	orders []exchange.OrderRequest
	fill   decimal.Decimal
	err    error
	block  chan struct{}
}

func (f *fakeTrader) Name() string        { return f.name }
func (f *fakeTrader) Mode() exchange.Mode { return exchange.ModePrivate }

func (f *fakeTrader) FetchBBO(ctx context.Context, symbol string) (market.BboSnapshot, error) {
	return market.BboSnapshot{}, errors.New("not used")
}

func (f *fakeTrader) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.orders = append(f.orders, req)
	f.mu.Unlock()
	if f.err != nil {
		return exchange.OrderResult{}, f.err
	}
	return exchange.OrderResult{
		OrderID:    "1",
		FilledSize: req.Size,
		AvgPrice:   f.fill,
		Status:     "FILLED",
	}, nil
}

func (f *fakeTrader) placed() []exchange.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange.OrderRequest(nil), f.orders...)
}

func execEvent(buySize, sellSize float64) SpreadEvent {
	return SpreadEvent{
		Symbol:       "BTC/USDT",
		BuyExchange:  "a",
		SellExchange: "b",
		BuyAsk:       decimal.NewFromInt(100),
		SellBid:      decimal.NewFromFloat(100.6),
		BuySize:      decimal.NewFromFloat(buySize),
		SellSize:     decimal.NewFromFloat(sellSize),
		SpreadPct:    decimal.NewFromFloat(0.6),
		ComputedAt:   time.Now(),
	}
}

func TestExecuteBothFilled(t *testing.T) {
	buyer := &fakeTrader{name: "a", fill: decimal.NewFromInt(100)}
	seller := &fakeTrader{name: "b", fill: decimal.NewFromFloat(100.6)}
	fees := map[string]decimal.Decimal{
		"a": decimal.NewFromFloat(0.1),
		"b": decimal.NewFromFloat(0.1),
	}
	coord := NewCoordinator(map[string]exchange.Trader{"a": buyer, "b": seller}, decimal.NewFromInt(10), fees, noopLogger())

	attempt, err := coord.Execute(context.Background(), execEvent(2, 3))
	if err != nil {
		t.Fatalf("执行不应报错: %v", err)
	}
	if attempt.State != StateBothFilled {
		t.Fatalf("期望 BothFilled, 实际 %s", attempt.State)
	}
	if attempt.ID == "" {
		t.Fatal("attempt id 不应为空")
	}
	if !attempt.Size.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("下单量应为两腿 BBO 较小值 2, 实际 %s", attempt.Size)
	}
	// gross 0.6% minus two 0.1% taker fees.
	if !attempt.NetSpreadPct.Equal(decimal.NewFromFloat(0.4)) {
		t.Fatalf("净价差应为 0.4%%, 实际 %s", attempt.NetSpreadPct)
	}

	buyOrders, sellOrders := buyer.placed(), seller.placed()
	if len(buyOrders) != 1 || len(sellOrders) != 1 {
		t.Fatalf("两腿应各下一单: buy=%d sell=%d", len(buyOrders), len(sellOrders))
	}
	if buyOrders[0].Side != exchange.SideBuy || sellOrders[0].Side != exchange.SideSell {
		t.Fatalf("方向错误: %s / %s", buyOrders[0].Side, sellOrders[0].Side)
	}
}

func TestExecuteSizeCappedByMaxOrder(t *testing.T) {
	buyer := &fakeTrader{name: "a", fill: decimal.NewFromInt(100)}
	seller := &fakeTrader{name: "b", fill: decimal.NewFromFloat(100.6)}
	coord := NewCoordinator(map[string]exchange.Trader{"a": buyer, "b": seller}, decimal.NewFromFloat(0.5), nil, noopLogger())

	attempt, err := coord.Execute(context.Background(), execEvent(2, 3))
	if err != nil {
		t.Fatalf("执行不应报错: %v", err)
	}
	if !attempt.Size.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("下单量应被上限截断为 0.5, 实际 %s", attempt.Size)
	}
}

func TestExecuteOneFilledOneFailedNoUnwind(t *testing.T) {
	buyer := &fakeTrader{name: "a", fill: decimal.NewFromInt(100)}
	seller := &fakeTrader{name: "b", err: errors.New("insufficient balance")}
	coord := NewCoordinator(map[string]exchange.Trader{"a": buyer, "b": seller}, decimal.NewFromInt(10), nil, noopLogger())

	attempt, err := coord.Execute(context.Background(), execEvent(2, 3))
	if err != nil {
		t.Fatalf("执行不应报错: %v", err)
	}
	if attempt.State != StateOneFilledOneFailed {
		t.Fatalf("期望 OneFilledOneFailed, 实际 %s", attempt.State)
	}
	if !attempt.PartialFillRisk() {
		t.Fatal("部分成交应标记 PartialFillRisk")
	}
	if attempt.SellError == "" || attempt.BuyError != "" {
		t.Fatalf("仅卖腿应有错误: buy=%q sell=%q", attempt.BuyError, attempt.SellError)
	}
	// No unwind order: each venue saw exactly one order.
	if len(buyer.placed()) != 1 || len(seller.placed()) != 1 {
		t.Fatalf("不应自动平仓: buy=%d sell=%d", len(buyer.placed()), len(seller.placed()))
	}
}

func TestExecuteBothFailed(t *testing.T) {
	buyer := &fakeTrader{name: "a", err: errors.New("down")}
	seller := &fakeTrader{name: "b", err: errors.New("down")}
	coord := NewCoordinator(map[string]exchange.Trader{"a": buyer, "b": seller}, decimal.NewFromInt(10), nil, noopLogger())

	attempt, err := coord.Execute(context.Background(), execEvent(2, 3))
	if err != nil {
		t.Fatalf("执行不应报错: %v", err)
	}
	if attempt.State != StateBothFailed {
		t.Fatalf("期望 BothFailed, 实际 %s", attempt.State)
	}
	if attempt.PartialFillRisk() {
		t.Fatal("双腿失败没有持仓风险")
	}
}

func TestExecuteSerializesPerSymbol(t *testing.T) {
	release := make(chan struct{})
	buyer := &fakeTrader{name: "a", fill: decimal.NewFromInt(100), block: release}
	seller := &fakeTrader{name: "b", fill: decimal.NewFromFloat(100.6), block: release}
	coord := NewCoordinator(map[string]exchange.Trader{"a": buyer, "b": seller}, decimal.NewFromInt(10), nil, noopLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coord.Execute(context.Background(), execEvent(2, 3))
	}()

	// Wait until the first attempt holds the symbol.
	deadline := time.After(time.Second)
	for {
		if !coord.acquire("other") {
			t.Fatal("其他 symbol 不应被占用")
		}
		coord.release("other")
		coord.mu.Lock()
		_, held := coord.busy["BTC/USDT"]
		coord.mu.Unlock()
		if held {
			break
		}
		select {
		case <-deadline:
			t.Fatal("等待首个 attempt 超时")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := coord.Execute(context.Background(), execEvent(2, 3)); !errors.Is(err, ErrAttemptInFlight) {
		t.Fatalf("并发同 symbol 应返回 ErrAttemptInFlight, 实际 %v", err)
	}

	close(release)
	<-done

	if _, err := coord.Execute(context.Background(), execEvent(2, 3)); err != nil {
		t.Fatalf("attempt 结束后应可再次执行: %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	allowed := [][2]AttemptState{
		{StateEvaluated, StateLegsSubmitted},
		{StateLegsSubmitted, StateBothFilled},
		{StateLegsSubmitted, StateOneFilledOneFailed},
		{StateLegsSubmitted, StateBothFailed},
		{StateBothFilled, StateReported},
		{StateOneFilledOneFailed, StateReported},
		{StateBothFailed, StateReported},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Fatalf("%s → %s 应为合法转移", edge[0], edge[1])
		}
	}

	forbidden := [][2]AttemptState{
		{StateEvaluated, StateBothFilled},
		{StateReported, StateEvaluated},
		{StateBothFilled, StateLegsSubmitted},
		{StateOneFilledOneFailed, StateBothFilled},
	}
	for _, edge := range forbidden {
		if CanTransition(edge[0], edge[1]) {
			t.Fatalf("%s → %s 不应为合法转移", edge[0], edge[1])
		}
	}
}
