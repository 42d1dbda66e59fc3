package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

// SpreadAlert 封装一次跨所价差告警。
type SpreadAlert struct {
	Symbol       string
	BuyExchange  string
	SellExchange string
	BuyAsk       decimal.Decimal
	SellBid      decimal.Decimal
	SpreadPct    decimal.Decimal
	ThresholdPct decimal.Decimal
	At           time.Time
}

// Broadcast carries the full BBO picture for the periodic report. Keys are
// symbol → exchange → snapshot.
type Broadcast struct {
	Books map[string]map[string]market.BboSnapshot
	At    time.Time
}

// Execution alert severities.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// ExecutionAlert reports the outcome of a hedged execution attempt.
// PartialFillRisk outcomes must be delivered with SeverityCritical so they
// cannot be mistaken for a benign failure.
type ExecutionAlert struct {
	AttemptID    string
	Symbol       string
	BuyExchange  string
	SellExchange string
	Size         decimal.Decimal
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	NetSpreadPct decimal.Decimal
	State        string
	Severity     string
	Detail       string
	At           time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	NotifySpread(ctx context.Context, alert SpreadAlert) error
	NotifyBroadcast(ctx context.Context, broadcast Broadcast) error
	NotifyExecution(ctx context.Context, alert ExecutionAlert) error
}

// Multi fans out to several sinks. A failing sink is logged and skipped; one
// broken webhook never blocks the others or the evaluation loop.
type Multi struct {
	sinks  []Notifier
	logger zerolog.Logger
}

// NewMulti wraps a notifier list.
func NewMulti(sinks []Notifier, logger zerolog.Logger) *Multi {
	return &Multi{sinks: sinks, logger: logger.With().Str("component", "alert_multi").Logger()}
}

// NotifySpread implements Notifier.
func (m *Multi) NotifySpread(ctx context.Context, alert SpreadAlert) error {
	for _, sink := range m.sinks {
		if err := sink.NotifySpread(ctx, alert); err != nil {
			m.logger.Error().Err(err).Str("symbol", alert.Symbol).Msg("spread alert delivery failed")
		}
	}
	return nil
}

// NotifyBroadcast implements Notifier.
func (m *Multi) NotifyBroadcast(ctx context.Context, broadcast Broadcast) error {
	for _, sink := range m.sinks {
		if err := sink.NotifyBroadcast(ctx, broadcast); err != nil {
			m.logger.Error().Err(err).Msg("periodic broadcast delivery failed")
		}
	}
	return nil
}

// NotifyExecution implements Notifier.
func (m *Multi) NotifyExecution(ctx context.Context, alert ExecutionAlert) error {
	for _, sink := range m.sinks {
		if err := sink.NotifyExecution(ctx, alert); err != nil {
			m.logger.Error().Err(err).Str("attempt_id", alert.AttemptID).Msg("execution alert delivery failed")
		}
	}
	return nil
}

func renderSpread(alert SpreadAlert) string {
	builder := strings.Builder{}
	builder.WriteString("🔔 价差提醒\n")
	builder.WriteString(fmt.Sprintf("交易对: %s\n", alert.Symbol))
	builder.WriteString(fmt.Sprintf("价差: %s%% (阈值 %s%%)\n", alert.SpreadPct.StringFixed(2), alert.ThresholdPct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("在 %s 买入 @ %s\n", alert.BuyExchange, alert.BuyAsk.String()))
	builder.WriteString(fmt.Sprintf("在 %s 卖出 @ %s\n", alert.SellExchange, alert.SellBid.String()))
	builder.WriteString(fmt.Sprintf("Time: %s UTC", alert.At.UTC().Format(time.RFC3339)))
	return builder.String()
}

func renderBroadcast(broadcast Broadcast) string {
	builder := strings.Builder{}
	builder.WriteString("📊 定期价差播报\n")

	symbols := make([]string, 0, len(broadcast.Books))
	for symbol := range broadcast.Books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		books := broadcast.Books[symbol]
		builder.WriteString(fmt.Sprintf("\n🔸 %s:\n", symbol))

		if buy, sell, spread, ok := bestOpportunity(books); ok {
			builder.WriteString(fmt.Sprintf("最大价差: %s%% (在 %s 买入, 在 %s 卖出)\n", spread.StringFixed(2), buy, sell))
		}

		exchanges := make([]string, 0, len(books))
		for name := range books {
			exchanges = append(exchanges, name)
		}
		sort.Strings(exchanges)
		for _, name := range exchanges {
			snap := books[name]
			builder.WriteString(fmt.Sprintf("%s: 买 %s 卖 %s (价差 %s%%)\n",
				name, snap.Bid.String(), snap.Ask.String(), snap.InsideSpreadPct().StringFixed(2)))
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

func renderExecution(alert ExecutionAlert) string {
	builder := strings.Builder{}
	if alert.Severity == SeverityCritical {
		builder.WriteString("⚠️ 套利执行异常，需要人工处理\n")
	} else {
		builder.WriteString("⚙️ 套利执行回报\n")
	}
	builder.WriteString(fmt.Sprintf("Attempt: %s\n", alert.AttemptID))
	builder.WriteString(fmt.Sprintf("交易对: %s (%s → %s)\n", alert.Symbol, alert.BuyExchange, alert.SellExchange))
	builder.WriteString(fmt.Sprintf("状态: %s\n", alert.State))
	builder.WriteString(fmt.Sprintf("数量: %s\n", alert.Size.String()))
	if alert.BuyPrice.IsPositive() {
		builder.WriteString(fmt.Sprintf("买入成交: %s\n", alert.BuyPrice.String()))
	}
	if alert.SellPrice.IsPositive() {
		builder.WriteString(fmt.Sprintf("卖出成交: %s\n", alert.SellPrice.String()))
	}
	if !alert.NetSpreadPct.IsZero() {
		builder.WriteString(fmt.Sprintf("净价差: %s%%\n", alert.NetSpreadPct.StringFixed(3)))
	}
	if alert.Detail != "" {
		builder.WriteString(alert.Detail)
	}
	return strings.TrimRight(builder.String(), "\n")
}

// bestOpportunity finds the strongest cross-venue direction in one symbol's
// books, mirroring the evaluation formula.
func bestOpportunity(books map[string]market.BboSnapshot) (buy, sell string, spread decimal.Decimal, ok bool) {
	for buyName, buyLeg := range books {
		if !buyLeg.Ask.IsPositive() {
			continue
		}
		for sellName, sellLeg := range books {
			if buyName == sellName {
				continue
			}
			candidate := sellLeg.Bid.Sub(buyLeg.Ask).Div(buyLeg.Ask).Mul(decimal.NewFromInt(100))
			if !ok || candidate.GreaterThan(spread) {
				buy, sell, spread, ok = buyName, sellName, candidate, true
			}
		}
	}
	return buy, sell, spread, ok
}
