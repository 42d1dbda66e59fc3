package engine

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

var dec100 = decimal.NewFromInt(100)

// SpreadEvent 描述一次跨所套利机会: 在 buy 腿吃 ask, 在 sell 腿打 bid。
// Transient, produced per evaluation cycle.
type SpreadEvent struct {
	Symbol       string
	BuyExchange  string
	SellExchange string
	BuyAsk       decimal.Decimal
	SellBid      decimal.Decimal
	BuySize      decimal.Decimal // ask size on the buy leg
	SellSize     decimal.Decimal // bid size on the sell leg
	SpreadPct    decimal.Decimal
	ComputedAt   time.Time
}

// SpreadPct computes (sellBid - buyAsk) / buyAsk * 100.
func SpreadPct(buyAsk, sellBid decimal.Decimal) decimal.Decimal {
	return sellBid.Sub(buyAsk).Div(buyAsk).Mul(dec100)
}

// Engine computes pairwise spreads over the quote registry.
type Engine struct {
	registry  *market.Registry
	minSpread decimal.Decimal
	logger    zerolog.Logger
}

// NewEngine constructs a spread engine.
func NewEngine(registry *market.Registry, minSpread decimal.Decimal, logger zerolog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		minSpread: minSpread,
		logger:    logger.With().Str("component", "spread_engine").Logger(),
	}
}

// Evaluate computes qualifying spread events for all given symbols, sorted by
// descending spread so downstream consumers see the most attractive
// opportunity first. Pairs with a stale leg are skipped entirely; evaluation
// never waits on in-flight fetches.
func (e *Engine) Evaluate(now time.Time, symbols []string) []SpreadEvent {
	var events []SpreadEvent
	for _, symbol := range symbols {
		events = append(events, e.evaluateSymbol(now, symbol)...)
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].SpreadPct.Equal(events[j].SpreadPct) {
			return events[i].SpreadPct.GreaterThan(events[j].SpreadPct)
		}
		if events[i].Symbol != events[j].Symbol {
			return events[i].Symbol < events[j].Symbol
		}
		if events[i].BuyExchange != events[j].BuyExchange {
			return events[i].BuyExchange < events[j].BuyExchange
		}
		return events[i].SellExchange < events[j].SellExchange
	})
	return events
}

func (e *Engine) evaluateSymbol(now time.Time, symbol string) []SpreadEvent {
	books := e.registry.FreshFor(symbol, now)
	if len(books) < 2 {
		return nil
	}

	exchanges := make([]string, 0, len(books))
	for name := range books {
		exchanges = append(exchanges, name)
	}
	sort.Strings(exchanges)

	var events []SpreadEvent
	for _, buy := range exchanges {
		for _, sell := range exchanges {
			if buy == sell {
				continue
			}

			buyLeg, sellLeg := books[buy], books[sell]
			if !buyLeg.Ask.IsPositive() {
				// Registry validation forbids this, but never risk the division.
				e.logger.Warn().Str("symbol", symbol).Str("exchange", buy).
					Str("ask", buyLeg.Ask.String()).Msg("skipping pair with non-positive ask")
				continue
			}

			spread := SpreadPct(buyLeg.Ask, sellLeg.Bid)
			if spread.LessThan(e.minSpread) {
				continue
			}

			events = append(events, SpreadEvent{
				Symbol:       symbol,
				BuyExchange:  buy,
				SellExchange: sell,
				BuyAsk:       buyLeg.Ask,
				SellBid:      sellLeg.Bid,
				BuySize:      buyLeg.AskSize,
				SellSize:     sellLeg.BidSize,
				SpreadPct:    spread,
				ComputedAt:   now,
			})
		}
	}
	return events
}
