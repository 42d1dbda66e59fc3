package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/internal/engine"
	"crossarb/internal/market"
)

// Check performs a one-shot fetch across all exchanges and prints every
// cross-venue pair for the requested symbols, qualifying or not. Useful for
// verifying connectivity and thresholds before running the service.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	adapters, err := a.newAdapters()
	if err != nil {
		return err
	}

	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = a.Config.Symbols()
	}

	symbolsByExchange := make(map[string][]string, len(a.Config.Exchanges))
	for _, ex := range a.Config.Exchanges {
		symbolsByExchange[ex.Name] = ex.Symbols
	}

	registry := market.NewRegistry(a.Config.Strategy.QuoteMaxAge)
	now := time.Now().UTC()

	for _, adapter := range adapters {
		for _, symbol := range symbolsByExchange[adapter.Name()] {
			if !contains(symbols, symbol) {
				continue
			}
			snap, err := adapter.FetchBBO(ctx, symbol)
			if err != nil {
				a.Logger.Warn().Err(err).
					Str("exchange", adapter.Name()).
					Str("symbol", symbol).
					Msg("fetch BBO failed")
				continue
			}
			if _, err := registry.Update(snap); err != nil {
				a.Logger.Warn().Err(err).
					Str("exchange", adapter.Name()).
					Str("symbol", symbol).
					Msg("quote rejected")
			}
		}
	}

	threshold := decimal.NewFromFloat(a.Config.Strategy.MinSpreadPct)
	// Threshold zero keeps every pair visible in the report.
	eng := engine.NewEngine(registry, decimal.Zero, a.Logger)
	events := eng.Evaluate(now, symbols)
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no comparable quote pairs; need fresh quotes from at least two exchanges")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tBuy@\tAsk\tSell@\tBid\tSpread%\tQualifies")
	for _, ev := range events {
		qualifies := "no"
		if ev.SpreadPct.GreaterThanOrEqual(threshold) {
			qualifies = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Symbol,
			ev.BuyExchange,
			ev.BuyAsk.String(),
			ev.SellExchange,
			ev.SellBid.String(),
			ev.SpreadPct.StringFixed(4),
			qualifies,
		)
	}
	writer.Flush()
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
