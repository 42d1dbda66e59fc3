package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"crossarb/internal/storage"
)

// Show prints recent alert or execution records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Executions {
		return a.showExecutions(ctx, store, opts.Limit)
	}
	return a.showAlerts(ctx, store, opts.Limit)
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tBuy@\tSell@\tSpread%\tThreshold%")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.TickTS.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.BuyExchange,
			alert.SellExchange,
			alert.SpreadPct.StringFixed(4),
			alert.ThresholdPct.StringFixed(2),
		)
	}
	writer.Flush()
	return nil
}

func (a *App) showExecutions(ctx context.Context, store storage.ExecutionStore, limit int) error {
	records, err := store.ListRecentExecutions(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no executions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tBuy@\tSell@\tSize\tNet%\tState\tErrors")
	for _, record := range records {
		var errParts []string
		if record.BuyError != nil {
			errParts = append(errParts, "buy: "+sanitizeInline(*record.BuyError))
		}
		if record.SellError != nil {
			errParts = append(errParts, "sell: "+sanitizeInline(*record.SellError))
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.CompletedAt.UTC().Format(time.RFC3339),
			record.Symbol,
			record.BuyExchange,
			record.SellExchange,
			record.Size.String(),
			record.NetSpreadPct.StringFixed(3),
			record.State,
			strings.Join(errParts, "; "),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
