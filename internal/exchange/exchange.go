package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"crossarb/internal/market"
)

// Mode determines whether an adapter may trade or only read market data.
type Mode string

const (
	ModePublic  Mode = "public"
	ModePrivate Mode = "private"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType supported by the execution path.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// ErrTradingDisabled is returned when an order is attempted through a
// public-mode adapter.
var ErrTradingDisabled = errors.New("exchange: trading disabled in public mode")

// OrderRequest describes a single leg to submit.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Size     decimal.Decimal
	Price    decimal.Decimal // limit orders only
	ClientID string
}

// OrderResult reports the realized outcome of a submitted order.
type OrderResult struct {
	OrderID    string
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	Status     string
}

// Adapter produces BBO snapshots for one venue.
type Adapter interface {
	Name() string
	Mode() Mode
	FetchBBO(ctx context.Context, symbol string) (market.BboSnapshot, error)
}

// Trader extends Adapter with order placement; only private-mode adapters
// implement it meaningfully.
type Trader interface {
	Adapter
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Streamer pushes BBO snapshots continuously instead of being polled.
type Streamer interface {
	Adapter
	Stream(ctx context.Context, symbols []string, out chan<- market.BboSnapshot) error
}
