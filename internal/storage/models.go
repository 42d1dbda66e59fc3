package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpreadSample persists one observed cross-venue spread from an evaluation
// tick. The registry itself is never persisted; samples exist for the show
// and export commands only.
type SpreadSample struct {
	TickTS       time.Time
	Symbol       string
	BuyExchange  string
	SellExchange string
	BuyAsk       decimal.Decimal
	SellBid      decimal.Decimal
	SpreadPct    decimal.Decimal
	CreatedAt    time.Time
}

// AlertRecord captures an emitted spread alert for auditing.
type AlertRecord struct {
	ID           int64
	TickTS       time.Time
	Symbol       string
	BuyExchange  string
	SellExchange string
	SpreadPct    decimal.Decimal
	ThresholdPct decimal.Decimal
	CreatedAt    time.Time
}

// ExecutionRecord captures the terminal outcome of an execution attempt.
type ExecutionRecord struct {
	AttemptID    string
	Symbol       string
	BuyExchange  string
	SellExchange string
	Size         decimal.Decimal
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	NetSpreadPct decimal.Decimal
	State        string
	BuyError     *string
	SellError    *string
	StartedAt    time.Time
	CompletedAt  time.Time
}
