package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuote marks a snapshot whose prices cannot be traded against.
var ErrInvalidQuote = errors.New("market: invalid quote")

// BboSnapshot 表示单个交易所某交易对的最优买卖价快照。
// Snapshots are immutable; newer observations supersede older ones in the
// registry, they never mutate an existing entry.
type BboSnapshot struct {
	Exchange   string
	Symbol     string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BidSize    decimal.Decimal
	AskSize    decimal.Decimal
	ObservedAt time.Time
}

// Validate rejects snapshots that cannot have come from a sane order book:
// non-positive prices, or a bid at or through the ask on the same venue.
func (s BboSnapshot) Validate() error {
	if s.Exchange == "" || s.Symbol == "" {
		return fmt.Errorf("%w: missing exchange or symbol", ErrInvalidQuote)
	}
	if !s.Bid.IsPositive() || !s.Ask.IsPositive() {
		return fmt.Errorf("%w: %s %s non-positive price (bid=%s ask=%s)", ErrInvalidQuote, s.Exchange, s.Symbol, s.Bid, s.Ask)
	}
	if s.Bid.GreaterThanOrEqual(s.Ask) {
		return fmt.Errorf("%w: %s %s crossed book (bid=%s ask=%s)", ErrInvalidQuote, s.Exchange, s.Symbol, s.Bid, s.Ask)
	}
	return nil
}

// Age returns how long ago the snapshot was observed.
func (s BboSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// InsideSpreadPct is the venue's own bid/ask spread as a percentage of the bid.
// Used only for display in periodic broadcasts.
func (s BboSnapshot) InsideSpreadPct() decimal.Decimal {
	if !s.Bid.IsPositive() {
		return decimal.Zero
	}
	return s.Ask.Sub(s.Bid).Div(s.Bid).Mul(decimal.NewFromInt(100))
}
