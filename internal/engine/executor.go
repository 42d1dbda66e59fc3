package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/exchange"
)

// AttemptState models the lifecycle of one hedged execution attempt.
type AttemptState string

const (
	StateEvaluated          AttemptState = "evaluated"
	StateLegsSubmitted      AttemptState = "legs_submitted"
	StateBothFilled         AttemptState = "both_filled"
	StateOneFilledOneFailed AttemptState = "one_filled_one_failed"
	StateBothFailed         AttemptState = "both_failed"
	StateReported           AttemptState = "reported"
)

// validTransitions enumerates the allowed state machine edges.
var validTransitions = map[AttemptState][]AttemptState{
	StateEvaluated:          {StateLegsSubmitted, StateBothFailed},
	StateLegsSubmitted:      {StateBothFilled, StateOneFilledOneFailed, StateBothFailed},
	StateBothFilled:         {StateReported},
	StateOneFilledOneFailed: {StateReported},
	StateBothFailed:         {StateReported},
	StateReported:           {},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to AttemptState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrAttemptInFlight signals that an attempt for the same symbol is still
// running; the new opportunity is skipped, never queued.
var ErrAttemptInFlight = errors.New("engine: execution attempt already in flight for symbol")

// ExecutionEvent reports the terminal outcome of one execution attempt.
// Partial fills carry State == StateOneFilledOneFailed and are flagged for
// manual intervention; no automatic unwind is ever attempted.
type ExecutionEvent struct {
	ID           string
	Symbol       string
	BuyExchange  string
	SellExchange string
	Size         decimal.Decimal
	BuyPrice     decimal.Decimal // realized avg fill on the buy leg
	SellPrice    decimal.Decimal // realized avg fill on the sell leg
	NetSpreadPct decimal.Decimal // realized spread after taker fees
	State        AttemptState
	BuyError     string
	SellError    string
	StartedAt    time.Time
	CompletedAt  time.Time
}

// PartialFillRisk reports whether exactly one leg filled, leaving an open
// position that needs manual handling.
func (e ExecutionEvent) PartialFillRisk() bool {
	return e.State == StateOneFilledOneFailed
}

// Coordinator places hedged buy/sell pairs for qualifying spread events.
// Attempts for the same symbol are serialized; concurrent opportunities on
// the same symbol are rejected with ErrAttemptInFlight.
type Coordinator struct {
	traders      map[string]exchange.Trader
	maxOrderSize decimal.Decimal
	takerFeePct  map[string]decimal.Decimal
	logger       zerolog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewCoordinator wires tradable adapters into an execution coordinator.
// takerFeePct maps exchange name to its taker fee in percent; fees are used
// only for net realized spread reporting, never for threshold comparison.
func NewCoordinator(traders map[string]exchange.Trader, maxOrderSize decimal.Decimal, takerFeePct map[string]decimal.Decimal, logger zerolog.Logger) *Coordinator {
	if takerFeePct == nil {
		takerFeePct = make(map[string]decimal.Decimal)
	}
	return &Coordinator{
		traders:      traders,
		maxOrderSize: maxOrderSize,
		takerFeePct:  takerFeePct,
		logger:       logger.With().Str("component", "execution_coordinator").Logger(),
	}
}

// CanExecute reports whether both legs of the event are trading-capable.
func (c *Coordinator) CanExecute(ev SpreadEvent) bool {
	_, buyOK := c.traders[ev.BuyExchange]
	_, sellOK := c.traders[ev.SellExchange]
	return buyOK && sellOK
}

// Execute runs one hedged attempt: a market buy on the cheap leg and a market
// sell on the rich leg, sized to the smaller of the two BBO sizes capped by
// the configured maximum. The outcome is always returned as an
// ExecutionEvent; errors other than ErrAttemptInFlight still carry an event.
func (c *Coordinator) Execute(ctx context.Context, ev SpreadEvent) (ExecutionEvent, error) {
	if !c.acquire(ev.Symbol) {
		return ExecutionEvent{}, fmt.Errorf("%w: %s", ErrAttemptInFlight, ev.Symbol)
	}
	defer c.release(ev.Symbol)

	attempt := ExecutionEvent{
		ID:           uuid.NewString(),
		Symbol:       ev.Symbol,
		BuyExchange:  ev.BuyExchange,
		SellExchange: ev.SellExchange,
		State:        StateEvaluated,
		StartedAt:    time.Now().UTC(),
	}

	buyer, buyOK := c.traders[ev.BuyExchange]
	seller, sellOK := c.traders[ev.SellExchange]
	if !buyOK || !sellOK {
		attempt.Size = decimal.Zero
		c.advance(&attempt, StateBothFailed)
		attempt.BuyError = "leg not trading-capable"
		attempt.SellError = "leg not trading-capable"
		return c.finish(attempt), nil
	}

	size := decimal.Min(ev.BuySize, ev.SellSize)
	if c.maxOrderSize.IsPositive() && size.GreaterThan(c.maxOrderSize) {
		size = c.maxOrderSize
	}
	attempt.Size = size
	if !size.IsPositive() {
		c.advance(&attempt, StateBothFailed)
		attempt.BuyError = "no executable size at BBO"
		attempt.SellError = "no executable size at BBO"
		return c.finish(attempt), nil
	}

	c.advance(&attempt, StateLegsSubmitted)
	c.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("symbol", ev.Symbol).
		Str("buy", ev.BuyExchange).
		Str("sell", ev.SellExchange).
		Str("size", size.String()).
		Str("spread_pct", ev.SpreadPct.String()).
		Msg("submitting hedge legs")

	var wg sync.WaitGroup
	var buyRes, sellRes exchange.OrderResult
	var buyErr, sellErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		buyRes, buyErr = buyer.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: ev.Symbol,
			Side:   exchange.SideBuy,
			Type:   exchange.OrderTypeMarket,
			Size:   size,
		})
	}()
	go func() {
		defer wg.Done()
		sellRes, sellErr = seller.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: ev.Symbol,
			Side:   exchange.SideSell,
			Type:   exchange.OrderTypeMarket,
			Size:   size,
		})
	}()
	wg.Wait()

	switch {
	case buyErr == nil && sellErr == nil:
		c.advance(&attempt, StateBothFilled)
		attempt.BuyPrice = buyRes.AvgPrice
		attempt.SellPrice = sellRes.AvgPrice
		attempt.NetSpreadPct = c.netSpread(ev, buyRes.AvgPrice, sellRes.AvgPrice)
	case buyErr != nil && sellErr != nil:
		c.advance(&attempt, StateBothFailed)
		attempt.BuyError = buyErr.Error()
		attempt.SellError = sellErr.Error()
	default:
		// One leg is on; do not unwind, surface for manual intervention.
		c.advance(&attempt, StateOneFilledOneFailed)
		if buyErr != nil {
			attempt.BuyError = buyErr.Error()
			attempt.SellPrice = sellRes.AvgPrice
		} else {
			attempt.SellError = sellErr.Error()
			attempt.BuyPrice = buyRes.AvgPrice
		}
	}

	return c.finish(attempt), nil
}

func (c *Coordinator) netSpread(ev SpreadEvent, buyPrice, sellPrice decimal.Decimal) decimal.Decimal {
	if !buyPrice.IsPositive() {
		return decimal.Zero
	}
	gross := SpreadPct(buyPrice, sellPrice)
	fees := c.takerFeePct[ev.BuyExchange].Add(c.takerFeePct[ev.SellExchange])
	return gross.Sub(fees)
}

func (c *Coordinator) advance(attempt *ExecutionEvent, to AttemptState) {
	if !CanTransition(attempt.State, to) {
		// Transition table bug; keep going but make it visible.
		c.logger.Error().
			Str("attempt_id", attempt.ID).
			Str("from", string(attempt.State)).
			Str("to", string(to)).
			Msg("illegal attempt state transition")
	}
	attempt.State = to
}

func (c *Coordinator) finish(attempt ExecutionEvent) ExecutionEvent {
	attempt.CompletedAt = time.Now().UTC()

	event := c.logger.Info()
	if attempt.PartialFillRisk() {
		event = c.logger.Error()
	}
	event.
		Str("attempt_id", attempt.ID).
		Str("symbol", attempt.Symbol).
		Str("state", string(attempt.State)).
		Str("buy_error", attempt.BuyError).
		Str("sell_error", attempt.SellError).
		Msg("execution attempt finished")
	return attempt
}

func (c *Coordinator) acquire(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy == nil {
		c.busy = make(map[string]struct{})
	}
	if _, inFlight := c.busy[symbol]; inFlight {
		return false
	}
	c.busy[symbol] = struct{}{}
	return true
}

func (c *Coordinator) release(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, symbol)
}
