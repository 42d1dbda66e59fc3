package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type cooldownKey struct {
	Symbol       string
	BuyExchange  string
	SellExchange string
}

// AlertGate rate-limits spread events per (symbol, buy-exchange,
// sell-exchange) key. The ordered pair encodes direction, so the two
// directions of the same venue pair cool down independently.
//
// The periodic full-BBO broadcast is deliberately not routed through the
// gate; it fires unconditionally on its own timer.
type AlertGate struct {
	mu       sync.Mutex
	interval time.Duration
	lastSent map[cooldownKey]time.Time
	logger   zerolog.Logger
}

// NewAlertGate constructs a gate with the given cooldown interval.
func NewAlertGate(interval time.Duration, logger zerolog.Logger) *AlertGate {
	return &AlertGate{
		interval: interval,
		lastSent: make(map[cooldownKey]time.Time),
		logger:   logger.With().Str("component", "alert_gate").Logger(),
	}
}

// Allow reports whether an alert for the event may be emitted now and, if so,
// refreshes the cooldown timestamp for its key. Suppression is silent: at most
// one alert per key per interval window.
func (g *AlertGate) Allow(now time.Time, ev SpreadEvent) bool {
	key := cooldownKey{Symbol: ev.Symbol, BuyExchange: ev.BuyExchange, SellExchange: ev.SellExchange}

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSent[key]; ok && now.Sub(last) < g.interval {
		g.logger.Debug().
			Str("symbol", ev.Symbol).
			Str("buy", ev.BuyExchange).
			Str("sell", ev.SellExchange).
			Time("last_sent", last).
			Msg("alert suppressed by cooldown")
		return false
	}

	g.lastSent[key] = now
	return true
}
