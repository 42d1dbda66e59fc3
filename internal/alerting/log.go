package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log only. Used as a fallback when no
// delivery channel is configured, so the evaluation loop still has a sink.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log_notifier").Logger()}
}

// NotifySpread implements Notifier.
func (l *LogNotifier) NotifySpread(ctx context.Context, alert SpreadAlert) error {
	l.logger.Info().
		Str("symbol", alert.Symbol).
		Str("buy", alert.BuyExchange).
		Str("sell", alert.SellExchange).
		Str("spread_pct", alert.SpreadPct.StringFixed(4)).
		Msg("spread alert")
	return nil
}

// NotifyBroadcast implements Notifier.
func (l *LogNotifier) NotifyBroadcast(ctx context.Context, broadcast Broadcast) error {
	l.logger.Info().Int("symbols", len(broadcast.Books)).Msg("periodic broadcast")
	return nil
}

// NotifyExecution implements Notifier.
func (l *LogNotifier) NotifyExecution(ctx context.Context, alert ExecutionAlert) error {
	event := l.logger.Info()
	if alert.Severity == SeverityCritical {
		event = l.logger.Error()
	}
	event.
		Str("attempt_id", alert.AttemptID).
		Str("symbol", alert.Symbol).
		Str("state", alert.State).
		Msg("execution report")
	return nil
}
