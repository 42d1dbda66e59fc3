package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crossarb/internal/alerting"
	"crossarb/internal/config"
	"crossarb/internal/engine"
	"crossarb/internal/exchange"
	"crossarb/internal/market"
	"crossarb/internal/service"
	"crossarb/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAdapters() ([]exchange.Adapter, error) {
	adapters := make([]exchange.Adapter, 0, len(a.Config.Exchanges))
	for _, ex := range a.Config.Exchanges {
		adapter, err := exchange.New(exchange.Settings{
			Name:       ex.Name,
			Type:       ex.Type,
			Mode:       exchange.Mode(ex.Mode),
			APIKey:     ex.APIKey,
			APISecret:  ex.APISecret,
			Passphrase: ex.Passphrase,
			BaseURL:    ex.BaseURL,
			WSURL:      ex.WSURL,
			Timeout:    ex.Timeout,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", ex.Name, err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func (a *App) newNotifier() alerting.Notifier {
	sinks := make([]alerting.Notifier, 0, len(a.Config.Notifiers))
	for _, n := range a.Config.Notifiers {
		switch n.Type {
		case "telegram":
			sinks = append(sinks, alerting.NewTelegramNotifier(n.BotToken, n.ChatID, n.APIBase, 10*time.Second, a.Logger))
		case "lark":
			sinks = append(sinks, alerting.NewLarkNotifier(n.WebhookURL, 10*time.Second, a.Logger))
		}
	}
	if len(sinks) == 0 {
		a.Logger.Warn().Msg("no notifiers configured; alerts will only be logged")
		return alerting.NewLogNotifier(a.Logger)
	}
	return alerting.NewMulti(sinks, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newCoordinator builds the execution coordinator from the trading-capable
// adapters, or nil when execution is disabled.
func (a *App) newCoordinator(adapters []exchange.Adapter) *engine.Coordinator {
	if !a.Config.Execution.Enabled {
		return nil
	}

	traders := make(map[string]exchange.Trader)
	fees := make(map[string]decimal.Decimal)
	for i, adapter := range adapters {
		trader, ok := adapter.(exchange.Trader)
		if !ok || adapter.Mode() != exchange.ModePrivate {
			continue
		}
		traders[adapter.Name()] = trader
		fees[adapter.Name()] = decimal.NewFromFloat(a.Config.Exchanges[i].TakerFeePct)
	}
	if len(traders) < 2 {
		a.Logger.Warn().Msg("execution enabled but fewer than two trading-capable exchanges; execution disabled")
		return nil
	}

	return engine.NewCoordinator(
		traders,
		decimal.NewFromFloat(a.Config.Execution.MaxOrderSize),
		fees,
		a.Logger,
	)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	adapters, err := a.newAdapters()
	if err != nil {
		return err
	}

	registry := market.NewRegistry(a.Config.Strategy.QuoteMaxAge)
	eng := engine.NewEngine(registry, decimal.NewFromFloat(a.Config.Strategy.MinSpreadPct), a.Logger)
	gate := engine.NewAlertGate(a.Config.Strategy.AlertInterval, a.Logger)
	notifier := a.newNotifier()
	coordinator := a.newCoordinator(adapters)

	symbolsByExchange := make(map[string][]string, len(a.Config.Exchanges))
	pollIntervals := make(map[string]time.Duration, len(a.Config.Exchanges))
	for _, ex := range a.Config.Exchanges {
		symbolsByExchange[ex.Name] = ex.Symbols
		pollIntervals[ex.Name] = ex.PollInterval
	}

	svc := service.New(service.Options{
		Registry:          registry,
		Engine:            eng,
		Gate:              gate,
		Coordinator:       coordinator,
		Notifier:          notifier,
		Store:             store,
		Adapters:          adapters,
		SymbolsByExchange: symbolsByExchange,
		PollIntervals:     pollIntervals,
		Symbols:           a.Config.Symbols(),
		ThresholdPct:      decimal.NewFromFloat(a.Config.Strategy.MinSpreadPct),
		CheckInterval:     a.Config.Strategy.CheckInterval,
		BroadcastInterval: a.Config.Strategy.PeriodicAlertInterval,
	}, a.Logger)

	a.Logger.Info().
		Int("exchanges", len(adapters)).
		Strs("symbols", a.Config.Symbols()).
		Bool("execution", coordinator != nil).
		Msg("starting spread monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("spread monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical spread samples.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit      int
	Executions bool
}

// CheckOptions configure the one-shot check command.
type CheckOptions struct {
	Symbols []string
}
