package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"crossarb/internal/alerting"
	"crossarb/internal/engine"
	"crossarb/internal/exchange"
	"crossarb/internal/market"
	"crossarb/internal/scheduler"
	"crossarb/internal/storage"
)

// Options carry the wiring for a monitor service instance.
type Options struct {
	Registry    *market.Registry
	Engine      *engine.Engine
	Gate        *engine.AlertGate
	Coordinator *engine.Coordinator // nil disables execution
	Notifier    alerting.Notifier
	Store       *storage.Store // nil-safe, ErrNotConfigured when absent

	Adapters          []exchange.Adapter
	SymbolsByExchange map[string][]string
	PollIntervals     map[string]time.Duration
	Symbols           []string

	ThresholdPct      decimal.Decimal
	CheckInterval     time.Duration
	BroadcastInterval time.Duration
}

// Service runs the three timer families of the monitor: per-exchange
// ingestion, spread evaluation, and the periodic broadcast. Each family is an
// independent loop; a stalled exchange never blocks evaluation.
type Service struct {
	opts   Options
	logger zerolog.Logger

	execWG sync.WaitGroup
}

// New constructs the monitor service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight execution
// attempts to finish reporting before returning.
func (s *Service) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, adapter := range s.opts.Adapters {
		adapter := adapter
		symbols := s.opts.SymbolsByExchange[adapter.Name()]
		if len(symbols) == 0 {
			s.logger.Warn().Str("exchange", adapter.Name()).Msg("no symbols configured, skipping ingestion loop")
			continue
		}

		if streamer, ok := adapter.(exchange.Streamer); ok {
			group.Go(func() error {
				return s.runStream(ctx, streamer, symbols)
			})
			continue
		}

		interval := s.opts.PollIntervals[adapter.Name()]
		if interval <= 0 {
			interval = s.opts.CheckInterval
		}
		poller := scheduler.New(scheduler.Options{
			Name:       "poll_" + adapter.Name(),
			Interval:   interval,
			RunAtStart: true,
		}, s.logger)
		group.Go(func() error {
			return poller.Run(ctx, func(ctx context.Context, at time.Time) error {
				s.pollOnce(ctx, adapter, symbols)
				return nil
			})
		})
	}

	evaluator := scheduler.New(scheduler.Options{
		Name:         "evaluate",
		Interval:     s.opts.CheckInterval,
		AlignToStart: true,
	}, s.logger)
	group.Go(func() error {
		return evaluator.Run(ctx, s.EvaluateTick)
	})

	if s.opts.BroadcastInterval > 0 {
		broadcaster := scheduler.New(scheduler.Options{
			Name:         "broadcast",
			Interval:     s.opts.BroadcastInterval,
			AlignToStart: true,
		}, s.logger)
		group.Go(func() error {
			return broadcaster.Run(ctx, s.BroadcastTick)
		})
	}

	err := group.Wait()

	// Execution attempts keep running on a detached context; let them report
	// their terminal state before shutdown completes.
	s.execWG.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pollOnce fetches a BBO snapshot for every configured symbol of one venue.
// Fetch failures are logged and skipped; stale registry entries simply age out.
func (s *Service) pollOnce(ctx context.Context, adapter exchange.Adapter, symbols []string) {
	for _, symbol := range symbols {
		snap, err := adapter.FetchBBO(ctx, symbol)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("exchange", adapter.Name()).
				Str("symbol", symbol).
				Msg("fetch BBO failed")
			continue
		}
		s.apply(snap)
	}
}

// runStream consumes a websocket feed, reconnecting after failures until the
// context is cancelled.
func (s *Service) runStream(ctx context.Context, streamer exchange.Streamer, symbols []string) error {
	out := make(chan market.BboSnapshot, 64)

	go func() {
		for snap := range out {
			s.apply(snap)
		}
	}()
	defer close(out)

	backoff := time.Second
	for {
		err := streamer.Stream(ctx, symbols, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).
			Str("exchange", streamer.Name()).
			Dur("backoff", backoff).
			Msg("stream disconnected, reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Service) apply(snap market.BboSnapshot) {
	updated, err := s.opts.Registry.Update(snap)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("exchange", snap.Exchange).
			Str("symbol", snap.Symbol).
			Msg("quote rejected")
		return
	}
	if !updated {
		s.logger.Debug().
			Str("exchange", snap.Exchange).
			Str("symbol", snap.Symbol).
			Msg("stale quote ignored")
	}
}

// EvaluateTick runs one evaluation cycle: compute qualifying spreads, persist
// samples, emit cooldown-gated alerts, and dispatch at most one execution
// attempt per symbol.
func (s *Service) EvaluateTick(ctx context.Context, at time.Time) error {
	events := s.opts.Engine.Evaluate(at, s.opts.Symbols)
	if len(events) == 0 {
		return nil
	}

	dispatched := make(map[string]struct{})
	sampled := make(map[string]struct{})
	for _, ev := range events {
		// Events arrive sorted descending, so the first per symbol is its best.
		if _, done := sampled[ev.Symbol]; !done {
			sampled[ev.Symbol] = struct{}{}
			s.persistSample(ctx, at, ev)
		}

		if s.opts.Gate.Allow(at, ev) {
			s.emitAlert(ctx, at, ev)
		}

		if s.opts.Coordinator == nil {
			continue
		}
		if _, done := dispatched[ev.Symbol]; done {
			continue
		}
		if !s.opts.Coordinator.CanExecute(ev) {
			continue
		}
		dispatched[ev.Symbol] = struct{}{}
		s.dispatchExecution(ctx, ev)
	}
	return nil
}

func (s *Service) persistSample(ctx context.Context, at time.Time, ev engine.SpreadEvent) {
	err := s.opts.Store.InsertSpreadSample(ctx, storage.SpreadSample{
		TickTS:       at,
		Symbol:       ev.Symbol,
		BuyExchange:  ev.BuyExchange,
		SellExchange: ev.SellExchange,
		BuyAsk:       ev.BuyAsk,
		SellBid:      ev.SellBid,
		SpreadPct:    ev.SpreadPct,
	})
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("persist spread sample failed")
	}
}

func (s *Service) emitAlert(ctx context.Context, at time.Time, ev engine.SpreadEvent) {
	alert := alerting.SpreadAlert{
		Symbol:       ev.Symbol,
		BuyExchange:  ev.BuyExchange,
		SellExchange: ev.SellExchange,
		BuyAsk:       ev.BuyAsk,
		SellBid:      ev.SellBid,
		SpreadPct:    ev.SpreadPct,
		ThresholdPct: s.opts.ThresholdPct,
		At:           at,
	}
	if err := s.opts.Notifier.NotifySpread(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("spread alert failed")
	}

	_, err := s.opts.Store.InsertAlert(ctx, storage.AlertRecord{
		TickTS:       at,
		Symbol:       ev.Symbol,
		BuyExchange:  ev.BuyExchange,
		SellExchange: ev.SellExchange,
		SpreadPct:    ev.SpreadPct,
		ThresholdPct: s.opts.ThresholdPct,
	})
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("persist alert failed")
	}
}

// dispatchExecution runs the hedge attempt asynchronously so a slow exchange
// never delays the evaluation loop. The attempt survives loop shutdown via a
// detached context; execWG lets Run wait for its report.
func (s *Service) dispatchExecution(ctx context.Context, ev engine.SpreadEvent) {
	detached := context.WithoutCancel(ctx)
	s.execWG.Add(1)
	go func() {
		defer s.execWG.Done()

		result, err := s.opts.Coordinator.Execute(detached, ev)
		if err != nil {
			if errors.Is(err, engine.ErrAttemptInFlight) {
				s.logger.Info().Str("symbol", ev.Symbol).Msg("skipping opportunity, attempt in flight")
			} else {
				s.logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("execution dispatch failed")
			}
			return
		}
		s.reportExecution(detached, result)
	}()
}

func (s *Service) reportExecution(ctx context.Context, result engine.ExecutionEvent) {
	severity := alerting.SeverityInfo
	if result.PartialFillRisk() {
		severity = alerting.SeverityCritical
	}

	detail := ""
	if result.BuyError != "" {
		detail += "买腿失败: " + result.BuyError + "\n"
	}
	if result.SellError != "" {
		detail += "卖腿失败: " + result.SellError + "\n"
	}

	err := s.opts.Notifier.NotifyExecution(ctx, alerting.ExecutionAlert{
		AttemptID:    result.ID,
		Symbol:       result.Symbol,
		BuyExchange:  result.BuyExchange,
		SellExchange: result.SellExchange,
		Size:         result.Size,
		BuyPrice:     result.BuyPrice,
		SellPrice:    result.SellPrice,
		NetSpreadPct: result.NetSpreadPct,
		State:        string(result.State),
		Severity:     severity,
		Detail:       detail,
		At:           result.CompletedAt,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("attempt_id", result.ID).Msg("execution alert failed")
	}

	record := storage.ExecutionRecord{
		AttemptID:    result.ID,
		Symbol:       result.Symbol,
		BuyExchange:  result.BuyExchange,
		SellExchange: result.SellExchange,
		Size:         result.Size,
		BuyPrice:     result.BuyPrice,
		SellPrice:    result.SellPrice,
		NetSpreadPct: result.NetSpreadPct,
		State:        string(result.State),
		StartedAt:    result.StartedAt,
		CompletedAt:  result.CompletedAt,
	}
	if result.BuyError != "" {
		buyErr := result.BuyError
		record.BuyError = &buyErr
	}
	if result.SellError != "" {
		sellErr := result.SellError
		record.SellError = &sellErr
	}
	if err := s.opts.Store.InsertExecution(ctx, record); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Error().Err(err).Str("attempt_id", result.ID).Msg("persist execution failed")
	}
}

// BroadcastTick sends the full BBO picture for every tracked symbol,
// bypassing the alert cooldown entirely.
func (s *Service) BroadcastTick(ctx context.Context, at time.Time) error {
	books := make(map[string]map[string]market.BboSnapshot)
	for _, symbol := range s.opts.Registry.Symbols() {
		snaps := s.opts.Registry.SnapshotsFor(symbol)
		if len(snaps) == 0 {
			continue
		}
		books[symbol] = snaps
	}
	if len(books) == 0 {
		s.logger.Debug().Msg("no quotes yet, skipping broadcast")
		return nil
	}

	if err := s.opts.Notifier.NotifyBroadcast(ctx, alerting.Broadcast{Books: books, At: at}); err != nil {
		s.logger.Error().Err(err).Msg("periodic broadcast failed")
	}
	return nil
}
