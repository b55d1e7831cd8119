package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"flux-sentinel/internal/alerts"
	"flux-sentinel/internal/api"
	"flux-sentinel/internal/binance/rest"
	"flux-sentinel/internal/binance/ws"
	"flux-sentinel/internal/config"
	"flux-sentinel/internal/journal"
	"flux-sentinel/internal/market"
	"flux-sentinel/internal/metrics"
	"flux-sentinel/internal/publish"
	"flux-sentinel/internal/stats"
	"flux-sentinel/internal/timescale"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrFeedClosed = errors.New("trade feed closed")

// maxDegenerateStreak consecutive degenerate ticks rebase the engine onto the latest price.
const maxDegenerateStreak = 3

// symbolChecker confirms the configured symbol before the feed subscribes.
type symbolChecker interface {
	CheckTradable(ctx context.Context, symbol string) (rest.SymbolInfo, error)
}

// tradeSource is the ordered stream of trades the app consumes.
type tradeSource interface {
	Start(ctx context.Context) error
	Trades() <-chan market.Trade
	Symbol() string
	Connected() bool
	LastTradeAt() time.Time
}

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	session string
	started time.Time
	now     func() time.Time

	engine  *stats.Engine
	history *stats.HistoryBuffer
	flow    *stats.FlowWindow
	feed    tradeSource
	symbols symbolChecker

	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	journal   *journal.Journal
	timescale *timescale.Writer
	publisher *publish.Dispatcher
	alerts    *alerts.Telegram
	api       *api.Server

	opsMu      sync.RWMutex
	paused     bool
	stale      bool
	running    atomic.Bool
	lastRegime stats.Regime
	discarded  atomic.Uint64
	degenerate int
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	client := ws.New(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	feed := market.NewFeed(client, cfg.Feed.Symbol, cfg.Feed.QueueSize, log, m)
	a := newApp(cfg, log, feed, m)
	a.prom = prom
	if cfg.Feed.CheckSymbolValue() {
		a.symbols = rest.New(cfg.Feed.RESTURL, cfg.Feed.RESTTimeout, log)
	}

	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		j, err := journal.New(cfg.Journal.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		a.closeSinks()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	a.timescale = writer

	var sinks []publish.Sink
	if cfg.Redis.Enabled {
		sink, err := publish.NewRedisSink(cfg.Redis)
		if err != nil {
			a.closeSinks()
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Kafka.Enabled {
		sink, err := publish.NewKafkaSink(cfg.Kafka)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			a.closeSinks()
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		a.publisher = publish.NewDispatcher(sinks, cfg.Feed.QueueSize, log, m)
	}
	if cfg.Telegram.Enabled {
		a.alerts = alerts.NewTelegram(cfg.Telegram, log)
	}
	if cfg.HTTP.EnabledValue() {
		opts := api.Options{Address: cfg.HTTP.Address, Log: log}
		if prom != nil {
			opts.MetricsPath = cfg.Metrics.Path
			opts.MetricsHandler = prom.Handler()
		}
		a.api = api.New(a, opts)
	}
	return a, nil
}

func newApp(cfg *config.Config, log *zap.Logger, feed tradeSource, m *metrics.Metrics) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		session:    uuid.NewString(),
		now:        time.Now,
		engine:     stats.NewEngine(),
		history:    stats.NewHistoryBuffer(stats.HistoryCapacity, stats.HistoryFill),
		flow:       stats.NewFlowWindow(stats.FlowCapacity),
		feed:       feed,
		metrics:    m,
		lastRegime: stats.RegimeCalibrating,
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.closeSinks()
	a.started = a.now()
	a.running.Store(true)
	defer a.running.Store(false)
	a.metrics.Regime.Set(string(stats.RegimeCalibrating))
	if a.symbols != nil {
		info, err := a.symbols.CheckTradable(ctx, a.feed.Symbol())
		if err != nil {
			return fmt.Errorf("check symbol: %w", err)
		}
		a.log.Info("symbol verified", zap.String("symbol", info.Symbol), zap.String("base", info.BaseAsset), zap.String("quote", info.QuoteAsset))
	}

	if err := a.journal.StartSession(ctx, a.session, a.feed.Symbol(), a.started); err != nil {
		a.log.Warn("journal session start failed", zap.Error(err))
	}
	a.timescale.Start(ctx)
	a.publisher.Start(ctx)
	if a.api != nil {
		a.api.Start(ctx)
	}
	if err := a.feed.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	a.log.Info("sentinel started",
		zap.String("session", a.session),
		zap.String("symbol", a.feed.Symbol()),
		zap.Duration("history_interval", a.cfg.History.Interval),
	)

	sampleTimer := time.NewTimer(nextSample(a.now(), a.cfg.History.Interval, a.cfg.History.AlignValue()))
	defer sampleTimer.Stop()
	var watchdog <-chan time.Time
	if a.cfg.Risk.MaxFeedAge > 0 {
		ticker := time.NewTicker(watchdogInterval(a.cfg.Risk.MaxFeedAge))
		defer ticker.Stop()
		watchdog = ticker.C
	}

	trades := a.feed.Trades()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trade, ok := <-trades:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrFeedClosed
			}
			a.ingest(ctx, trade)
		case <-sampleTimer.C:
			a.sample(ctx)
			sampleTimer.Reset(nextSample(a.now(), a.cfg.History.Interval, a.cfg.History.AlignValue()))
		case <-watchdog:
			a.checkFeed()
		}
	}
}

// ingest applies one trade. While paused the trade is discarded and the engine is untouched.
func (a *App) ingest(ctx context.Context, trade market.Trade) {
	if a.isPaused() {
		a.discarded.Add(1)
		return
	}
	snap, err := a.engine.Update(trade.Tick())
	if err != nil {
		switch {
		case errors.Is(err, stats.ErrInvalidTick):
			a.metrics.TicksRejected.Inc()
			a.log.Debug("tick rejected", zap.Int64("agg_trade_id", trade.AggTradeID), zap.Error(err))
		case errors.Is(err, stats.ErrArithmeticDegenerate):
			a.metrics.TicksDegenerate.Inc()
			a.log.Warn("tick produced degenerate statistics", zap.Int64("agg_trade_id", trade.AggTradeID), zap.Error(err))
			a.degenerate++
			if a.degenerate >= maxDegenerateStreak {
				if err := a.engine.Rebase(trade.Price); err == nil {
					a.log.Warn("engine rebased after degenerate ticks", zap.Float64("price", trade.Price), zap.Int("streak", a.degenerate))
				}
				a.degenerate = 0
			}
		default:
			a.log.Warn("tick update failed", zap.Error(err))
		}
		return
	}
	a.degenerate = 0
	at := trade.TradeTime
	if at.IsZero() {
		at = a.now()
	}
	a.flow.Record(trade.IsBuyerMaker, at)
	buyRatio := a.flow.BuyRatio()

	a.metrics.TicksIngested.Inc()
	a.metrics.Price.Set(snap.Price)
	a.metrics.Volatility.Set(snap.Volatility)
	a.metrics.ZScore.Set(snap.ZScore)
	a.metrics.RiskPremium.Set(snap.RiskPremium)
	a.metrics.RSI.Set(snap.RSI)
	a.metrics.BuyRatio.Set(buyRatio)

	if snap.Regime != a.lastRegime {
		a.onRegimeChange(ctx, a.lastRegime, snap, at)
		a.lastRegime = snap.Regime
	}
	a.recordTimescaleSnapshot(snap, buyRatio, at)
	if err := a.publisher.Enqueue(publish.Event{
		Session:  a.session,
		Symbol:   a.feed.Symbol(),
		Time:     at,
		Snapshot: snap,
		BuyRatio: buyRatio,
	}); err != nil {
		a.log.Debug("publish enqueue failed", zap.Error(err))
	}
}

func (a *App) onRegimeChange(ctx context.Context, from stats.Regime, snap stats.Snapshot, at time.Time) {
	a.metrics.Regime.Set(string(snap.Regime))
	a.log.Info("regime changed",
		zap.String("from", string(from)),
		zap.String("to", string(snap.Regime)),
		zap.Float64("variance", snap.Variance),
		zap.Float64("price", snap.Price),
	)
	if err := a.journal.RecordTransition(ctx, journal.Transition{
		Session:  a.session,
		Time:     at,
		From:     from,
		To:       snap.Regime,
		Snapshot: snap,
	}); err != nil {
		a.metrics.SinkErrors.Inc()
		a.log.Warn("journal transition failed", zap.Error(err))
	}
	if from == stats.RegimeCalibrating {
		return
	}
	a.metrics.RegimeChanges.Inc()
	if !a.alerts.Enabled() {
		return
	}
	go func() {
		err := a.alerts.NotifyRegime(ctx, a.feed.Symbol(), from, snap)
		if err != nil && !errors.Is(err, alerts.ErrRateLimited) && ctx.Err() == nil {
			a.metrics.SinkErrors.Inc()
			a.log.Warn("regime alert failed", zap.Error(err))
		}
	}()
}

// sample appends the current RSI to the history; before the first tick the fill value is used.
func (a *App) sample(ctx context.Context) {
	value := stats.HistoryFill
	if a.engine.State().Ticks > 0 {
		value = a.engine.Snapshot().RSI
	}
	a.history.Sample(value)
	a.metrics.HistorySamples.Inc()
	at := a.now()
	a.recordTimescaleSample(value, at)
	if err := a.journal.RecordSample(ctx, a.session, at, value); err != nil {
		a.metrics.SinkErrors.Inc()
		a.log.Warn("journal sample failed", zap.Error(err))
	}
}

func (a *App) checkFeed() {
	last := a.feed.LastTradeAt()
	if last.IsZero() {
		last = a.started
	}
	err := CheckFeed(a.cfg.Risk, a.now().Sub(last))
	stale := err != nil
	a.opsMu.Lock()
	changed := stale != a.stale
	a.stale = stale
	a.opsMu.Unlock()
	if stale {
		a.metrics.FeedStale.Set(1)
	} else {
		a.metrics.FeedStale.Set(0)
	}
	if !changed {
		return
	}
	if stale {
		a.log.Warn("feed stale", zap.Bool("connected", a.feed.Connected()), zap.Error(err))
	} else {
		a.log.Info("feed recovered")
	}
}

func (a *App) closeSinks() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("publisher close failed", zap.Error(err))
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close failed", zap.Error(err))
	}
}

// Pause reports whether the call changed the state.
func (a *App) Pause() bool {
	changed := a.setPaused(true)
	if changed {
		a.metrics.Paused.Set(1)
		a.log.Info("ingestion paused")
	}
	return changed
}

func (a *App) Resume() bool {
	changed := a.setPaused(false)
	if changed {
		a.metrics.Paused.Set(0)
		a.log.Info("ingestion resumed", zap.Uint64("discarded", a.discarded.Load()))
	}
	return changed
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	changed := a.paused != paused
	a.paused = paused
	return changed
}

func (a *App) Symbol() string { return a.feed.Symbol() }

func (a *App) Session() string { return a.session }

func (a *App) Snapshot() stats.Snapshot { return a.engine.Snapshot() }

func (a *App) History() []float64 { return a.history.Values() }

func (a *App) HistoryInterval() time.Duration { return a.cfg.History.Interval }

func (a *App) Flow() *stats.FlowWindow { return a.flow }

func (a *App) Transitions(ctx context.Context, limit int) ([]journal.Transition, error) {
	return a.journal.Transitions(ctx, a.session, limit)
}

func (a *App) Status() api.Status {
	a.opsMu.RLock()
	paused, stale := a.paused, a.stale
	a.opsMu.RUnlock()
	snap := a.engine.Snapshot()
	status := api.Status{
		Session:   a.session,
		Symbol:    a.feed.Symbol(),
		Running:   a.running.Load(),
		Paused:    paused,
		Connected: a.feed.Connected(),
		Stale:     stale,
		StartedAt: a.started,
		Ticks:     a.engine.State().Ticks,
		Discarded: a.discarded.Load(),
		Regime:    snap.Regime,
	}
	if last := a.feed.LastTradeAt(); !last.IsZero() {
		status.LastTradeAt = &last
		status.LastTradeAge = a.now().Sub(last).Truncate(time.Millisecond).String()
	}
	return status
}
