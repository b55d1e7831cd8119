package market

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"flux-sentinel/internal/binance/ws"
	"flux-sentinel/internal/metrics"

	"go.uber.org/zap"
)

// Feed turns the aggTrade stream of one symbol into an ordered queue of trades.
type Feed struct {
	ws      *ws.Client
	symbol  string
	log     *zap.Logger
	metrics *metrics.Metrics

	trades    chan Trade
	lastTrade atomic.Int64
}

func NewFeed(client *ws.Client, symbol string, queueSize int, log *zap.Logger, m *metrics.Metrics) *Feed {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		ws:      client,
		symbol:  strings.ToUpper(symbol),
		log:     log,
		metrics: m,
		trades:  make(chan Trade, queueSize),
	}
}

func (f *Feed) Symbol() string { return f.symbol }

// Trades is closed when the stream stops.
func (f *Feed) Trades() <-chan Trade { return f.trades }

func (f *Feed) Connected() bool { return f.ws.Connected() }

// LastTradeAt is zero until the first trade is queued.
func (f *Feed) LastTradeAt() time.Time {
	ns := f.lastTrade.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (f *Feed) StreamName() string {
	return strings.ToLower(f.symbol) + "@aggTrade"
}

func (f *Feed) Start(ctx context.Context) error {
	f.ws.OnReconnect(func() {
		f.metrics.Reconnects.Inc()
		f.log.Info("feed reconnected", zap.String("symbol", f.symbol))
	})
	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{f.StreamName()},
		"id":     f.ws.NextRequestID(),
	}
	if err := f.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		defer close(f.trades)
		if err := f.ws.Run(ctx, func(msg json.RawMessage) { f.handleMessage(ctx, msg) }); err != nil && ctx.Err() == nil {
			f.log.Warn("feed stopped", zap.Error(err))
		}
	}()
	return nil
}

func (f *Feed) handleMessage(ctx context.Context, msg json.RawMessage) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		f.metrics.FramesMalformed.Inc()
		f.log.Debug("feed decode error", zap.Error(err))
		return
	}
	if isControlFrame(payload) {
		if errPayload, ok := payload["error"]; ok && errPayload != nil {
			f.log.Warn("feed subscription error", zap.Any("error", errPayload))
		}
		return
	}
	trade, ok := parseAggTrade(payload)
	if !ok {
		f.metrics.FramesMalformed.Inc()
		f.log.Debug("feed frame skipped", zap.ByteString("frame", msg))
		return
	}
	if trade.Symbol != "" && trade.Symbol != f.symbol {
		return
	}
	f.enqueue(ctx, trade)
}

// enqueue blocks while the queue is full so no trade is dropped or reordered.
func (f *Feed) enqueue(ctx context.Context, trade Trade) {
	select {
	case f.trades <- trade:
		f.lastTrade.Store(time.Now().UnixNano())
	case <-ctx.Done():
	}
}
