// Command probe connects to the trade stream, folds a fixed number of trades
// through a fresh engine and prints one JSON snapshot per trade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flux-sentinel/internal/binance/ws"
	"flux-sentinel/internal/config"
	"flux-sentinel/internal/logging"
	"flux-sentinel/internal/market"
	"flux-sentinel/internal/stats"

	"go.uber.org/zap"
)

type line struct {
	AggTradeID int64          `json:"agg_trade_id"`
	TradeTime  time.Time      `json:"trade_time"`
	Snapshot   stats.Snapshot `json:"snapshot"`
}

func main() {
	configPath := flag.String("config", "", "optional config path for feed settings")
	symbol := flag.String("symbol", "", "override the configured symbol")
	count := flag.Int("n", 20, "number of trades to process")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		fatal(err)
	}
	if s := strings.TrimSpace(*symbol); s != "" {
		cfg.Feed.Symbol = strings.ToUpper(s)
	}
	if *count <= 0 {
		fatal(fmt.Errorf("-n must be positive"))
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := ws.New(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	defer func() { _ = client.Close() }()
	feed := market.NewFeed(client, cfg.Feed.Symbol, cfg.Feed.QueueSize, log, nil)
	if err := feed.Start(ctx); err != nil {
		fatal(err)
	}

	engine := stats.NewEngine()
	enc := json.NewEncoder(os.Stdout)
	processed := 0
	for processed < *count {
		select {
		case <-ctx.Done():
			fatal(fmt.Errorf("stopped after %d of %d trades: %w", processed, *count, ctx.Err()))
		case trade, ok := <-feed.Trades():
			if !ok {
				fatal(fmt.Errorf("feed closed after %d trades", processed))
			}
			snap, err := engine.Update(trade.Tick())
			if err != nil {
				log.Warn("trade skipped", zap.Int64("agg_trade_id", trade.AggTradeID), zap.Error(err))
				continue
			}
			processed++
			if err := enc.Encode(line{AggTradeID: trade.AggTradeID, TradeTime: trade.TradeTime, Snapshot: snap}); err != nil {
				fatal(err)
			}
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
