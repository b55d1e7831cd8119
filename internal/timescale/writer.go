package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"flux-sentinel/internal/config"
	"flux-sentinel/internal/stats"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type SnapshotRow struct {
	Time     time.Time
	Session  string
	Symbol   string
	Snapshot stats.Snapshot
	BuyRatio float64
}

type SampleRow struct {
	Time    time.Time
	Session string
	Symbol  string
	RSI     float64
}

type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	snapshots   chan SnapshotRow
	samples     chan SampleRow
	started     atomic.Bool
	dropSnap    atomic.Uint64
	dropSamples atomic.Uint64
}

// New returns a nil writer when timescale is disabled; every method accepts a nil receiver.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		snapshots: make(chan SnapshotRow, queueSize),
		samples:   make(chan SampleRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueSnapshot never blocks; rows are dropped while the queue is full.
func (w *Writer) EnqueueSnapshot(row SnapshotRow) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- row:
		return
	default:
		if w.dropSnap.Add(1) == 1 {
			w.log.Warn("timescale snapshot queue full")
		}
	}
}

func (w *Writer) EnqueueSample(row SampleRow) {
	if w == nil {
		return
	}
	select {
	case w.samples <- row:
		return
	default:
		if w.dropSamples.Add(1) == 1 {
			w.log.Warn("timescale sample queue full")
		}
	}
}

// Dropped reports how many snapshot and sample rows were discarded.
func (w *Writer) Dropped() (snapshots, samples uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropSnap.Load(), w.dropSamples.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.snapshots:
			w.writeSnapshot(ctx, row)
		case row := <-w.samples:
			w.writeSample(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		session TEXT NOT NULL,
		symbol TEXT NOT NULL,
		seq BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		delta DOUBLE PRECISION NOT NULL,
		variance DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		z_score DOUBLE PRECISION NOT NULL,
		risk_premium DOUBLE PRECISION NOT NULL,
		regime TEXT NOT NULL,
		rsi DOUBLE PRECISION NOT NULL,
		bull DOUBLE PRECISION NOT NULL,
		bear DOUBLE PRECISION NOT NULL,
		macro_bull DOUBLE PRECISION NOT NULL,
		macro_bear DOUBLE PRECISION NOT NULL,
		ticks_up BIGINT NOT NULL,
		ticks_down BIGINT NOT NULL,
		stealth_buy BIGINT NOT NULL,
		stealth_sell BIGINT NOT NULL,
		buy_ratio DOUBLE PRECISION NOT NULL
	)`, w.table("stat_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		session TEXT NOT NULL,
		symbol TEXT NOT NULL,
		rsi DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, session)
	)`, w.table("rsi_history"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"stat_snapshots", "rsi_history"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeSnapshot(ctx context.Context, row SnapshotRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	snap := row.Snapshot
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, session, symbol, seq, price, delta, variance, volatility, z_score, risk_premium,
		regime, rsi, bull, bear, macro_bull, macro_bear, ticks_up, ticks_down, stealth_buy,
		stealth_sell, buy_ratio
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
	)`, w.table("stat_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Session,
		row.Symbol,
		int64(snap.Seq),
		snap.Price,
		snap.Delta,
		snap.Variance,
		snap.Volatility,
		snap.ZScore,
		snap.RiskPremium,
		string(snap.Regime),
		snap.RSI,
		snap.Vectors.Bull,
		snap.Vectors.Bear,
		snap.Vectors.MacroBull,
		snap.Vectors.MacroBear,
		int64(snap.TickCounts.Up),
		int64(snap.TickCounts.Down),
		int64(snap.StealthCounts.Buy),
		int64(snap.StealthCounts.Sell),
		row.BuyRatio,
	); err != nil {
		w.log.Warn("timescale snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSample(ctx context.Context, row SampleRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, session, symbol, rsi) VALUES ($1,$2,$3,$4)
	ON CONFLICT (ts, session) DO UPDATE SET rsi = EXCLUDED.rsi`, w.table("rsi_history"))
	if _, err := w.db.ExecContext(ctx, query, row.Time, row.Session, row.Symbol, row.RSI); err != nil {
		w.log.Warn("timescale sample upsert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
