// Package journal records a write-only audit trail of a run: its session,
// regime transitions and history samples. Nothing here is read back into
// the statistics engine.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flux-sentinel/internal/stats"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type Transition struct {
	Session  string
	Time     time.Time
	From     stats.Regime
	To       stats.Regime
	Snapshot stats.Snapshot
}

type Journal struct {
	db *sql.DB
}

func New(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, symbol TEXT NOT NULL, started_at INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS regime_changes (
			session TEXT NOT NULL,
			ts INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			from_regime TEXT NOT NULL,
			to_regime TEXT NOT NULL,
			snapshot BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS regime_changes_session_ts ON regime_changes (session, ts)`,
		`CREATE TABLE IF NOT EXISTS history_samples (session TEXT NOT NULL, ts INTEGER NOT NULL, rsi REAL NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) StartSession(ctx context.Context, session, symbol string, at time.Time) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO sessions (id, symbol, started_at) VALUES (?, ?, ?)`, session, symbol, at.UnixMilli())
	return err
}

func (j *Journal) RecordTransition(ctx context.Context, tr Transition) error {
	if j == nil {
		return nil
	}
	blob, err := msgpack.Marshal(tr.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO regime_changes (session, ts, seq, from_regime, to_regime, snapshot) VALUES (?, ?, ?, ?, ?, ?)`,
		tr.Session, tr.Time.UnixMilli(), int64(tr.Snapshot.Seq), string(tr.From), string(tr.To), blob)
	return err
}

func (j *Journal) RecordSample(ctx context.Context, session string, at time.Time, rsi float64) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO history_samples (session, ts, rsi) VALUES (?, ?, ?)`, session, at.UnixMilli(), rsi)
	return err
}

// Transitions returns the most recent transitions of a session, newest first.
func (j *Journal) Transitions(ctx context.Context, session string, limit int) ([]Transition, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT ts, from_regime, to_regime, snapshot FROM regime_changes WHERE session = ? ORDER BY ts DESC, seq DESC LIMIT ?`,
		session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var (
			ts       int64
			from, to string
			blob     []byte
		)
		if err := rows.Scan(&ts, &from, &to, &blob); err != nil {
			return nil, err
		}
		tr := Transition{Session: session, Time: time.UnixMilli(ts).UTC(), From: stats.Regime(from), To: stats.Regime(to)}
		if err := msgpack.Unmarshal(blob, &tr.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (j *Journal) SampleCount(ctx context.Context, session string) (int, error) {
	if j == nil {
		return 0, nil
	}
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_samples WHERE session = ?`, session).Scan(&n)
	return n, err
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
