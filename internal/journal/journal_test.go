package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"flux-sentinel/internal/stats"
)

func TestJournalRecordsTransitions(t *testing.T) {
	j, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	start := time.UnixMilli(1700000000000).UTC()
	if err := j.StartSession(ctx, "s1", "PAXGUSDT", start); err != nil {
		t.Fatalf("start session: %v", err)
	}
	first := stats.Snapshot{Seq: 1, Price: 100, Variance: 0.0385, Regime: stats.RegimeInstitutionalCompression}
	second := stats.Snapshot{Seq: 2, Price: 101, Variance: 0.182725, Regime: stats.RegimeLiquidityExpansion, TickCounts: stats.TickCounts{Up: 1}}
	if err := j.RecordTransition(ctx, Transition{Session: "s1", Time: start, From: stats.RegimeCalibrating, To: first.Regime, Snapshot: first}); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := j.RecordTransition(ctx, Transition{Session: "s1", Time: start.Add(time.Second), From: first.Regime, To: second.Regime, Snapshot: second}); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := j.RecordTransition(ctx, Transition{Session: "other", Time: start, To: first.Regime, Snapshot: first}); err != nil {
		t.Fatalf("record other: %v", err)
	}

	got, err := j.Transitions(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(got))
	}
	if got[0].To != stats.RegimeLiquidityExpansion || got[0].From != stats.RegimeInstitutionalCompression {
		t.Fatalf("expected newest transition first, got %+v", got[0])
	}
	if got[0].Snapshot != second {
		t.Fatalf("snapshot did not survive encoding: %+v", got[0].Snapshot)
	}
	if !got[1].Time.Equal(start) {
		t.Fatalf("expected oldest transition at %v, got %v", start, got[1].Time)
	}
}

func TestJournalCountsSamples(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := j.RecordSample(ctx, "s1", now.Add(time.Duration(i)*time.Minute), float64(50+i)); err != nil {
			t.Fatalf("record sample: %v", err)
		}
	}
	n, err := j.SampleCount(ctx, "s1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	ctx := context.Background()
	if err := j.RecordSample(ctx, "s", time.Now(), 50); err != nil {
		t.Fatalf("expected nil journal to ignore writes, got %v", err)
	}
	if out, err := j.Transitions(ctx, "s", 5); err != nil || out != nil {
		t.Fatalf("expected empty result, got %v %v", out, err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
