package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flux-sentinel/internal/journal"
	"flux-sentinel/internal/metrics"
	"flux-sentinel/internal/stats"

	"go.uber.org/zap"
)

type fakeSource struct {
	snap        stats.Snapshot
	history     []float64
	flow        *stats.FlowWindow
	paused      bool
	transitions []journal.Transition
	err         error
	gotLimit    int
}

func (f *fakeSource) Symbol() string                 { return "PAXGUSDT" }
func (f *fakeSource) Snapshot() stats.Snapshot       { return f.snap }
func (f *fakeSource) History() []float64             { return f.history }
func (f *fakeSource) HistoryInterval() time.Duration { return time.Minute }
func (f *fakeSource) Flow() *stats.FlowWindow        { return f.flow }

func (f *fakeSource) Status() Status {
	return Status{Session: "s1", Symbol: "PAXGUSDT", Running: true, Paused: f.paused, Regime: f.snap.Regime}
}

func (f *fakeSource) Transitions(_ context.Context, limit int) ([]journal.Transition, error) {
	f.gotLimit = limit
	return f.transitions, f.err
}

func (f *fakeSource) Pause() bool {
	changed := !f.paused
	f.paused = true
	return changed
}

func (f *fakeSource) Resume() bool {
	changed := f.paused
	f.paused = false
	return changed
}

func newTestServer(src *fakeSource) http.Handler {
	prom := metrics.NewPrometheus()
	return New(src, Options{MetricsPath: "/metrics", MetricsHandler: prom.Handler(), Log: zap.NewNop()}).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	flow := stats.NewFlowWindow(4)
	flow.Record(false, time.Now())
	flow.Record(true, time.Now())
	flow.Record(false, time.Now())
	flow.Record(false, time.Now())
	src := &fakeSource{snap: stats.Snapshot{Seq: 2, Price: 101, Variance: 0.182725, Regime: stats.RegimeLiquidityExpansion}, flow: flow}
	rec := do(t, newTestServer(src), http.MethodGet, "/api/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Symbol != "PAXGUSDT" || resp.Snapshot.Regime != stats.RegimeLiquidityExpansion || resp.Snapshot.Seq != 2 {
		t.Fatalf("unexpected snapshot %+v", resp)
	}
	if resp.BuyRatio != 0.75 {
		t.Fatalf("expected buy ratio 0.75, got %v", resp.BuyRatio)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	src := &fakeSource{history: []float64{50, 50, 61.5}, flow: stats.NewFlowWindow(0)}
	rec := do(t, newTestServer(src), http.MethodGet, "/api/history")
	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IntervalSeconds != 60 || len(resp.Values) != 3 || resp.Values[2] != 61.5 {
		t.Fatalf("unexpected history %+v", resp)
	}
}

func TestFlowEndpointEntries(t *testing.T) {
	flow := stats.NewFlowWindow(0)
	flow.Record(true, time.Now())
	src := &fakeSource{flow: flow}
	h := newTestServer(src)

	var plain flowResponse
	if err := json.Unmarshal(do(t, h, http.MethodGet, "/api/flow").Body.Bytes(), &plain); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plain.Sell != 1 || plain.Buy != 0 || len(plain.Entries) != 0 {
		t.Fatalf("unexpected flow %+v", plain)
	}
	var detailed flowResponse
	if err := json.Unmarshal(do(t, h, http.MethodGet, "/api/flow?entries=true").Body.Bytes(), &detailed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detailed.Entries) != 1 || detailed.Entries[0].Buy {
		t.Fatalf("expected one sell entry, got %+v", detailed.Entries)
	}
}

func TestPauseResume(t *testing.T) {
	src := &fakeSource{flow: stats.NewFlowWindow(0)}
	h := newTestServer(src)
	var resp controlResponse
	_ = json.Unmarshal(do(t, h, http.MethodPost, "/api/pause").Body.Bytes(), &resp)
	if !resp.Paused || !resp.Changed || !src.paused {
		t.Fatalf("expected pause to take effect, got %+v", resp)
	}
	_ = json.Unmarshal(do(t, h, http.MethodPost, "/api/pause").Body.Bytes(), &resp)
	if resp.Changed {
		t.Fatalf("expected second pause to be a no-op")
	}
	var status Status
	_ = json.Unmarshal(do(t, h, http.MethodGet, "/api/status").Body.Bytes(), &status)
	if !status.Paused || status.Session != "s1" {
		t.Fatalf("unexpected status %+v", status)
	}
	_ = json.Unmarshal(do(t, h, http.MethodPost, "/api/resume").Body.Bytes(), &resp)
	if resp.Paused || !resp.Changed || src.paused {
		t.Fatalf("expected resume to take effect, got %+v", resp)
	}
	if rec := do(t, h, http.MethodGet, "/api/pause"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET pause, got %d", rec.Code)
	}
}

func TestTransitionsEndpoint(t *testing.T) {
	src := &fakeSource{
		flow: stats.NewFlowWindow(0),
		transitions: []journal.Transition{{
			From: stats.RegimeStableAccumulation,
			To:   stats.RegimeVolatilityShock,
		}},
	}
	h := newTestServer(src)
	rec := do(t, h, http.MethodGet, "/api/transitions")
	if rec.Code != http.StatusOK || src.gotLimit != 50 {
		t.Fatalf("expected default limit 50, got code %d limit %d", rec.Code, src.gotLimit)
	}
	var views []transitionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].To != stats.RegimeVolatilityShock {
		t.Fatalf("unexpected transitions %+v", views)
	}
	if rec := do(t, h, http.MethodGet, "/api/transitions?limit=1000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rec.Code)
	}
	src.err = errors.New("db gone")
	if rec := do(t, h, http.MethodGet, "/api/transitions?limit=5"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on query failure, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakeSource{flow: stats.NewFlowWindow(0)})
	if rec := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "flux_sentinel_ticks_ingested_total") {
		t.Fatalf("expected sentinel metrics in exposition")
	}
}
