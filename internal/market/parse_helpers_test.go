package market

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseAggTradeRaw(t *testing.T) {
	payload := decode(t, `{"e":"aggTrade","E":1700000000123,"s":"PAXGUSDT","a":42,"p":"2650.12","q":"0.015","f":1,"l":2,"T":1700000000100,"m":false,"M":true}`)
	trade, ok := parseAggTrade(payload)
	if !ok {
		t.Fatalf("expected aggTrade to parse")
	}
	if !closeEnough(trade.Price, 2650.12) {
		t.Fatalf("expected price 2650.12, got %f", trade.Price)
	}
	if !closeEnough(trade.Quantity, 0.015) {
		t.Fatalf("expected qty 0.015, got %f", trade.Quantity)
	}
	if trade.IsBuyerMaker {
		t.Fatalf("expected buyer-taker trade")
	}
	if trade.AggTradeID != 42 || trade.Symbol != "PAXGUSDT" {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if trade.TradeTime.UnixMilli() != 1700000000100 || trade.EventTime.UnixMilli() != 1700000000123 {
		t.Fatalf("unexpected times %v %v", trade.TradeTime, trade.EventTime)
	}
	tick := trade.Tick()
	if tick.Price != trade.Price || tick.IsBuyerMaker {
		t.Fatalf("unexpected tick %+v", tick)
	}
}

func TestParseAggTradeCombinedEnvelope(t *testing.T) {
	payload := decode(t, `{"stream":"paxgusdt@aggTrade","data":{"e":"aggTrade","s":"PAXGUSDT","p":2651.5,"q":1,"m":true}}`)
	trade, ok := parseAggTrade(payload)
	if !ok {
		t.Fatalf("expected envelope to parse")
	}
	if !closeEnough(trade.Price, 2651.5) || !trade.IsBuyerMaker {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if !trade.TradeTime.IsZero() {
		t.Fatalf("expected zero trade time when T is missing")
	}
}

func TestParseAggTradeRejects(t *testing.T) {
	cases := []string{
		`{"e":"trade","p":"1","m":true}`,
		`{"e":"aggTrade","p":"abc","m":true}`,
		`{"e":"aggTrade","p":"1"}`,
		`{"e":"aggTrade","m":false}`,
	}
	for _, raw := range cases {
		if _, ok := parseAggTrade(decode(t, raw)); ok {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}

func TestIsControlFrame(t *testing.T) {
	if !isControlFrame(decode(t, `{"result":null,"id":1}`)) {
		t.Fatalf("expected subscription ack to be a control frame")
	}
	if !isControlFrame(decode(t, `{"error":{"code":2,"msg":"Invalid request"},"id":1}`)) {
		t.Fatalf("expected error reply to be a control frame")
	}
	if isControlFrame(decode(t, `{"e":"aggTrade","p":"1","m":true}`)) {
		t.Fatalf("expected trade not to be a control frame")
	}
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return payload
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
