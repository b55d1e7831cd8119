package market

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const aggTradeEvent = "aggTrade"

// parseAggTrade accepts a raw aggTrade payload or one wrapped in a
// combined-stream envelope ({"stream": ..., "data": {...}}).
func parseAggTrade(payload map[string]any) (Trade, bool) {
	data := payload
	if nested, ok := toMap(payload["data"]); ok {
		data = nested
	}
	if stringFromAny(data["e"]) != aggTradeEvent {
		return Trade{}, false
	}
	price, ok := floatFromAny(data["p"])
	if !ok {
		return Trade{}, false
	}
	maker, ok := data["m"].(bool)
	if !ok {
		return Trade{}, false
	}
	qty, _ := floatFromAny(data["q"])
	return Trade{
		Symbol:       strings.ToUpper(stringFromAny(data["s"])),
		AggTradeID:   int64FromAny(data["a"], 0),
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: maker,
		TradeTime:    msTime(data["T"]),
		EventTime:    msTime(data["E"]),
	}, true
}

// isControlFrame reports subscription acks and error replies.
func isControlFrame(payload map[string]any) bool {
	if _, ok := payload["id"]; ok {
		_, hasResult := payload["result"]
		_, hasError := payload["error"]
		return hasResult || hasError
	}
	return false
}

func msTime(v any) time.Time {
	ms := int64FromAny(v, 0)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func int64FromAny(v any, fallback int64) int64 {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
	case float64:
		return int64(val)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
