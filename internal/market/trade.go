package market

import (
	"time"

	"flux-sentinel/internal/stats"
)

// Trade is one aggregated trade from the exchange stream.
type Trade struct {
	Symbol       string
	AggTradeID   int64
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
	TradeTime    time.Time
	EventTime    time.Time
}

func (t Trade) Tick() stats.Tick {
	return stats.Tick{Price: t.Price, IsBuyerMaker: t.IsBuyerMaker}
}
