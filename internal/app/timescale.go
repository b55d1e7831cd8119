package app

import (
	"time"

	"flux-sentinel/internal/stats"
	"flux-sentinel/internal/timescale"
)

func (a *App) recordTimescaleSnapshot(snap stats.Snapshot, buyRatio float64, at time.Time) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueSnapshot(timescale.SnapshotRow{
		Time:     at.UTC(),
		Session:  a.session,
		Symbol:   a.feed.Symbol(),
		Snapshot: snap,
		BuyRatio: buyRatio,
	})
}

func (a *App) recordTimescaleSample(rsi float64, at time.Time) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueSample(timescale.SampleRow{
		Time:    at.UTC(),
		Session: a.session,
		Symbol:  a.feed.Symbol(),
		RSI:     rsi,
	})
}
