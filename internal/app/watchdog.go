package app

import (
	"errors"
	"fmt"
	"time"

	"flux-sentinel/internal/config"
)

var ErrFeedStale = errors.New("feed data stale")

const minWatchdogInterval = time.Second

// CheckFeed reports ErrFeedStale when the last trade is older than the configured limit.
func CheckFeed(cfg config.RiskConfig, age time.Duration) error {
	if cfg.MaxFeedAge > 0 && age > cfg.MaxFeedAge {
		return fmt.Errorf("feed age %s exceeds %s: %w", age.Truncate(time.Millisecond), cfg.MaxFeedAge, ErrFeedStale)
	}
	return nil
}

func watchdogInterval(maxAge time.Duration) time.Duration {
	interval := maxAge / 2
	if interval < minWatchdogInterval {
		return minWatchdogInterval
	}
	return interval
}

// nextSample returns the wait until the next history sample. Aligned samples
// land on wall-clock boundaries, so a 1m interval fires at :00 of every minute.
func nextSample(now time.Time, interval time.Duration, align bool) time.Duration {
	if interval <= 0 {
		interval = time.Minute
	}
	if !align {
		return interval
	}
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now)
}
