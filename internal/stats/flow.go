package stats

import (
	"sync"
	"time"
)

const FlowCapacity = 100

type FlowEntry struct {
	Time time.Time `json:"time"`
	Buy  bool      `json:"buy"`
}

// FlowWindow holds the aggressor side of the most recent trades.
type FlowWindow struct {
	mu      sync.RWMutex
	entries []FlowEntry
	next    int
	full    bool
	buys    int
}

func NewFlowWindow(capacity int) *FlowWindow {
	if capacity <= 0 {
		capacity = FlowCapacity
	}
	return &FlowWindow{entries: make([]FlowEntry, capacity)}
}

func (f *FlowWindow) Record(isBuyerMaker bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full && f.entries[f.next].Buy {
		f.buys--
	}
	buy := !isBuyerMaker
	f.entries[f.next] = FlowEntry{Time: at, Buy: buy}
	if buy {
		f.buys++
	}
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
}

func (f *FlowWindow) Counts() (buy, sell int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.buys, f.size() - f.buys
}

// BuyRatio is 0.5 for an empty window.
func (f *FlowWindow) BuyRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := f.size()
	if n == 0 {
		return 0.5
	}
	return float64(f.buys) / float64(n)
}

// Entries returns the window oldest first.
func (f *FlowWindow) Entries() []FlowEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.full {
		return append([]FlowEntry(nil), f.entries[:f.next]...)
	}
	out := make([]FlowEntry, 0, len(f.entries))
	out = append(out, f.entries[f.next:]...)
	return append(out, f.entries[:f.next]...)
}

func (f *FlowWindow) size() int {
	if f.full {
		return len(f.entries)
	}
	return f.next
}
