package stats

import "sync"

const HistoryCapacity = 45

// HistoryFill is the neutral RSI every slot starts at.
const HistoryFill float64 = 50

// HistoryBuffer keeps a fixed number of RSI samples, oldest first.
type HistoryBuffer struct {
	mu     sync.RWMutex
	values []float64
	head   int
}

func NewHistoryBuffer(capacity int, fill float64) *HistoryBuffer {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	values := make([]float64, capacity)
	for i := range values {
		values[i] = fill
	}
	return &HistoryBuffer{values: values}
}

// Sample evicts the oldest value and appends v.
func (h *HistoryBuffer) Sample(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[h.head] = v
	h.head = (h.head + 1) % len(h.values)
}

func (h *HistoryBuffer) Values() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, 0, len(h.values))
	out = append(out, h.values[h.head:]...)
	out = append(out, h.values[:h.head]...)
	return out
}

func (h *HistoryBuffer) Latest() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx := h.head - 1
	if idx < 0 {
		idx = len(h.values) - 1
	}
	return h.values[idx]
}

func (h *HistoryBuffer) Len() int {
	return len(h.values)
}
