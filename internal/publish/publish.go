// Package publish fans engine snapshots out to external sinks.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"flux-sentinel/internal/metrics"
	"flux-sentinel/internal/stats"

	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

var ErrClosed = errors.New("dispatcher closed")

type Event struct {
	Session  string         `json:"session"`
	Symbol   string         `json:"symbol"`
	Time     time.Time      `json:"time"`
	Snapshot stats.Snapshot `json:"snapshot"`
	BuyRatio float64        `json:"buy_ratio"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Dispatcher delivers events to every sink from one background goroutine.
// Enqueue never blocks the caller; events are dropped while the queue is full.
type Dispatcher struct {
	sinks   []Sink
	log     *zap.Logger
	metrics *metrics.Metrics
	queue   chan Event

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

func NewDispatcher(sinks []Sink, queueSize int, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Dispatcher{
		sinks:   sinks,
		log:     log,
		metrics: m,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.sinks)
}

func (d *Dispatcher) Start(ctx context.Context) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run(ctx)
}

func (d *Dispatcher) Enqueue(event Event) error {
	if d == nil || len(d.sinks) == 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- event:
	default:
		if d.dropped.Add(1) == 1 {
			d.log.Warn("publish queue full")
		}
	}
	return nil
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting events, waits for the worker to drain and closes the sinks.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		if d.started.Load() {
			<-d.done
		}
		for _, sink := range d.sinks {
			if err := sink.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := sink.Publish(sendCtx, event)
		cancel()
		if err != nil {
			d.metrics.SinkErrors.Inc()
			d.log.Warn("publish failed", zap.String("sink", sink.Name()), zap.Uint64("seq", event.Snapshot.Seq), zap.Error(err))
		}
	}
}
