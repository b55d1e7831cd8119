package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "flux_sentinel"

type promStateGauge struct {
	mu      sync.Mutex
	vec     *prometheus.GaugeVec
	current string
}

func (p *promStateGauge) Set(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" && p.current != state {
		p.vec.WithLabelValues(p.current).Set(0)
	}
	p.vec.WithLabelValues(state).Set(1)
	p.current = state
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	regime   *prometheus.GaugeVec
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry: registry,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
	counter := func(name, help string) Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(c)
		p.counters[name] = c
		return c
	}
	gauge := func(name, help string) Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(g)
		p.gauges[name] = g
		return g
	}
	p.regime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "regime",
		Help:      "Current market regime (1 for the active regime).",
	}, []string{"regime"})
	registry.MustRegister(p.regime)

	p.Metrics = &Metrics{
		TicksIngested:   counter("ticks_ingested_total", "Total number of ticks applied to the engine."),
		TicksRejected:   counter("ticks_rejected_total", "Total number of ticks rejected as invalid."),
		TicksDegenerate: counter("ticks_degenerate_total", "Total number of ticks that produced non-finite statistics."),
		FramesMalformed: counter("frames_malformed_total", "Total number of feed frames that could not be decoded."),
		Reconnects:      counter("feed_reconnects_total", "Total number of feed reconnects."),
		HistorySamples:  counter("history_samples_total", "Total number of RSI history samples taken."),
		RegimeChanges:   counter("regime_changes_total", "Total number of regime transitions."),
		SinkErrors:      counter("sink_errors_total", "Total number of snapshot sink failures."),
		Price:           gauge("price", "Last trade price."),
		Volatility:      gauge("volatility", "GARCH volatility estimate."),
		ZScore:          gauge("z_score", "Last price delta over volatility."),
		RiskPremium:     gauge("risk_premium", "Clamped risk premium."),
		RSI:             gauge("rsi", "Wilder RSI."),
		BuyRatio:        gauge("buy_ratio", "Share of buy-side aggressors in the flow window."),
		FeedStale:       gauge("feed_stale", "1 when no trade arrived within the staleness window."),
		Paused:          gauge("paused", "1 while ingestion is paused."),
		Regime:          &promStateGauge{vec: p.regime},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
