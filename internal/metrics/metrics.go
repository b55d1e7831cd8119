package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

// StateGauge marks exactly one named state as active.
type StateGauge interface {
	Set(state string)
}

type Metrics struct {
	TicksIngested   Counter
	TicksRejected   Counter
	TicksDegenerate Counter
	FramesMalformed Counter
	Reconnects      Counter
	HistorySamples  Counter
	RegimeChanges   Counter
	SinkErrors      Counter

	Price       Gauge
	Volatility  Gauge
	ZScore      Gauge
	RiskPremium Gauge
	RSI         Gauge
	BuyRatio    Gauge
	FeedStale   Gauge
	Paused      Gauge

	Regime StateGauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

type noopStateGauge struct{}

func (noopStateGauge) Set(string) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		TicksIngested:   c,
		TicksRejected:   c,
		TicksDegenerate: c,
		FramesMalformed: c,
		Reconnects:      c,
		HistorySamples:  c,
		RegimeChanges:   c,
		SinkErrors:      c,
		Price:           g,
		Volatility:      g,
		ZScore:          g,
		RiskPremium:     g,
		RSI:             g,
		BuyRatio:        g,
		FeedStale:       g,
		Paused:          g,
		Regime:          noopStateGauge{},
	}
}
