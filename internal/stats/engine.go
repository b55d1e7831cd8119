package stats

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// GARCH(1,1) coefficients. ALPHA+BETA stays below 1 so the variance reverts
// toward OMEGA/(1-ALPHA-BETA).
const (
	Omega = 0.03
	Alpha = 0.12
	Beta  = 0.85

	SeedVariance = 0.01
	ZScoreFloor  = 0.001
)

const (
	RiskPremiumFloor = 0.02
	RiskPremiumCap   = 0.06
	riskPremiumSlope = 0.04
	riskPriceScale   = 0.001
)

// Regime thresholds are applied to the updated variance, first match wins.
const (
	ShockVariance       = 0.38
	ExpansionVariance   = 0.16
	CompressionVariance = 0.07
)

// Vector targets: m = max(VectorFloor, volatility*VectorScale), offsets are
// m*VectorBox*multiplier around the price.
const (
	VectorFloor     = 1.2
	VectorScale     = 16
	VectorBox       = 0.5
	NearMultiplier  = 2.5
	MacroMultiplier = 7
)

const RSIPeriod = 14

var (
	ErrInvalidTick          = errors.New("invalid tick")
	ErrArithmeticDegenerate = errors.New("arithmetic degenerate")
)

// Engine folds ticks into running volatility, momentum and flow statistics.
// State is cumulative for the lifetime of the engine.
type Engine struct {
	mu    sync.Mutex
	state State
	last  Snapshot
}

func NewEngine() *Engine {
	e := &Engine{}
	e.reset()
	return e
}

// Update applies one tick. On error the engine state is left unchanged.
func (e *Engine) Update(tick Tick) (Snapshot, error) {
	if math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) || tick.Price <= 0 {
		return Snapshot{}, fmt.Errorf("price %v: %w", tick.Price, ErrInvalidTick)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, snap := step(e.state, tick)
	if err := checkFinite(snap); err != nil {
		return Snapshot{}, err
	}
	e.state = next
	e.last = snap
	return snap, nil
}

// Snapshot returns the result of the most recent Update.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Rebase moves the reference price to price without touching variance, RSI
// averages or counters. Callers use it to recover when the jump from the last
// accepted price keeps producing ErrArithmeticDegenerate.
func (e *Engine) Rebase(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("price %v: %w", price, ErrInvalidTick)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastPrice = price
	e.state.HasLastPrice = true
	return nil
}

// Reset reinitializes the engine. Only tests call it; ingestion never does.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.state = State{Variance: SeedVariance}
	e.last = Snapshot{Variance: SeedVariance, Volatility: math.Sqrt(SeedVariance), RiskPremium: RiskPremiumFloor, Regime: RegimeCalibrating}
}

func step(s State, tick Tick) (State, Snapshot) {
	price := tick.Price
	delta := 0.0
	if s.HasLastPrice {
		delta = price - s.LastPrice
	}

	variance := Omega + Alpha*delta*delta + Beta*s.Variance
	volatility := math.Sqrt(variance)
	zScore := delta / math.Max(volatility, ZScoreFloor)
	premium := riskPremium(volatility, price)

	gain := math.Max(delta, 0)
	loss := math.Max(-delta, 0)
	avgGain := (s.AvgGain*(RSIPeriod-1) + gain) / RSIPeriod
	avgLoss := (s.AvgLoss*(RSIPeriod-1) + loss) / RSIPeriod

	next := s
	next.Variance = variance
	next.AvgGain = avgGain
	next.AvgLoss = avgLoss
	switch {
	case delta > 0:
		next.TickCounts.Up++
	case delta < 0:
		next.TickCounts.Down++
	}
	if tick.IsBuyerMaker {
		next.StealthCounts.Sell++
	} else {
		next.StealthCounts.Buy++
	}
	next.LastPrice = price
	next.HasLastPrice = true
	next.Ticks++

	return next, Snapshot{
		Seq:           next.Ticks,
		Price:         price,
		PrevPrice:     s.LastPrice,
		Delta:         delta,
		Variance:      variance,
		Volatility:    volatility,
		ZScore:        zScore,
		RiskPremium:   premium,
		Regime:        Classify(variance),
		Vectors:       Project(price, volatility),
		RSI:           rsi(avgGain, avgLoss),
		TickCounts:    next.TickCounts,
		StealthCounts: next.StealthCounts,
	}
}

// Classify maps a variance reading onto a regime.
func Classify(variance float64) Regime {
	switch {
	case variance > ShockVariance:
		return RegimeVolatilityShock
	case variance > ExpansionVariance:
		return RegimeLiquidityExpansion
	case variance < CompressionVariance:
		return RegimeInstitutionalCompression
	default:
		return RegimeStableAccumulation
	}
}

func Project(price, volatility float64) Vectors {
	m := math.Max(VectorFloor, volatility*VectorScale)
	near := m * VectorBox * NearMultiplier
	macro := m * VectorBox * MacroMultiplier
	return Vectors{
		Bull:      price + near,
		Bear:      price - near,
		MacroBull: price + macro,
		MacroBear: price - macro,
	}
}

// riskPremium scales inversely with the price level.
func riskPremium(volatility, price float64) float64 {
	p := RiskPremiumFloor + (volatility/(price*riskPriceScale))*riskPremiumSlope
	if math.IsNaN(p) {
		return RiskPremiumCap
	}
	return math.Min(RiskPremiumCap, math.Max(RiskPremiumFloor, p))
}

func rsi(avgGain, avgLoss float64) float64 {
	divisor := avgLoss
	if divisor == 0 {
		divisor = 1
	}
	rs := avgGain / divisor
	return 100 - 100/(1+rs)
}

func checkFinite(s Snapshot) error {
	values := []float64{s.Variance, s.Volatility, s.ZScore, s.RiskPremium, s.RSI,
		s.Vectors.Bull, s.Vectors.Bear, s.Vectors.MacroBull, s.Vectors.MacroBear}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("seq %d: %w", s.Seq, ErrArithmeticDegenerate)
		}
	}
	if s.Variance <= 0 {
		return fmt.Errorf("seq %d: non-positive variance: %w", s.Seq, ErrArithmeticDegenerate)
	}
	return nil
}
