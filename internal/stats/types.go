package stats

type Regime string

const (
	RegimeCalibrating              Regime = "CALIBRATING"
	RegimeVolatilityShock          Regime = "VOLATILITY_SHOCK"
	RegimeLiquidityExpansion       Regime = "LIQUIDITY_EXPANSION"
	RegimeInstitutionalCompression Regime = "INSTITUTIONAL_COMPRESSION"
	RegimeStableAccumulation       Regime = "STABLE_ACCUMULATION"
)

// Tick is one trade observed on the feed.
type Tick struct {
	Price float64
	// IsBuyerMaker is false when a buy-side aggressor took the trade.
	IsBuyerMaker bool
}

type TickCounts struct {
	Up   uint64 `json:"up" msgpack:"up"`
	Down uint64 `json:"down" msgpack:"down"`
}

type StealthCounts struct {
	Buy  uint64 `json:"buy" msgpack:"buy"`
	Sell uint64 `json:"sell" msgpack:"sell"`
}

// Vectors are support/resistance projections around the last price.
type Vectors struct {
	Bull      float64 `json:"bull" msgpack:"bull"`
	Bear      float64 `json:"bear" msgpack:"bear"`
	MacroBull float64 `json:"macro_bull" msgpack:"macro_bull"`
	MacroBear float64 `json:"macro_bear" msgpack:"macro_bear"`
}

type Snapshot struct {
	Seq           uint64        `json:"seq" msgpack:"seq"`
	Price         float64       `json:"price" msgpack:"price"`
	PrevPrice     float64       `json:"prev_price" msgpack:"prev_price"`
	Delta         float64       `json:"delta" msgpack:"delta"`
	Variance      float64       `json:"variance" msgpack:"variance"`
	Volatility    float64       `json:"volatility" msgpack:"volatility"`
	ZScore        float64       `json:"z_score" msgpack:"z_score"`
	RiskPremium   float64       `json:"risk_premium" msgpack:"risk_premium"`
	Regime        Regime        `json:"regime" msgpack:"regime"`
	Vectors       Vectors       `json:"vectors" msgpack:"vectors"`
	RSI           float64       `json:"rsi" msgpack:"rsi"`
	TickCounts    TickCounts    `json:"tick_counts" msgpack:"tick_counts"`
	StealthCounts StealthCounts `json:"stealth_counts" msgpack:"stealth_counts"`
}

// State is the numeric state carried from one tick to the next.
type State struct {
	LastPrice     float64
	HasLastPrice  bool
	Variance      float64
	AvgGain       float64
	AvgLoss       float64
	TickCounts    TickCounts
	StealthCounts StealthCounts
	Ticks         uint64
}
