package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashPolicy controls what the paper broker does when a fill would cost
// more cash than is available.
type CashPolicy string

const (
	// CashPolicyScaleDown shrinks the order to the maximum affordable
	// size. Keeps simulation deterministic; changes realized PnL versus
	// a hard reject.
	CashPolicyScaleDown CashPolicy = "scale_down"
	// CashPolicyStrictReject rejects the order outright and leaves
	// cash and position untouched.
	CashPolicyStrictReject CashPolicy = "strict_reject"
)

// SlippageModelKind selects how fill prices deviate from the bar open.
type SlippageModelKind string

const (
	SlippageFixedBps       SlippageModelKind = "fixed_bps"
	SlippageFixedAmount    SlippageModelKind = "fixed_amount"
	SlippageVolumeWeighted SlippageModelKind = "volume_weighted"
)

// StrategyConfig holds the signal and sizing parameters.
type StrategyConfig struct {
	FastPeriod   int `json:"fastPeriod"`
	SlowPeriod   int `json:"slowPeriod"`
	SignalPeriod int `json:"signalPeriod"`
	// NormWindow is the rolling min/max window used to normalize the
	// MACD line into [-1, 1].
	NormWindow int `json:"normWindow"`
	// EnterThreshold is the normalized value at which the signal flips
	// long (>= threshold) or short (<= -threshold).
	EnterThreshold decimal.Decimal `json:"enterThreshold"`
	RiskPerTrade   decimal.Decimal `json:"riskPerTrade"` // fraction of equity risked per trade
	StopLossPct    decimal.Decimal `json:"stopLossPct"`  // stop distance as fraction of price
	MaxLeverage    decimal.Decimal `json:"maxLeverage"`  // cap on notional / equity
}

// FeeConfig defines transaction costs: bps of notional at the fill
// price plus an optional fixed amount per fill.
type FeeConfig struct {
	Bps   decimal.Decimal `json:"bps"`
	Fixed decimal.Decimal `json:"fixed"`
}

// SlippageConfig defines the fill price adjustment model.
type SlippageConfig struct {
	Model SlippageModelKind `json:"model"`
	// Bps applies for fixed_bps and as the base for volume_weighted.
	Bps decimal.Decimal `json:"bps"`
	// Amount applies for fixed_amount: absolute price offset.
	Amount decimal.Decimal `json:"amount"`
	// ImpactFactor scales the square-root participation impact for
	// volume_weighted.
	ImpactFactor decimal.Decimal `json:"impactFactor"`
}

// SimConfig is the full parameter object for one simulation run. It is
// immutable per run: validation layers copy it before applying
// overrides, so runs share no mutable state.
type SimConfig struct {
	Symbol         string          `json:"symbol"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	// BarsPerYear annualizes Sharpe/Sortino for the configured bar
	// frequency (252 for daily equities, 365 for daily crypto, 8760
	// for hourly, ...).
	BarsPerYear int            `json:"barsPerYear"`
	Strategy    StrategyConfig `json:"strategy"`
	Fees        FeeConfig      `json:"fees"`
	Slippage    SlippageConfig `json:"slippage"`
	CashPolicy  CashPolicy     `json:"cashPolicy"`
}

// Validate checks option sanity before a run.
func (c SimConfig) Validate() error {
	if c.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("initial capital must be positive, got %s", c.InitialCapital)
	}
	if c.Strategy.FastPeriod <= 0 || c.Strategy.SlowPeriod <= 0 || c.Strategy.SignalPeriod <= 0 {
		return fmt.Errorf("strategy periods must be positive")
	}
	if c.Strategy.FastPeriod >= c.Strategy.SlowPeriod {
		return fmt.Errorf("fast period %d must be below slow period %d",
			c.Strategy.FastPeriod, c.Strategy.SlowPeriod)
	}
	if c.Strategy.NormWindow <= 1 {
		return fmt.Errorf("normalization window must be greater than 1, got %d", c.Strategy.NormWindow)
	}
	if c.BarsPerYear <= 0 {
		return fmt.Errorf("bars per year must be positive, got %d", c.BarsPerYear)
	}
	switch c.CashPolicy {
	case CashPolicyScaleDown, CashPolicyStrictReject:
	default:
		return fmt.Errorf("unknown cash policy %q", c.CashPolicy)
	}
	switch c.Slippage.Model {
	case SlippageFixedBps, SlippageFixedAmount, SlippageVolumeWeighted:
	default:
		return fmt.Errorf("unknown slippage model %q", c.Slippage.Model)
	}
	return nil
}

// ParameterSet maps named parameters to values for one sweep or
// walk-forward run.
type ParameterSet map[string]float64

// Clone returns an independent copy.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// WithParams returns a copy of the config with the named overrides
// applied. The receiver is never mutated. Unknown parameter names are
// an error so a misspelled grid key surfaces as a failed run instead of
// a silently unchanged one.
func (c SimConfig) WithParams(p ParameterSet) (SimConfig, error) {
	out := c
	for name, v := range p {
		switch name {
		case "fast_period":
			out.Strategy.FastPeriod = int(v)
		case "slow_period":
			out.Strategy.SlowPeriod = int(v)
		case "signal_period":
			out.Strategy.SignalPeriod = int(v)
		case "norm_window":
			out.Strategy.NormWindow = int(v)
		case "enter_threshold":
			out.Strategy.EnterThreshold = decimal.NewFromFloat(v)
		case "risk_per_trade":
			out.Strategy.RiskPerTrade = decimal.NewFromFloat(v)
		case "stop_loss_pct":
			out.Strategy.StopLossPct = decimal.NewFromFloat(v)
		case "max_leverage":
			out.Strategy.MaxLeverage = decimal.NewFromFloat(v)
		case "fee_bps":
			out.Fees.Bps = decimal.NewFromFloat(v)
		case "slippage_bps":
			out.Slippage.Bps = decimal.NewFromFloat(v)
		default:
			return SimConfig{}, fmt.Errorf("unknown parameter %q", name)
		}
	}
	return out, nil
}

// SweepConfig defines a parameter sweep batch.
type SweepConfig struct {
	Grid      map[string][]float64 `json:"grid"`
	Objective string               `json:"objective"`
	Workers   int                  `json:"workers"`
}

// WalkForwardConfig defines a walk-forward validation batch. Widths and
// step are bar counts, not calendar time: bars are the engine's clock.
type WalkForwardConfig struct {
	TrainBars int `json:"trainBars"`
	TestBars  int `json:"testBars"`
	StepBars  int `json:"stepBars"`
	// Grid, when non-empty, is searched on each train range to pick
	// the parameters evaluated on the matching test range.
	Grid      map[string][]float64 `json:"grid,omitempty"`
	Objective string               `json:"objective"`
	Workers   int                  `json:"workers"`
}

// MonteCarloConfig defines trade-resampling validation. Seed is an
// explicit parameter so batches stay reproducible; there is no shared
// RNG.
type MonteCarloConfig struct {
	Iterations int   `json:"iterations"`
	Seed       int64 `json:"seed"`
	// RuinFraction is the equity fraction below which a path counts as
	// ruined (e.g. 0.5 = half the starting capital).
	RuinFraction decimal.Decimal `json:"ruinFraction"`
}

// ServerConfig configures the HTTP/WebSocket API server.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	WebSocketPath string        `json:"websocketPath"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
}
