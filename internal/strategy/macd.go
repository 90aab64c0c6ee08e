// Package strategy provides the signal engine driving the simulation.
//
// The engine computes a MACD line from two exponential moving averages,
// an EMA signal line of that difference, and normalizes the MACD line
// into [-1, 1] with a rolling min/max window so values are comparable
// across instruments. Direction flips use hysteresis: once long or
// short, the engine stays there until the opposite threshold is
// crossed, so at most one order intent is emitted per direction change.
package strategy

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var two = decimal.NewFromInt(2)

// ema is an incremental exponential moving average seeded with the
// first observation (the ewm(adjust=false) recursion).
type ema struct {
	alpha  decimal.Decimal
	value  decimal.Decimal
	primed bool
}

func newEMA(period int) *ema {
	return &ema{alpha: two.Div(decimal.NewFromInt(int64(period) + 1))}
}

func (e *ema) update(v decimal.Decimal) decimal.Decimal {
	if !e.primed {
		e.value = v
		e.primed = true
		return e.value
	}
	e.value = e.value.Add(e.alpha.Mul(v.Sub(e.value)))
	return e.value
}

// Engine evaluates bars sequentially. It sees only bars at or before
// the current one, so signals are leakage-free by construction.
type Engine struct {
	logger *zap.Logger
	cfg    types.StrategyConfig

	emaFast   *ema
	emaSlow   *ema
	emaSignal *ema

	macdWindow []decimal.Decimal // last NormWindow MACD values
	barCount   int
	direction  types.Direction
}

// NewEngine creates a signal engine for one run. Engines carry mutable
// indicator state and must not be shared across runs.
func NewEngine(logger *zap.Logger, cfg types.StrategyConfig) *Engine {
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		emaFast:    newEMA(cfg.FastPeriod),
		emaSlow:    newEMA(cfg.SlowPeriod),
		emaSignal:  newEMA(cfg.SignalPeriod),
		macdWindow: make([]decimal.Decimal, 0, cfg.NormWindow),
		direction:  types.DirectionFlat,
	}
}

// WarmupBars returns the number of bars the configuration needs before
// the engine can emit a non-flat signal.
func WarmupBars(cfg types.StrategyConfig) int {
	w := cfg.SlowPeriod + cfg.SignalPeriod
	if cfg.NormWindow > w {
		return cfg.NormWindow
	}
	return w
}

// Warmup returns the number of bars the engine needs before it can emit
// a non-flat signal.
func (e *Engine) Warmup() int { return WarmupBars(e.cfg) }

// Evaluate consumes one bar and returns the signal for it, plus an
// order intent when and only when the signal direction changed.
// Insufficient history is non-fatal: the engine emits a flat signal.
func (e *Engine) Evaluate(bar types.Bar, equity decimal.Decimal) (types.SignalValue, *types.OrderIntent) {
	e.barCount++

	fast := e.emaFast.update(bar.Close)
	slow := e.emaSlow.update(bar.Close)
	macd := fast.Sub(slow)
	signalLine := e.emaSignal.update(macd)

	if len(e.macdWindow) == e.cfg.NormWindow {
		copy(e.macdWindow, e.macdWindow[1:])
		e.macdWindow = e.macdWindow[:e.cfg.NormWindow-1]
	}
	e.macdWindow = append(e.macdWindow, macd)

	sig := types.SignalValue{Timestamp: bar.Timestamp, Direction: e.direction}
	if e.barCount < e.Warmup() {
		sig.Direction = types.DirectionFlat
		return sig, nil
	}

	sig.Value = e.normalized(macd)
	next := e.nextDirection(sig.Value, macd, signalLine)
	sig.Direction = next
	if next == e.direction {
		return sig, nil
	}

	e.direction = next
	size := e.positionSize(equity, bar.Close)
	if size.IsZero() {
		e.logger.Debug("direction change with zero size, no intent",
			zap.String("direction", string(next)),
			zap.Time("at", bar.Timestamp),
		)
		return sig, nil
	}

	return sig, &types.OrderIntent{
		ID:         uuid.New().String(),
		Timestamp:  bar.Timestamp,
		Direction:  next,
		TargetSize: size,
	}
}

// normalized maps macd into [-1, 1] via the rolling window min/max.
// A degenerate window (min == max, e.g. a flat price series) maps to 0.
func (e *Engine) normalized(macd decimal.Decimal) decimal.Decimal {
	lo, hi := e.macdWindow[0], e.macdWindow[0]
	for _, v := range e.macdWindow[1:] {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	span := hi.Sub(lo)
	if span.IsZero() {
		return decimal.Zero
	}
	return two.Mul(macd.Sub(lo).Div(span)).Sub(decimal.NewFromInt(1))
}

// nextDirection applies threshold hysteresis: the current direction
// persists until the opposite threshold is crossed with the MACD line
// on the matching side of its signal line.
func (e *Engine) nextDirection(value, macd, signalLine decimal.Decimal) types.Direction {
	switch {
	case value.GreaterThanOrEqual(e.cfg.EnterThreshold) && macd.GreaterThanOrEqual(signalLine):
		return types.DirectionLong
	case value.LessThanOrEqual(e.cfg.EnterThreshold.Neg()) && macd.LessThanOrEqual(signalLine):
		return types.DirectionShort
	default:
		return e.direction
	}
}

// positionSize converts the risk-per-trade fraction of current equity
// and the stop-distance estimate into a target size, clamped so the
// notional never exceeds equity times max leverage.
func (e *Engine) positionSize(equity, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() || equity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	maxSize := equity.Mul(e.cfg.MaxLeverage).Div(price)

	stopDistance := price.Mul(e.cfg.StopLossPct)
	if stopDistance.IsZero() {
		return maxSize
	}
	size := equity.Mul(e.cfg.RiskPerTrade).Div(stopDistance)
	if size.GreaterThan(maxSize) {
		return maxSize
	}
	return size
}

// Reset clears all indicator state so the engine can replay another
// series with the same parameters.
func (e *Engine) Reset() {
	e.emaFast = newEMA(e.cfg.FastPeriod)
	e.emaSlow = newEMA(e.cfg.SlowPeriod)
	e.emaSignal = newEMA(e.cfg.SignalPeriod)
	e.macdWindow = e.macdWindow[:0]
	e.barCount = 0
	e.direction = types.DirectionFlat
}

// Direction returns the engine's current held direction.
func (e *Engine) Direction() types.Direction { return e.direction }
