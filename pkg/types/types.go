// Package types provides shared type definitions for the simulation engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the side of a signal or position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// OrderStatus represents the lifecycle state of an order intent.
type OrderStatus string

const (
	OrderStatusAccepted OrderStatus = "accepted"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusScaled   OrderStatus = "scaled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusReplaced OrderStatus = "replaced"
)

// Bar represents a single OHLCV candlestick. Bars are immutable and
// ordered by timestamp ascending with no duplicates.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// SignalValue is the normalized indicator output for one bar, derived
// only from bars at or before its timestamp.
type SignalValue struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Direction Direction       `json:"direction"`
}

// OrderIntent is a request to move the position to TargetSize in the
// given direction. It is produced at bar t and eligible to fill no
// earlier than bar t+1.
type OrderIntent struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Direction  Direction       `json:"direction"`
	TargetSize decimal.Decimal `json:"targetSize"`
}

// OrderResult reports what the broker did with an intent.
type OrderResult struct {
	OrderID    string          `json:"orderId"`
	Status     OrderStatus     `json:"status"`
	FilledSize decimal.Decimal `json:"filledSize"`
	FillPrice  decimal.Decimal `json:"fillPrice"`
	Fee        decimal.Decimal `json:"fee"`
	Reason     string          `json:"reason,omitempty"`
	FilledAt   time.Time       `json:"filledAt,omitempty"`
}

// Position is the broker-owned open position. Size is signed: positive
// for long, negative for short, zero when flat.
type Position struct {
	Size          decimal.Decimal `json:"size"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// Direction returns the side implied by the position's signed size.
func (p Position) Direction() Direction {
	switch {
	case p.Size.IsPositive():
		return DirectionLong
	case p.Size.IsNegative():
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Trade is a closed round trip. Immutable once recorded.
type Trade struct {
	ID         string          `json:"id"`
	Direction  Direction       `json:"direction"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	Size       decimal.Decimal `json:"size"`
	Fees       decimal.Decimal `json:"fees"`
	PnL        decimal.Decimal `json:"pnl"`
}

// EquityPoint is one point on the equity curve. TotalEquity is always
// Cash plus PositionValue.
type EquityPoint struct {
	Timestamp     time.Time       `json:"timestamp"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"positionValue"`
	TotalEquity   decimal.Decimal `json:"totalEquity"`
}

// RiskMetrics is derived from a trade log and equity curve, recomputed
// fresh per run and never mutated in place.
type RiskMetrics struct {
	TotalReturn    decimal.Decimal `json:"totalReturn"`
	MaxDrawdown    decimal.Decimal `json:"maxDrawdown"`    // fraction of peak, in [0,1]
	MaxDrawdownAbs decimal.Decimal `json:"maxDrawdownAbs"` // absolute equity decline
	SharpeRatio    decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio   decimal.Decimal `json:"sortinoRatio"`
	WinRate        decimal.Decimal `json:"winRate"`
	WinRateDefined bool            `json:"winRateDefined"`
	TradesClosed   int             `json:"tradesClosed"`
	WinningTrades  int             `json:"winningTrades"`
	LosingTrades   int             `json:"losingTrades"`
}

// Map flattens the metrics into named floats for consumers. win_rate is
// omitted entirely when undefined so "no trades" cannot read as 0%.
func (m RiskMetrics) Map() map[string]float64 {
	out := map[string]float64{
		"total_return":     m.TotalReturn.InexactFloat64(),
		"max_drawdown":     m.MaxDrawdown.InexactFloat64(),
		"max_drawdown_abs": m.MaxDrawdownAbs.InexactFloat64(),
		"sharpe_ratio":     m.SharpeRatio.InexactFloat64(),
		"sortino_ratio":    m.SortinoRatio.InexactFloat64(),
		"trades_closed":    float64(m.TradesClosed),
	}
	if m.WinRateDefined {
		out["win_rate"] = m.WinRate.InexactFloat64()
	}
	return out
}

// Result is the full output of one simulation run.
type Result struct {
	ID            string        `json:"id"`
	Config        SimConfig     `json:"config"`
	Trades        []Trade       `json:"trades"`
	EquityCurve   []EquityPoint `json:"equityCurve"`
	Metrics       RiskMetrics   `json:"metrics"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	BarsProcessed int           `json:"barsProcessed"`
}

// WalkForwardWindow is a train/test index pair over a bar series.
// Indices are half-open: bars[TrainStart:TrainEnd] and
// bars[TestStart:TestEnd], with TestStart == TrainEnd.
type WalkForwardWindow struct {
	TrainStart int `json:"trainStart"`
	TrainEnd   int `json:"trainEnd"`
	TestStart  int `json:"testStart"`
	TestEnd    int `json:"testEnd"`
}

// SweepEntry pairs one parameter set with its run outcome. Failed runs
// are recorded alongside successful ones, never dropped.
type SweepEntry struct {
	Params  ParameterSet `json:"params"`
	Metrics RiskMetrics  `json:"metrics"`
	Score   float64      `json:"score"`
	Err     string       `json:"error,omitempty"`
	Failed  bool         `json:"failed"`
}

// SweepReport is the ranked outcome of a parameter sweep.
type SweepReport struct {
	Objective string        `json:"objective"`
	Entries   []SweepEntry  `json:"entries"`
	Duration  time.Duration `json:"duration"`
}

// WalkForwardEntry is the outcome of one walk-forward window.
type WalkForwardEntry struct {
	Window       WalkForwardWindow `json:"window"`
	Params       ParameterSet      `json:"params,omitempty"`
	TrainMetrics RiskMetrics       `json:"trainMetrics"`
	TestMetrics  RiskMetrics       `json:"testMetrics"`
	Score        float64           `json:"score"`
	Err          string            `json:"error,omitempty"`
	Failed       bool              `json:"failed"`
}

// WalkForwardSummary aggregates test-range metrics across windows.
type WalkForwardSummary struct {
	Windows        int             `json:"windows"`
	FailedWindows  int             `json:"failedWindows"`
	AvgReturn      decimal.Decimal `json:"avgReturn"`
	WorstReturn    decimal.Decimal `json:"worstReturn"`
	AvgMaxDrawdown decimal.Decimal `json:"avgMaxDrawdown"`
	AvgSharpe      decimal.Decimal `json:"avgSharpe"`
	AvgSortino     decimal.Decimal `json:"avgSortino"`
	Efficiency     decimal.Decimal `json:"efficiency"` // avg test return / avg train return, clamped to [0,2]
}

// WalkForwardReport is the full walk-forward validation output.
type WalkForwardReport struct {
	Objective string             `json:"objective"`
	Entries   []WalkForwardEntry `json:"entries"`
	Summary   WalkForwardSummary `json:"summary"`
	Duration  time.Duration      `json:"duration"`
}

// MonteCarloResult summarizes resampled trade sequences.
type MonteCarloResult struct {
	Iterations      int             `json:"iterations"`
	MedianReturn    decimal.Decimal `json:"medianReturn"`
	P5Return        decimal.Decimal `json:"p5Return"`
	P95Return       decimal.Decimal `json:"p95Return"`
	ProbabilityRuin decimal.Decimal `json:"probabilityRuin"`
	MaxDrawdownP95  decimal.Decimal `json:"maxDrawdownP95"`
}
