// Package analytics derives risk and performance metrics from a
// completed run's trade log and equity curve. Metrics are computed
// fresh from inputs every time; nothing here mutates run state.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Compute derives the full metric set. Ratio math runs on float64
// bar-to-bar returns; equity and drawdown figures stay in decimal.
// barsPerYear annualizes Sharpe and Sortino for the bar frequency.
func Compute(trades []types.Trade, curve []types.EquityPoint, initialCapital decimal.Decimal, barsPerYear int) types.RiskMetrics {
	m := types.RiskMetrics{}
	if len(curve) == 0 {
		return m
	}

	final := curve[len(curve)-1].TotalEquity
	if initialCapital.IsPositive() {
		m.TotalReturn = final.Sub(initialCapital).Div(initialCapital)
	}

	m.MaxDrawdown, m.MaxDrawdownAbs = maxDrawdown(curve)

	returns := barReturns(curve)
	annualizer := math.Sqrt(float64(barsPerYear))
	if sd := stdDev(returns); sd > 0 {
		m.SharpeRatio = decimal.NewFromFloat(mean(returns) / sd * annualizer)
	}
	if dd := downsideDeviation(returns); dd > 0 {
		m.SortinoRatio = decimal.NewFromFloat(mean(returns) / dd * annualizer)
	}

	m.TradesClosed = len(trades)
	for _, tr := range trades {
		switch {
		case tr.PnL.IsPositive():
			m.WinningTrades++
		case tr.PnL.IsNegative():
			m.LosingTrades++
		}
	}
	if m.TradesClosed > 0 {
		m.WinRateDefined = true
		m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).
			Div(decimal.NewFromInt(int64(m.TradesClosed)))
	}
	return m
}

// maxDrawdown walks the curve with a running peak and returns the
// worst peak-to-trough decline as a fraction of the peak and as an
// absolute equity amount.
func maxDrawdown(curve []types.EquityPoint) (frac, abs decimal.Decimal) {
	peak := curve[0].TotalEquity
	for _, pt := range curve {
		if pt.TotalEquity.GreaterThan(peak) {
			peak = pt.TotalEquity
		}
		decline := peak.Sub(pt.TotalEquity)
		if decline.GreaterThan(abs) {
			abs = decline
		}
		if peak.IsPositive() {
			if f := decline.Div(peak); f.GreaterThan(frac) {
				frac = f
			}
		}
	}
	return frac, abs
}

// barReturns converts the equity curve into simple bar-to-bar returns.
// Points following a non-positive equity are skipped rather than
// producing a meaningless ratio.
func barReturns(curve []types.EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalEquity
		if !prev.IsPositive() {
			continue
		}
		r := curve[i].TotalEquity.Sub(prev).Div(prev)
		returns = append(returns, r.InexactFloat64())
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - mu
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

// downsideDeviation measures dispersion of negative returns only, the
// denominator of the Sortino ratio.
func downsideDeviation(xs []float64) float64 {
	var sq float64
	var n int
	for _, x := range xs {
		if x < 0 {
			sq += x * x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sq / float64(n))
}
