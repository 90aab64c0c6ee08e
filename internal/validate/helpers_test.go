package validate_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func mkSeries(t *testing.T, prices []float64) *series.Series {
	t.Helper()
	bars := make([]types.Bar, len(prices))
	for i, price := range prices {
		p := decimal.NewFromFloat(price)
		bars[i] = types.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      p, High: p, Low: p, Close: p,
			Volume: decimal.NewFromInt(1000),
		}
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	return s
}

func risingPrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func decimalTwo() decimal.Decimal { return decimal.NewFromInt(2) }

func typesSweep(grid map[string][]float64) types.SweepConfig {
	return types.SweepConfig{Grid: grid, Objective: "sharpe", Workers: 2}
}

func baseConfig() types.SimConfig {
	return types.SimConfig{
		Symbol:         "TEST",
		InitialCapital: decimal.NewFromInt(10000),
		BarsPerYear:    8760,
		Strategy: types.StrategyConfig{
			FastPeriod:     3,
			SlowPeriod:     6,
			SignalPeriod:   3,
			NormWindow:     5,
			EnterThreshold: decimal.NewFromFloat(0.5),
			RiskPerTrade:   decimal.NewFromFloat(0.01),
			StopLossPct:    decimal.NewFromFloat(0.02),
			MaxLeverage:    decimal.NewFromInt(2),
		},
		Slippage:   types.SlippageConfig{Model: types.SlippageFixedBps},
		CashPolicy: types.CashPolicyScaleDown,
	}
}
