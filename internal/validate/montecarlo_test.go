package validate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/validate"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

func mcTrades(pnls ...float64) []types.Trade {
	out := make([]types.Trade, len(pnls))
	for i, p := range pnls {
		out[i] = types.Trade{PnL: decimal.NewFromFloat(p)}
	}
	return out
}

func TestMonteCarloDeterministicPerSeed(t *testing.T) {
	trades := mcTrades(100, -50, 200, -30, 80, -120, 40)
	capital := decimal.NewFromInt(10000)
	cfg := types.MonteCarloConfig{
		Iterations:   500,
		Seed:         42,
		RuinFraction: decimal.NewFromFloat(0.5),
	}

	first, err := validate.MonteCarlo(zap.NewNop(), trades, capital, cfg)
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	second, err := validate.MonteCarlo(zap.NewNop(), trades, capital, cfg)
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	if !first.MedianReturn.Equal(second.MedianReturn) ||
		!first.ProbabilityRuin.Equal(second.ProbabilityRuin) ||
		!first.MaxDrawdownP95.Equal(second.MaxDrawdownP95) {
		t.Fatalf("same seed produced different results:\n%+v\n%+v", first, second)
	}

	cfg.Seed = 43
	third, err := validate.MonteCarlo(zap.NewNop(), trades, capital, cfg)
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	if first.MedianReturn.Equal(third.MedianReturn) &&
		first.MaxDrawdownP95.Equal(third.MaxDrawdownP95) {
		t.Fatal("different seeds produced identical results")
	}
}

func TestMonteCarloBounds(t *testing.T) {
	trades := mcTrades(100, -200, 50, -80, 300)
	capital := decimal.NewFromInt(1000)
	cfg := types.MonteCarloConfig{
		Iterations:   300,
		Seed:         7,
		RuinFraction: decimal.NewFromFloat(0.8),
	}
	res, err := validate.MonteCarlo(zap.NewNop(), trades, capital, cfg)
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	one := decimal.NewFromInt(1)
	if res.ProbabilityRuin.IsNegative() || res.ProbabilityRuin.GreaterThan(one) {
		t.Fatalf("p(ruin) = %s, want within [0, 1]", res.ProbabilityRuin)
	}
	if res.MaxDrawdownP95.IsNegative() || res.MaxDrawdownP95.GreaterThan(one) {
		t.Fatalf("p95 drawdown = %s, want within [0, 1]", res.MaxDrawdownP95)
	}
	if res.P5Return.GreaterThan(res.MedianReturn) || res.MedianReturn.GreaterThan(res.P95Return) {
		t.Fatalf("percentiles out of order: p5=%s median=%s p95=%s",
			res.P5Return, res.MedianReturn, res.P95Return)
	}
}

func TestMonteCarloAllWinners(t *testing.T) {
	trades := mcTrades(10, 20, 30)
	res, err := validate.MonteCarlo(zap.NewNop(), trades, decimal.NewFromInt(1000), types.MonteCarloConfig{
		Iterations:   100,
		Seed:         1,
		RuinFraction: decimal.NewFromFloat(0.5),
	})
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	if !res.ProbabilityRuin.IsZero() {
		t.Fatalf("p(ruin) = %s, want 0 with only winning trades", res.ProbabilityRuin)
	}
	if !res.P5Return.IsPositive() {
		t.Fatalf("p5 return = %s, want positive", res.P5Return)
	}
}

func TestMonteCarloInvalidInput(t *testing.T) {
	capital := decimal.NewFromInt(1000)
	cfg := types.MonteCarloConfig{Iterations: 100, Seed: 1}

	if _, err := validate.MonteCarlo(zap.NewNop(), nil, capital, cfg); err == nil {
		t.Fatal("expected error for empty trade log")
	}
	cfg.Iterations = 0
	if _, err := validate.MonteCarlo(zap.NewNop(), mcTrades(10), capital, cfg); err == nil {
		t.Fatal("expected error for zero iterations")
	}
}
