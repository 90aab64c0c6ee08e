package validate

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// MonteCarlo resamples the trade log with replacement to estimate how
// sensitive the result is to trade ordering and selection. The RNG is
// seeded from the config, never shared, so a batch reproduces exactly.
func MonteCarlo(logger *zap.Logger, trades []types.Trade, initialCapital decimal.Decimal, cfg types.MonteCarloConfig) (*types.MonteCarloResult, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("monte carlo needs at least one closed trade")
	}
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", cfg.Iterations)
	}
	if !initialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %s", initialCapital)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ruinLevel := initialCapital.Mul(cfg.RuinFraction)

	returns := make([]float64, cfg.Iterations)
	drawdowns := make([]float64, cfg.Iterations)
	ruined := 0

	for it := 0; it < cfg.Iterations; it++ {
		equity := initialCapital
		peak := initialCapital
		maxDD := decimal.Zero
		hitRuin := false
		for range trades {
			pick := trades[rng.Intn(len(trades))]
			equity = equity.Add(pick.PnL)
			if equity.GreaterThan(peak) {
				peak = equity
			}
			if peak.IsPositive() {
				if dd := peak.Sub(equity).Div(peak); dd.GreaterThan(maxDD) {
					maxDD = dd
				}
			}
			if equity.LessThan(ruinLevel) {
				hitRuin = true
			}
		}
		returns[it] = equity.Sub(initialCapital).Div(initialCapital).InexactFloat64()
		drawdowns[it] = maxDD.InexactFloat64()
		if hitRuin {
			ruined++
		}
	}

	sort.Float64s(returns)
	sort.Float64s(drawdowns)
	result := &types.MonteCarloResult{
		Iterations:      cfg.Iterations,
		MedianReturn:    decimal.NewFromFloat(percentile(returns, 0.5)),
		P5Return:        decimal.NewFromFloat(percentile(returns, 0.05)),
		P95Return:       decimal.NewFromFloat(percentile(returns, 0.95)),
		ProbabilityRuin: decimal.NewFromInt(int64(ruined)).Div(decimal.NewFromInt(int64(cfg.Iterations))),
		MaxDrawdownP95:  decimal.NewFromFloat(percentile(drawdowns, 0.95)),
	}
	logger.Info("monte carlo finished",
		zap.Int("iterations", cfg.Iterations),
		zap.Int64("seed", cfg.Seed),
		zap.String("median_return", result.MedianReturn.String()),
		zap.String("p_ruin", result.ProbabilityRuin.String()),
	)
	return result, nil
}

// percentile reads the q-th quantile from an already-sorted slice using
// nearest-rank interpolation.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
