package validate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/analytics"
	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/internal/sim"
	"github.com/atlas-desktop/strategy-sim/internal/strategy"
	"github.com/atlas-desktop/strategy-sim/internal/workers"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Validator runs walk-forward analysis: rolling train/test windows
// where parameters are chosen on the train range and evaluated on the
// following unseen test range. Test metrics are computed strictly from
// test-range bars; train data only warms up indicators.
type Validator struct {
	logger *zap.Logger
	runner *sim.Runner
}

// NewValidator creates a walk-forward validator.
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger, runner: sim.New(logger)}
}

// Windows produces the rolling train/test index pairs for a series of
// total bars. Indices are half-open and the test range starts where the
// train range ends.
func Windows(total, train, test, step int) ([]types.WalkForwardWindow, error) {
	if train <= 0 || test <= 0 || step <= 0 {
		return nil, fmt.Errorf("window sizes must be positive: train=%d test=%d step=%d", train, test, step)
	}
	if train+test > total {
		return nil, fmt.Errorf("series of %d bars too short for train=%d + test=%d", total, train, test)
	}
	var windows []types.WalkForwardWindow
	for start := 0; start+train+test <= total; start += step {
		windows = append(windows, types.WalkForwardWindow{
			TrainStart: start,
			TrainEnd:   start + train,
			TestStart:  start + train,
			TestEnd:    start + train + test,
		})
	}
	return windows, nil
}

// Run evaluates all windows, in parallel across windows. When the
// config carries a grid, each window searches it sequentially on its
// train range and evaluates only the best combination out of sample.
func (v *Validator) Run(ctx context.Context, ser *series.Series, base types.SimConfig, cfg types.WalkForwardConfig) (*types.WalkForwardReport, error) {
	windows, err := Windows(ser.Len(), cfg.TrainBars, cfg.TestBars, cfg.StepBars)
	if err != nil {
		return nil, err
	}
	objective, err := ObjectiveFunc(cfg.Objective)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	v.logger.Info("starting walk-forward validation",
		zap.Int("windows", len(windows)),
		zap.Int("train_bars", cfg.TrainBars),
		zap.Int("test_bars", cfg.TestBars),
		zap.Int("step_bars", cfg.StepBars),
	)

	entries := make([]types.WalkForwardEntry, len(windows))
	pool := workers.NewPool(v.logger, cfg.Workers)
	pool.Start()
	for i, w := range windows {
		i, w := i, w
		pool.Submit(func(context.Context) {
			entries[i] = v.evaluateWindow(ctx, ser, base, cfg, w, objective)
		})
	}
	pool.Drain()

	report := &types.WalkForwardReport{
		Objective: cfg.Objective,
		Entries:   entries,
		Summary:   summarize(entries),
		Duration:  time.Since(started),
	}
	v.logger.Info("walk-forward validation finished",
		zap.Duration("duration", report.Duration),
		zap.Int("failed_windows", report.Summary.FailedWindows),
		zap.String("efficiency", report.Summary.Efficiency.String()),
	)
	return report, nil
}

func (v *Validator) evaluateWindow(ctx context.Context, ser *series.Series, base types.SimConfig, cfg types.WalkForwardConfig, w types.WalkForwardWindow, objective Objective) types.WalkForwardEntry {
	entry := types.WalkForwardEntry{Window: w}

	select {
	case <-ctx.Done():
		entry.Failed = true
		entry.Err = ctx.Err().Error()
		return entry
	default:
	}

	chosen := base
	if len(cfg.Grid) > 0 {
		best, trainMetrics, err := v.searchTrain(ctx, ser, base, cfg, w, objective)
		if err != nil {
			entry.Failed = true
			entry.Err = err.Error()
			return entry
		}
		chosen = best.cfg
		entry.Params = best.params
		entry.TrainMetrics = trainMetrics
	} else {
		trainSlice, err := ser.Slice(w.TrainStart, w.TrainEnd)
		if err != nil {
			entry.Failed = true
			entry.Err = err.Error()
			return entry
		}
		res, err := v.runner.Run(context.Background(), trainSlice, base)
		if err != nil {
			entry.Failed = true
			entry.Err = err.Error()
			return entry
		}
		entry.TrainMetrics = res.Metrics
	}

	testMetrics, err := v.evaluateTest(ser, chosen, w)
	if err != nil {
		entry.Failed = true
		entry.Err = err.Error()
		return entry
	}
	entry.TestMetrics = testMetrics
	entry.Score = objective(testMetrics)
	return entry
}

type candidate struct {
	params types.ParameterSet
	cfg    types.SimConfig
}

// searchTrain grid-searches the window's train range. Candidates run
// sequentially inside the window's worker slot; spawning another pool
// here could deadlock against the window-level one.
func (v *Validator) searchTrain(ctx context.Context, ser *series.Series, base types.SimConfig, cfg types.WalkForwardConfig, w types.WalkForwardWindow, objective Objective) (candidate, types.RiskMetrics, error) {
	sets := filterSane(Expand(cfg.Grid))
	if len(sets) == 0 {
		return candidate{}, types.RiskMetrics{}, fmt.Errorf("no viable grid combinations")
	}
	trainSlice, err := ser.Slice(w.TrainStart, w.TrainEnd)
	if err != nil {
		return candidate{}, types.RiskMetrics{}, err
	}

	var best candidate
	var bestMetrics types.RiskMetrics
	bestScore := math.Inf(-1)
	found := false
	for _, ps := range sets {
		select {
		case <-ctx.Done():
			return candidate{}, types.RiskMetrics{}, ctx.Err()
		default:
		}
		runCfg, err := base.WithParams(ps)
		if err != nil {
			return candidate{}, types.RiskMetrics{}, err
		}
		res, err := v.runner.Run(context.Background(), trainSlice, runCfg)
		if err != nil {
			v.logger.Debug("train candidate failed",
				zap.Any("params", ps),
				zap.Error(err),
			)
			continue
		}
		if score := objective(res.Metrics); !found || score > bestScore {
			found = true
			bestScore = score
			best = candidate{params: ps.Clone(), cfg: runCfg}
			bestMetrics = res.Metrics
		}
	}
	if !found {
		return candidate{}, types.RiskMetrics{}, fmt.Errorf("all %d train candidates failed", len(sets))
	}
	return best, bestMetrics, nil
}

// evaluateTest runs the chosen config over the test range plus a warmup
// prefix of earlier bars, then computes metrics from the test range
// only. The warmup prefix primes indicators; its equity and trades are
// discarded.
func (v *Validator) evaluateTest(ser *series.Series, cfg types.SimConfig, w types.WalkForwardWindow) (types.RiskMetrics, error) {
	start := w.TestStart - strategy.WarmupBars(cfg.Strategy)
	if start < 0 {
		start = 0
	}
	testSlice, err := ser.Slice(start, w.TestEnd)
	if err != nil {
		return types.RiskMetrics{}, err
	}
	res, err := v.runner.Run(context.Background(), testSlice, cfg)
	if err != nil {
		return types.RiskMetrics{}, err
	}

	boundary := ser.At(w.TestStart).Timestamp
	var curve []types.EquityPoint
	for _, pt := range res.EquityCurve {
		if !pt.Timestamp.Before(boundary) {
			curve = append(curve, pt)
		}
	}
	if len(curve) == 0 {
		return types.RiskMetrics{}, fmt.Errorf("no equity points in test range")
	}
	var trades []types.Trade
	for _, tr := range res.Trades {
		if !tr.ExitTime.Before(boundary) {
			trades = append(trades, tr)
		}
	}
	return analytics.Compute(trades, curve, curve[0].TotalEquity, cfg.BarsPerYear), nil
}

func summarize(entries []types.WalkForwardEntry) types.WalkForwardSummary {
	s := types.WalkForwardSummary{Windows: len(entries)}

	var testReturns, trainReturns, drawdowns, sharpes, sortinos []decimal.Decimal
	for _, e := range entries {
		if e.Failed {
			s.FailedWindows++
			continue
		}
		testReturns = append(testReturns, e.TestMetrics.TotalReturn)
		trainReturns = append(trainReturns, e.TrainMetrics.TotalReturn)
		drawdowns = append(drawdowns, e.TestMetrics.MaxDrawdown)
		sharpes = append(sharpes, e.TestMetrics.SharpeRatio)
		sortinos = append(sortinos, e.TestMetrics.SortinoRatio)
	}
	if len(testReturns) == 0 {
		return s
	}

	s.AvgReturn = avg(testReturns)
	s.WorstReturn = testReturns[0]
	for _, r := range testReturns[1:] {
		if r.LessThan(s.WorstReturn) {
			s.WorstReturn = r
		}
	}
	s.AvgMaxDrawdown = avg(drawdowns)
	s.AvgSharpe = avg(sharpes)
	s.AvgSortino = avg(sortinos)
	s.Efficiency = efficiency(s.AvgReturn, avg(trainReturns))
	return s
}

func avg(xs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

// efficiency is the ratio of average out-of-sample return to average
// in-sample return, clamped to [0, 2]. Values near 1 mean performance
// carried over; near 0 means the train-range edge evaporated.
func efficiency(avgTest, avgTrain decimal.Decimal) decimal.Decimal {
	if avgTrain.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	ratio := avgTest.Div(avgTrain)
	switch {
	case ratio.IsNegative():
		return decimal.Zero
	case ratio.GreaterThan(decimal.NewFromInt(2)):
		return decimal.NewFromInt(2)
	default:
		return ratio
	}
}
