// Package sim runs the bar-by-bar simulation loop. The loop is
// strictly sequential with a fixed per-bar ordering: pending orders
// fill at the bar open, then the strategy sees the bar, then any new
// intent is queued for the next bar. That ordering is what keeps the
// engine leakage-free.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/analytics"
	"github.com/atlas-desktop/strategy-sim/internal/broker"
	"github.com/atlas-desktop/strategy-sim/internal/obs"
	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/internal/strategy"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// State is the run lifecycle phase.
type State string

const (
	StateAwaitingHistory State = "awaiting_history"
	StateRunning         State = "running"
	StateFinalizing      State = "finalizing"
)

// Runner executes simulation runs. It holds no per-run state, so one
// runner can serve concurrent runs.
type Runner struct {
	logger *zap.Logger
}

// New creates a runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run replays the series through a fresh strategy engine and paper
// broker and returns the full result. Cancelling the context stops the
// run between bars; partial results are discarded.
func (r *Runner) Run(ctx context.Context, s *series.Series, cfg types.SimConfig) (*types.Result, error) {
	if err := cfg.Validate(); err != nil {
		obs.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New().String()
	started := time.Now()
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("starting simulation",
		zap.String("symbol", cfg.Symbol),
		zap.Int("bars", s.Len()),
		zap.String("initial_capital", cfg.InitialCapital.String()),
	)

	engine := strategy.NewEngine(logger, cfg.Strategy)
	brk := broker.NewPaper(logger, cfg)

	state := StateAwaitingHistory
	curve := make([]types.EquityPoint, 0, s.Len())
	last := s.Len() - 1

	for i := 0; i <= last; i++ {
		select {
		case <-ctx.Done():
			obs.RunsTotal.WithLabelValues("cancelled").Inc()
			logger.Warn("simulation cancelled", zap.Int("at_bar", i))
			return nil, ctx.Err()
		default:
		}

		bar := s.At(i)
		pt := brk.MarkToMarket(bar)

		if i == last {
			state = StateFinalizing
			brk.CloseAll(bar.Timestamp, bar.Close)
			cash := brk.Cash()
			curve = append(curve, types.EquityPoint{
				Timestamp:   bar.Timestamp,
				Cash:        cash,
				TotalEquity: cash,
			})
			break
		}
		curve = append(curve, pt)

		_, intent := engine.Evaluate(bar, pt.TotalEquity)
		if state == StateAwaitingHistory && i+1 >= engine.Warmup() {
			state = StateRunning
		}
		if intent != nil {
			res := brk.SubmitOrder(*intent)
			logger.Debug("intent submitted",
				zap.String("order_id", res.OrderID),
				zap.String("direction", string(intent.Direction)),
				zap.String("target_size", intent.TargetSize.String()),
			)
		}
	}

	trades := brk.Trades()
	metrics := analytics.Compute(trades, curve, cfg.InitialCapital, cfg.BarsPerYear)
	duration := time.Since(started)

	obs.RunsTotal.WithLabelValues("ok").Inc()
	obs.RunDuration.Observe(duration.Seconds())
	obs.BarsProcessed.Add(float64(s.Len()))
	logger.Info("simulation finished",
		zap.Duration("duration", duration),
		zap.Int("trades", len(trades)),
		zap.String("total_return", metrics.TotalReturn.String()),
		zap.String("final_state", string(state)),
	)

	return &types.Result{
		ID:            runID,
		Config:        cfg,
		Trades:        trades,
		EquityCurve:   curve,
		Metrics:       metrics,
		StartedAt:     started,
		Duration:      duration,
		BarsProcessed: s.Len(),
	}, nil
}
