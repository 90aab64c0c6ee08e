package validate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/obs"
	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/internal/sim"
	"github.com/atlas-desktop/strategy-sim/internal/workers"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Sweeper runs a parameter grid over one series in parallel. Each
// combination gets a fresh simulation; a failed run becomes a failed
// entry in the report instead of aborting the batch.
type Sweeper struct {
	logger *zap.Logger
	runner *sim.Runner
}

// NewSweeper creates a sweeper.
func NewSweeper(logger *zap.Logger) *Sweeper {
	return &Sweeper{logger: logger, runner: sim.New(logger)}
}

// Run sweeps the grid and returns entries ranked by the objective,
// failures last. onProgress, when non-nil, is called after each
// completed combination. Cancelling the context skips combinations not
// yet started; in-flight simulations run to completion so the report
// never contains half-finished entries.
func (s *Sweeper) Run(ctx context.Context, ser *series.Series, base types.SimConfig, cfg types.SweepConfig, onProgress func(done, total int)) (*types.SweepReport, error) {
	sets := Expand(cfg.Grid)
	if len(sets) == 0 {
		return nil, fmt.Errorf("sweep grid is empty")
	}
	objective, err := ObjectiveFunc(cfg.Objective)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s.logger.Info("starting parameter sweep",
		zap.Int("combinations", len(sets)),
		zap.String("objective", cfg.Objective),
		zap.Int("workers", cfg.Workers),
	)

	entries := make([]types.SweepEntry, len(sets))
	var mu sync.Mutex
	var done int

	pool := workers.NewPool(s.logger, cfg.Workers)
	pool.Start()
	for i, ps := range sets {
		i, ps := i, ps
		pool.Submit(func(context.Context) {
			entry := s.runOne(ctx, ser, base, ps, objective)
			mu.Lock()
			entries[i] = entry
			done++
			d := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(d, len(sets))
			}
		})
	}
	pool.Drain()

	rank(entries)
	return &types.SweepReport{
		Objective: cfg.Objective,
		Entries:   entries,
		Duration:  time.Since(started),
	}, nil
}

func (s *Sweeper) runOne(ctx context.Context, ser *series.Series, base types.SimConfig, ps types.ParameterSet, objective Objective) types.SweepEntry {
	entry := types.SweepEntry{Params: ps.Clone()}

	select {
	case <-ctx.Done():
		entry.Failed = true
		entry.Err = ctx.Err().Error()
		obs.SweepEntries.WithLabelValues("skipped").Inc()
		return entry
	default:
	}

	cfg, err := base.WithParams(ps)
	if err != nil {
		entry.Failed = true
		entry.Err = err.Error()
		obs.SweepEntries.WithLabelValues("failed").Inc()
		return entry
	}
	// Once started, a run completes even if the batch is cancelled.
	res, err := s.runner.Run(context.Background(), ser, cfg)
	if err != nil {
		entry.Failed = true
		entry.Err = err.Error()
		obs.SweepEntries.WithLabelValues("failed").Inc()
		return entry
	}
	entry.Metrics = res.Metrics
	entry.Score = objective(res.Metrics)
	obs.SweepEntries.WithLabelValues("ok").Inc()
	return entry
}

// rank orders entries by score descending with failures last. The sort
// is stable so equal scores keep grid-expansion order and the ranking
// stays deterministic.
func rank(entries []types.SweepEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Failed != entries[j].Failed {
			return !entries[i].Failed
		}
		return entries[i].Score > entries[j].Score
	})
}
