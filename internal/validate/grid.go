// Package validate answers whether a strategy's performance survives
// out-of-sample evaluation: parameter sweeps, walk-forward windows, and
// Monte Carlo trade resampling.
package validate

import (
	"fmt"
	"sort"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Objective scores a metric set for ranking. Higher is better.
type Objective func(types.RiskMetrics) float64

// ObjectiveFunc resolves an objective by name.
func ObjectiveFunc(name string) (Objective, error) {
	switch name {
	case "", "sharpe":
		return func(m types.RiskMetrics) float64 { return m.SharpeRatio.InexactFloat64() }, nil
	case "sortino":
		return func(m types.RiskMetrics) float64 { return m.SortinoRatio.InexactFloat64() }, nil
	case "total_return":
		return func(m types.RiskMetrics) float64 { return m.TotalReturn.InexactFloat64() }, nil
	default:
		return nil, fmt.Errorf("unknown objective %q", name)
	}
}

// Expand produces the cartesian product of the grid. Keys are iterated
// in sorted order so the output is deterministic: the same grid always
// yields the same parameter sets in the same positions.
func Expand(grid map[string][]float64) []types.ParameterSet {
	if len(grid) == 0 {
		return nil
	}
	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := []types.ParameterSet{{}}
	for _, k := range keys {
		next := make([]types.ParameterSet, 0, len(sets)*len(grid[k]))
		for _, base := range sets {
			for _, v := range grid[k] {
				ps := base.Clone()
				ps[k] = v
				next = append(next, ps)
			}
		}
		sets = next
	}
	return sets
}

// sane reports whether a parameter set passes cheap structural checks
// worth filtering before spending a simulation on it.
func sane(ps types.ParameterSet) bool {
	fast, hasFast := ps["fast_period"]
	slow, hasSlow := ps["slow_period"]
	if hasFast && hasSlow && fast >= slow {
		return false
	}
	return true
}

// filterSane drops structurally invalid sets. Used by the walk-forward
// train search where an invalid combo is wasted work; the sweep keeps
// them so the failure is visible in the report.
func filterSane(sets []types.ParameterSet) []types.ParameterSet {
	out := sets[:0:0]
	for _, ps := range sets {
		if sane(ps) {
			out = append(out, ps)
		}
	}
	return out
}
