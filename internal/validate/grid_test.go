package validate_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/atlas-desktop/strategy-sim/internal/validate"
)

func TestExpandCartesianProduct(t *testing.T) {
	grid := map[string][]float64{
		"fast_period": {3, 5},
		"slow_period": {10, 20, 30},
		"norm_window": {50},
	}
	sets := validate.Expand(grid)
	if len(sets) != 6 {
		t.Fatalf("sets = %d, want 2*3*1 = 6", len(sets))
	}
	seen := map[string]bool{}
	for _, ps := range sets {
		key := ""
		for _, k := range []string{"fast_period", "slow_period", "norm_window"} {
			if _, ok := ps[k]; !ok {
				t.Fatalf("set %v missing key %s", ps, k)
			}
			key += fmt.Sprintf("%s=%v/", k, ps[k])
		}
		if seen[key] {
			t.Fatalf("duplicate combination %v", ps)
		}
		seen[key] = true
	}
}

func TestExpandDeterministic(t *testing.T) {
	grid := map[string][]float64{
		"fast_period":     {3, 5, 8},
		"slow_period":     {10, 20},
		"enter_threshold": {0.3, 0.5},
	}
	first := validate.Expand(grid)
	second := validate.Expand(grid)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expansion order differs between calls")
	}
}

func TestExpandEmptyGrid(t *testing.T) {
	if sets := validate.Expand(nil); sets != nil {
		t.Fatalf("sets = %v, want nil for empty grid", sets)
	}
	grid := map[string][]float64{"fast_period": {}}
	if sets := validate.Expand(grid); sets != nil {
		t.Fatalf("sets = %v, want nil when a key has no values", sets)
	}
}

func TestObjectiveFunc(t *testing.T) {
	for _, name := range []string{"", "sharpe", "sortino", "total_return"} {
		if _, err := validate.ObjectiveFunc(name); err != nil {
			t.Fatalf("objective %q: %v", name, err)
		}
	}
	if _, err := validate.ObjectiveFunc("calmar"); err == nil {
		t.Fatal("expected error for unknown objective")
	}
}
