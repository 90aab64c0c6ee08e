package strategy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/strategy"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() types.StrategyConfig {
	return types.StrategyConfig{
		FastPeriod:     3,
		SlowPeriod:     6,
		SignalPeriod:   3,
		NormWindow:     5,
		EnterThreshold: decimal.NewFromFloat(0.5),
		RiskPerTrade:   decimal.NewFromFloat(0.01),
		StopLossPct:    decimal.NewFromFloat(0.02),
		MaxLeverage:    decimal.NewFromInt(2),
	}
}

func barAt(i int, price float64) types.Bar {
	p := decimal.NewFromFloat(price)
	return types.Bar{
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      p, High: p, Low: p, Close: p,
		Volume: decimal.NewFromInt(1000),
	}
}

func TestEngineFlatBeforeWarmup(t *testing.T) {
	e := strategy.NewEngine(zap.NewNop(), testConfig())
	equity := decimal.NewFromInt(10000)

	for i := 0; i < e.Warmup()-1; i++ {
		sig, intent := e.Evaluate(barAt(i, 100+float64(i)), equity)
		if sig.Direction != types.DirectionFlat {
			t.Fatalf("bar %d: direction = %s, want flat during warmup", i, sig.Direction)
		}
		if intent != nil {
			t.Fatalf("bar %d: unexpected intent during warmup", i)
		}
	}
}

func TestEngineRisingSeriesGoesLongOnce(t *testing.T) {
	e := strategy.NewEngine(zap.NewNop(), testConfig())
	equity := decimal.NewFromInt(10000)

	var intents []*types.OrderIntent
	for i := 0; i < 60; i++ {
		_, intent := e.Evaluate(barAt(i, 100+float64(i)), equity)
		if intent != nil {
			intents = append(intents, intent)
		}
	}
	if len(intents) != 1 {
		t.Fatalf("intents = %d, want exactly 1 for a monotone series", len(intents))
	}
	if intents[0].Direction != types.DirectionLong {
		t.Fatalf("direction = %s, want long", intents[0].Direction)
	}
	if e.Direction() != types.DirectionLong {
		t.Fatalf("held direction = %s, want long", e.Direction())
	}
}

func TestEngineFlatSeriesStaysFlat(t *testing.T) {
	e := strategy.NewEngine(zap.NewNop(), testConfig())
	equity := decimal.NewFromInt(10000)

	for i := 0; i < 60; i++ {
		sig, intent := e.Evaluate(barAt(i, 100), equity)
		if intent != nil {
			t.Fatalf("bar %d: unexpected intent on a flat series", i)
		}
		if !sig.Value.IsZero() {
			t.Fatalf("bar %d: normalized = %s, want 0 for degenerate window", i, sig.Value)
		}
	}
	if e.Direction() != types.DirectionFlat {
		t.Fatalf("held direction = %s, want flat", e.Direction())
	}
}

func TestEngineOneIntentPerFlip(t *testing.T) {
	e := strategy.NewEngine(zap.NewNop(), testConfig())
	equity := decimal.NewFromInt(10000)

	var intents []*types.OrderIntent
	bar := 0
	for i := 0; i < 40; i++ {
		_, intent := e.Evaluate(barAt(bar, 100+float64(i)), equity)
		bar++
		if intent != nil {
			intents = append(intents, intent)
		}
	}
	for i := 0; i < 40; i++ {
		_, intent := e.Evaluate(barAt(bar, 140-float64(i)), equity)
		bar++
		if intent != nil {
			intents = append(intents, intent)
		}
	}
	if len(intents) != 2 {
		t.Fatalf("intents = %d, want one per direction change", len(intents))
	}
	if intents[0].Direction != types.DirectionLong || intents[1].Direction != types.DirectionShort {
		t.Fatalf("directions = %s, %s, want long then short",
			intents[0].Direction, intents[1].Direction)
	}
}

func TestEngineSizesFromRiskAndStop(t *testing.T) {
	cfg := testConfig()
	e := strategy.NewEngine(zap.NewNop(), cfg)
	equity := decimal.NewFromInt(10000)

	var intent *types.OrderIntent
	var flipPrice decimal.Decimal
	for i := 0; i < 60 && intent == nil; i++ {
		b := barAt(i, 100+float64(i))
		_, intent = e.Evaluate(b, equity)
		flipPrice = b.Close
	}
	if intent == nil {
		t.Fatal("no intent emitted")
	}
	want := equity.Mul(cfg.RiskPerTrade).Div(flipPrice.Mul(cfg.StopLossPct))
	if !intent.TargetSize.Equal(want) {
		t.Fatalf("size = %s, want %s", intent.TargetSize, want)
	}
}

func TestEngineClampsToMaxLeverage(t *testing.T) {
	cfg := testConfig()
	// A tight stop would size far beyond 2x leverage.
	cfg.StopLossPct = decimal.NewFromFloat(0.001)
	e := strategy.NewEngine(zap.NewNop(), cfg)
	equity := decimal.NewFromInt(10000)

	var intent *types.OrderIntent
	var flipPrice decimal.Decimal
	for i := 0; i < 60 && intent == nil; i++ {
		b := barAt(i, 100+float64(i))
		_, intent = e.Evaluate(b, equity)
		flipPrice = b.Close
	}
	if intent == nil {
		t.Fatal("no intent emitted")
	}
	want := equity.Mul(cfg.MaxLeverage).Div(flipPrice)
	if !intent.TargetSize.Equal(want) {
		t.Fatalf("size = %s, want leverage cap %s", intent.TargetSize, want)
	}
}

func TestEngineResetReplays(t *testing.T) {
	e := strategy.NewEngine(zap.NewNop(), testConfig())
	equity := decimal.NewFromInt(10000)

	run := func() []decimal.Decimal {
		var values []decimal.Decimal
		for i := 0; i < 30; i++ {
			sig, _ := e.Evaluate(barAt(i, 100+float64(i)), equity)
			values = append(values, sig.Value)
		}
		return values
	}

	first := run()
	e.Reset()
	second := run()
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("bar %d: value %s after reset, want %s", i, second[i], first[i])
		}
	}
}
