package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Factory builds a fresh broker funded with the given capital, with
// zero fees and zero slippage. Conformance runs need a clean instance
// per check.
type Factory func(initialCapital decimal.Decimal) Broker

// RunConformance exercises the behavioral contract every Broker
// implementation must satisfy. Implementations register it from their
// own test file.
func RunConformance(t *testing.T, newBroker Factory) {
	t.Helper()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int, price float64) types.Bar {
		p := decimal.NewFromFloat(price)
		return types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      p, High: p, Low: p, Close: p,
			Volume: decimal.NewFromInt(1000),
		}
	}

	t.Run("initial state", func(t *testing.T) {
		b := newBroker(decimal.NewFromInt(10000))
		if !b.Cash().Equal(decimal.NewFromInt(10000)) {
			t.Fatalf("cash = %s, want 10000", b.Cash())
		}
		if !b.Position().Size.IsZero() {
			t.Fatalf("position = %s, want flat", b.Position().Size)
		}
	})

	t.Run("equity identity", func(t *testing.T) {
		b := newBroker(decimal.NewFromInt(10000))
		b.MarkToMarket(bar(0, 100))
		b.SubmitOrder(types.OrderIntent{
			ID: "c1", Timestamp: bar(0, 100).Timestamp,
			Direction: types.DirectionLong, TargetSize: decimal.NewFromInt(10),
		})
		for i := 1; i < 5; i++ {
			pt := b.MarkToMarket(bar(i, 100+float64(i)))
			if !pt.TotalEquity.Equal(pt.Cash.Add(pt.PositionValue)) {
				t.Fatalf("bar %d: equity %s != cash %s + position %s",
					i, pt.TotalEquity, pt.Cash, pt.PositionValue)
			}
		}
	})

	t.Run("no same-bar fill", func(t *testing.T) {
		b := newBroker(decimal.NewFromInt(10000))
		first := bar(0, 100)
		b.MarkToMarket(first)
		b.SubmitOrder(types.OrderIntent{
			ID: "c2", Timestamp: first.Timestamp,
			Direction: types.DirectionLong, TargetSize: decimal.NewFromInt(10),
		})
		// Re-marking the same bar must not fill the intent.
		b.MarkToMarket(first)
		if !b.Position().Size.IsZero() {
			t.Fatalf("intent filled on its own bar, position = %s", b.Position().Size)
		}
		b.MarkToMarket(bar(1, 101))
		if got := b.Position().Size; !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("position after next bar = %s, want 10", got)
		}
	})

	t.Run("fill at next bar open", func(t *testing.T) {
		b := newBroker(decimal.NewFromInt(10000))
		b.MarkToMarket(bar(0, 100))
		b.SubmitOrder(types.OrderIntent{
			ID: "c3", Timestamp: bar(0, 100).Timestamp,
			Direction: types.DirectionLong, TargetSize: decimal.NewFromInt(10),
		})
		b.MarkToMarket(bar(1, 105))
		pos := b.Position()
		if !pos.AvgEntryPrice.Equal(decimal.NewFromInt(105)) {
			t.Fatalf("entry price = %s, want next bar open 105", pos.AvgEntryPrice)
		}
		// 10000 - 10*105 with no fees or slippage.
		if !b.Cash().Equal(decimal.NewFromInt(8950)) {
			t.Fatalf("cash = %s, want 8950", b.Cash())
		}
	})
}
