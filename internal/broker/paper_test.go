package broker_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/broker"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func mkBar(i int, price float64) types.Bar {
	p := decimal.NewFromFloat(price)
	return types.Bar{
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      p, High: p, Low: p, Close: p,
		Volume: decimal.NewFromInt(1000),
	}
}

func frictionlessCfg(capital int64) types.SimConfig {
	return types.SimConfig{
		InitialCapital: decimal.NewFromInt(capital),
		Slippage:       types.SlippageConfig{Model: types.SlippageFixedBps},
		CashPolicy:     types.CashPolicyScaleDown,
	}
}

func longIntent(id string, ts time.Time, size int64) types.OrderIntent {
	return types.OrderIntent{
		ID: id, Timestamp: ts,
		Direction: types.DirectionLong, TargetSize: decimal.NewFromInt(size),
	}
}

func TestPaperConformance(t *testing.T) {
	broker.RunConformance(t, func(capital decimal.Decimal) broker.Broker {
		cfg := frictionlessCfg(0)
		cfg.InitialCapital = capital
		return broker.NewPaper(zap.NewNop(), cfg)
	})
}

func TestPaperFeesAndSlippage(t *testing.T) {
	cfg := frictionlessCfg(10000)
	cfg.Fees = types.FeeConfig{Bps: decimal.NewFromInt(10), Fixed: decimal.NewFromInt(1)}
	cfg.Slippage = types.SlippageConfig{Model: types.SlippageFixedBps, Bps: decimal.NewFromInt(20)}
	b := broker.NewPaper(zap.NewNop(), cfg)

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("o1", mkBar(0, 100).Timestamp, 10))
	b.MarkToMarket(mkBar(1, 100))

	// Buy fills above the open: 100 * (1 + 20/10000) = 100.2.
	pos := b.Position()
	if !pos.AvgEntryPrice.Equal(decimal.NewFromFloat(100.2)) {
		t.Fatalf("entry price = %s, want 100.2", pos.AvgEntryPrice)
	}
	// Fee = 10 * 100.2 * 10/10000 + 1 = 2.002.
	results := b.Results()
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if !results[0].Fee.Equal(decimal.NewFromFloat(2.002)) {
		t.Fatalf("fee = %s, want 2.002", results[0].Fee)
	}
	want := decimal.NewFromFloat(8995.998) // 10000 - 1002 - 2.002
	if !b.Cash().Equal(want) {
		t.Fatalf("cash = %s, want %s", b.Cash(), want)
	}
}

func TestPaperFlipSplitsCloseAndOpen(t *testing.T) {
	b := broker.NewPaper(zap.NewNop(), frictionlessCfg(10000))

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("o1", mkBar(0, 100).Timestamp, 10))
	b.MarkToMarket(mkBar(1, 100))

	b.SubmitOrder(types.OrderIntent{
		ID: "o2", Timestamp: mkBar(1, 100).Timestamp,
		Direction: types.DirectionShort, TargetSize: decimal.NewFromInt(5),
	})
	b.MarkToMarket(mkBar(2, 110))

	trades := b.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1 realized on flip", len(trades))
	}
	tr := trades[0]
	if tr.Direction != types.DirectionLong {
		t.Fatalf("trade direction = %s, want long", tr.Direction)
	}
	if !tr.PnL.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("trade pnl = %s, want 100", tr.PnL)
	}

	pos := b.Position()
	if !pos.Size.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("position = %s, want -5", pos.Size)
	}
	// Open leg fills at the same price as the close leg.
	if !pos.AvgEntryPrice.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("short entry price = %s, want 110", pos.AvgEntryPrice)
	}
	// 9000 + 10*110 (close) + 5*110 (short proceeds).
	if !b.Cash().Equal(decimal.NewFromInt(10650)) {
		t.Fatalf("cash = %s, want 10650", b.Cash())
	}
}

func TestPaperScaleDown(t *testing.T) {
	b := broker.NewPaper(zap.NewNop(), frictionlessCfg(1000))

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("o1", mkBar(0, 100).Timestamp, 20))
	b.MarkToMarket(mkBar(1, 100))

	results := b.Results()
	if len(results) != 1 || results[0].Status != types.OrderStatusScaled {
		t.Fatalf("results = %+v, want one scaled fill", results)
	}
	if !b.Position().Size.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("position = %s, want max affordable 10", b.Position().Size)
	}
	if !b.Cash().IsZero() {
		t.Fatalf("cash = %s, want 0", b.Cash())
	}
}

func TestPaperStrictReject(t *testing.T) {
	cfg := frictionlessCfg(1000)
	cfg.CashPolicy = types.CashPolicyStrictReject
	b := broker.NewPaper(zap.NewNop(), cfg)

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("o1", mkBar(0, 100).Timestamp, 20))
	b.MarkToMarket(mkBar(1, 100))

	results := b.Results()
	if len(results) != 1 || results[0].Status != types.OrderStatusRejected {
		t.Fatalf("results = %+v, want one rejection", results)
	}
	if !b.Position().Size.IsZero() {
		t.Fatalf("position = %s, want flat after rejection", b.Position().Size)
	}
	if !b.Cash().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("cash = %s, want untouched 1000", b.Cash())
	}
}

func TestPaperCloseAllAppliesFeesNotSlippage(t *testing.T) {
	cfg := frictionlessCfg(10000)
	cfg.Fees = types.FeeConfig{Bps: decimal.NewFromInt(10)}
	cfg.Slippage = types.SlippageConfig{Model: types.SlippageFixedBps, Bps: decimal.NewFromInt(500)}
	b := broker.NewPaper(zap.NewNop(), cfg)

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("o1", mkBar(0, 100).Timestamp, 10))
	fillBar := mkBar(1, 100)
	b.MarkToMarket(fillBar)

	// Entry slipped to 105 (500 bps); close at the raw price 120.
	b.CloseAll(mkBar(2, 120).Timestamp, decimal.NewFromInt(120))

	if !b.Position().Size.IsZero() {
		t.Fatalf("position = %s, want flat", b.Position().Size)
	}
	trades := b.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if !trades[0].ExitPrice.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("exit price = %s, want unslipped 120", trades[0].ExitPrice)
	}
	// Entry fee 10*105*0.001 = 1.05, exit fee 10*120*0.001 = 1.2.
	wantFees := decimal.NewFromFloat(2.25)
	if !trades[0].Fees.Equal(wantFees) {
		t.Fatalf("fees = %s, want %s", trades[0].Fees, wantFees)
	}
	wantPnL := decimal.NewFromInt(150).Sub(wantFees) // 10 * (120 - 105) - fees
	if !trades[0].PnL.Equal(wantPnL) {
		t.Fatalf("pnl = %s, want %s", trades[0].PnL, wantPnL)
	}
}

func TestPaperReplacesPendingIntent(t *testing.T) {
	b := broker.NewPaper(zap.NewNop(), frictionlessCfg(10000))

	b.MarkToMarket(mkBar(0, 100))
	b.SubmitOrder(longIntent("first", mkBar(0, 100).Timestamp, 10))
	b.SubmitOrder(longIntent("second", mkBar(0, 100).Timestamp, 5))
	b.MarkToMarket(mkBar(1, 100))

	if !b.Position().Size.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("position = %s, want 5 from the replacing intent", b.Position().Size)
	}
	results := b.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want replaced + filled", len(results))
	}
	if results[0].OrderID != "first" || results[0].Status != types.OrderStatusReplaced {
		t.Fatalf("first result = %+v, want replaced", results[0])
	}
	if results[1].OrderID != "second" || results[1].Status != types.OrderStatusFilled {
		t.Fatalf("second result = %+v, want filled", results[1])
	}
}
