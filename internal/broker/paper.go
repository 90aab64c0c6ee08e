package broker

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// PaperBroker simulates execution against historical bars. An intent
// submitted during bar t is held as pending and fills at the next bar's
// open, adjusted by the slippage model. Fills are all-or-nothing per
// bar except for the scale-down cash policy.
type PaperBroker struct {
	logger *zap.Logger
	fees   types.FeeConfig
	slip   SlippageModel
	policy types.CashPolicy

	cash      decimal.Decimal
	pos       types.Position
	entryFees decimal.Decimal

	pending *types.OrderIntent
	trades  []types.Trade
	results []types.OrderResult
}

// NewPaper creates a paper broker funded with the config's initial
// capital. An empty cash policy defaults to scale-down.
func NewPaper(logger *zap.Logger, cfg types.SimConfig) *PaperBroker {
	policy := cfg.CashPolicy
	if policy == "" {
		policy = types.CashPolicyScaleDown
	}
	return &PaperBroker{
		logger: logger,
		fees:   cfg.Fees,
		slip:   NewSlippageModel(cfg.Slippage),
		policy: policy,
		cash:   cfg.InitialCapital,
	}
}

// SubmitOrder queues the intent for the next bar. Only one intent can
// be pending at a time; submitting another replaces it and the replaced
// intent is recorded as such.
func (b *PaperBroker) SubmitOrder(intent types.OrderIntent) types.OrderResult {
	if b.pending != nil {
		b.logger.Warn("pending intent replaced before fill",
			zap.String("replaced_id", b.pending.ID),
			zap.String("by_id", intent.ID),
		)
		b.results = append(b.results, types.OrderResult{
			OrderID: b.pending.ID,
			Status:  types.OrderStatusReplaced,
			Reason:  "superseded by " + intent.ID,
		})
	}
	queued := intent
	b.pending = &queued
	return types.OrderResult{OrderID: intent.ID, Status: types.OrderStatusAccepted}
}

// MarkToMarket advances to the given bar. A pending intent from an
// earlier bar fills at this bar's open first, then the position is
// valued at the open. An intent never fills on the bar it was submitted
// during.
func (b *PaperBroker) MarkToMarket(bar types.Bar) types.EquityPoint {
	if b.pending != nil && bar.Timestamp.After(b.pending.Timestamp) {
		intent := *b.pending
		b.pending = nil
		b.fill(intent, bar)
	}
	value := b.pos.Size.Mul(bar.Open)
	return types.EquityPoint{
		Timestamp:     bar.Timestamp,
		Cash:          b.cash,
		PositionValue: value,
		TotalEquity:   b.cash.Add(value),
	}
}

// Position returns the current open position.
func (b *PaperBroker) Position() types.Position { return b.pos }

// Cash returns available cash.
func (b *PaperBroker) Cash() decimal.Decimal { return b.cash }

// Trades returns the closed round trips recorded so far.
func (b *PaperBroker) Trades() []types.Trade { return b.trades }

// Results returns the terminal order outcomes recorded so far.
func (b *PaperBroker) Results() []types.OrderResult { return b.results }

// CloseAll force-closes any open position at the given price, applying
// fees but no slippage. A still-pending intent is discarded. Used at
// the end of a run so the final equity is fully realized.
func (b *PaperBroker) CloseAll(ts time.Time, price decimal.Decimal) {
	if b.pending != nil {
		b.logger.Debug("discarding pending intent at close", zap.String("id", b.pending.ID))
		b.pending = nil
	}
	if b.pos.Size.IsZero() {
		return
	}
	qty := b.pos.Size.Abs()
	fee := b.closePart(qty, price, ts)
	b.results = append(b.results, types.OrderResult{
		OrderID:    uuid.New().String(),
		Status:     types.OrderStatusFilled,
		FilledSize: qty,
		FillPrice:  price,
		Fee:        fee,
		Reason:     "forced close at end of data",
		FilledAt:   ts,
	})
}

// fill executes a pending intent against the bar open. A direction flip
// is split into a closing leg and an opening leg, both at the same fill
// price. The cash check covers the opening leg only: under scale-down
// the closing leg still executes in full, under strict-reject the whole
// order is dropped so the flip stays atomic.
func (b *PaperBroker) fill(intent types.OrderIntent, bar types.Bar) {
	target := signedTarget(intent)
	delta := target.Sub(b.pos.Size)
	if delta.IsZero() {
		b.results = append(b.results, types.OrderResult{
			OrderID:   intent.ID,
			Status:    types.OrderStatusFilled,
			FillPrice: bar.Open,
			FilledAt:  bar.Timestamp,
		})
		return
	}
	buying := delta.IsPositive()
	price := b.slip.FillPrice(bar, buying, delta.Abs())

	var closeQty, openQty decimal.Decimal
	switch {
	case !b.pos.Size.IsZero() && b.pos.Size.Sign() != target.Sign():
		closeQty = b.pos.Size.Abs()
		openQty = target.Abs()
	case !b.pos.Size.IsZero() && target.Abs().LessThan(b.pos.Size.Abs()):
		closeQty = b.pos.Size.Abs().Sub(target.Abs())
	default:
		openQty = target.Abs().Sub(b.pos.Size.Abs())
	}

	status := types.OrderStatusFilled
	if openQty.IsPositive() && target.IsPositive() {
		cashAfterClose := b.cash
		if closeQty.IsPositive() {
			sign := decimal.NewFromInt(int64(b.pos.Size.Sign()))
			cashAfterClose = cashAfterClose.
				Add(sign.Mul(closeQty).Mul(price)).
				Sub(b.fee(closeQty, price))
		}
		cost := openQty.Mul(price).Add(b.fee(openQty, price))
		if cost.GreaterThan(cashAfterClose) {
			if b.policy == types.CashPolicyStrictReject {
				b.logger.Warn("order rejected for insufficient cash",
					zap.String("id", intent.ID),
					zap.String("cost", cost.String()),
					zap.String("cash", cashAfterClose.String()),
				)
				b.results = append(b.results, types.OrderResult{
					OrderID: intent.ID,
					Status:  types.OrderStatusRejected,
					Reason:  "insufficient cash",
				})
				return
			}
			scaled := maxAffordable(cashAfterClose, price, b.fees)
			b.logger.Warn("order scaled down for insufficient cash",
				zap.String("id", intent.ID),
				zap.String("requested", openQty.String()),
				zap.String("scaled", scaled.String()),
			)
			openQty = scaled
			status = types.OrderStatusScaled
		}
	}

	var totalFee decimal.Decimal
	if closeQty.IsPositive() {
		totalFee = totalFee.Add(b.closePart(closeQty, price, bar.Timestamp))
	}
	if openQty.IsPositive() {
		totalFee = totalFee.Add(b.openPart(openQty, target.Sign(), price, bar.Timestamp))
	}
	b.results = append(b.results, types.OrderResult{
		OrderID:    intent.ID,
		Status:     status,
		FilledSize: closeQty.Add(openQty),
		FillPrice:  price,
		Fee:        totalFee,
		FilledAt:   bar.Timestamp,
	})
}

// closePart reduces the position by qty at the given price, realizing a
// trade with a proportional share of the accumulated entry fees. It
// returns the exit fee charged.
func (b *PaperBroker) closePart(qty, price decimal.Decimal, ts time.Time) decimal.Decimal {
	sign := decimal.NewFromInt(int64(b.pos.Size.Sign()))
	exitFee := b.fee(qty, price)
	b.cash = b.cash.Add(sign.Mul(qty).Mul(price)).Sub(exitFee)

	alloc := b.entryFees.Mul(qty).Div(b.pos.Size.Abs())
	pnl := sign.Mul(qty).Mul(price.Sub(b.pos.AvgEntryPrice)).Sub(alloc).Sub(exitFee)
	b.trades = append(b.trades, types.Trade{
		ID:         uuid.New().String(),
		Direction:  b.pos.Direction(),
		EntryTime:  b.pos.OpenedAt,
		ExitTime:   ts,
		EntryPrice: b.pos.AvgEntryPrice,
		ExitPrice:  price,
		Size:       qty,
		Fees:       alloc.Add(exitFee),
		PnL:        pnl,
	})

	b.entryFees = b.entryFees.Sub(alloc)
	b.pos.Size = b.pos.Size.Sub(sign.Mul(qty))
	if b.pos.Size.IsZero() {
		b.pos = types.Position{}
		b.entryFees = decimal.Zero
	}
	return exitFee
}

// openPart increases the position by qty on the given side, averaging
// the entry price. It returns the entry fee charged.
func (b *PaperBroker) openPart(qty decimal.Decimal, sign int, price decimal.Decimal, ts time.Time) decimal.Decimal {
	fee := b.fee(qty, price)
	signDec := decimal.NewFromInt(int64(sign))
	b.cash = b.cash.Sub(signDec.Mul(qty).Mul(price)).Sub(fee)

	if b.pos.Size.IsZero() {
		b.pos.AvgEntryPrice = price
		b.pos.OpenedAt = ts
	} else {
		held := b.pos.Size.Abs()
		total := held.Add(qty)
		b.pos.AvgEntryPrice = b.pos.AvgEntryPrice.Mul(held).Add(price.Mul(qty)).Div(total)
	}
	b.pos.Size = b.pos.Size.Add(signDec.Mul(qty))
	b.entryFees = b.entryFees.Add(fee)
	return fee
}

func (b *PaperBroker) fee(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Mul(b.fees.Bps).Div(bpsDivisor).Add(b.fees.Fixed)
}

// maxAffordable solves qty*price*(1+bps/10000) + fixed <= cash for qty.
func maxAffordable(cash, price decimal.Decimal, fees types.FeeConfig) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	budget := cash.Sub(fees.Fixed)
	if budget.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	unit := price.Mul(decimal.NewFromInt(1).Add(fees.Bps.Div(bpsDivisor)))
	return budget.Div(unit)
}

func signedTarget(intent types.OrderIntent) decimal.Decimal {
	switch intent.Direction {
	case types.DirectionLong:
		return intent.TargetSize.Abs()
	case types.DirectionShort:
		return intent.TargetSize.Abs().Neg()
	default:
		return decimal.Zero
	}
}
