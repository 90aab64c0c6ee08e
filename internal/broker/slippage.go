package broker

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var bpsDivisor = decimal.NewFromInt(10000)

// SlippageModel adjusts a fill price away from the bar open. Buys fill
// above the open, sells below, so slippage always costs the taker.
type SlippageModel interface {
	FillPrice(bar types.Bar, buying bool, size decimal.Decimal) decimal.Decimal
}

// NewSlippageModel builds the model selected by cfg. Unknown kinds are
// caught by SimConfig.Validate, so this never falls through silently.
func NewSlippageModel(cfg types.SlippageConfig) SlippageModel {
	switch cfg.Model {
	case types.SlippageFixedAmount:
		return fixedAmount{amount: cfg.Amount}
	case types.SlippageVolumeWeighted:
		return volumeWeighted{bps: cfg.Bps, impact: cfg.ImpactFactor}
	default:
		return fixedBps{bps: cfg.Bps}
	}
}

// fixedBps shifts the open by a constant fraction of price.
type fixedBps struct {
	bps decimal.Decimal
}

func (m fixedBps) FillPrice(bar types.Bar, buying bool, _ decimal.Decimal) decimal.Decimal {
	offset := bar.Open.Mul(m.bps).Div(bpsDivisor)
	if buying {
		return bar.Open.Add(offset)
	}
	return bar.Open.Sub(offset)
}

// fixedAmount shifts the open by an absolute price offset.
type fixedAmount struct {
	amount decimal.Decimal
}

func (m fixedAmount) FillPrice(bar types.Bar, buying bool, _ decimal.Decimal) decimal.Decimal {
	if buying {
		return bar.Open.Add(m.amount)
	}
	price := bar.Open.Sub(m.amount)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// volumeWeighted adds a square-root participation impact on top of the
// base bps: a fill taking a large share of the bar's volume moves the
// price more. Zero-volume bars fall back to the base bps alone.
type volumeWeighted struct {
	bps    decimal.Decimal
	impact decimal.Decimal
}

func (m volumeWeighted) FillPrice(bar types.Bar, buying bool, size decimal.Decimal) decimal.Decimal {
	frac := m.bps.Div(bpsDivisor)
	if bar.Volume.IsPositive() && size.IsPositive() {
		participation := size.Div(bar.Volume).InexactFloat64()
		frac = frac.Add(m.impact.Mul(decimal.NewFromFloat(math.Sqrt(participation))))
	}
	offset := bar.Open.Mul(frac)
	if buying {
		return bar.Open.Add(offset)
	}
	price := bar.Open.Sub(offset)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
