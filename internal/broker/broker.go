// Package broker provides the capability interface the simulation loop
// trades through, and the paper implementation that simulates fills,
// fees, and slippage against historical bars.
package broker

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Broker is the capability interface between the simulation loop and an
// execution venue. Any implementation must satisfy the conformance
// suite in this package before it can be substituted for the paper
// broker: an intent submitted at bar t may fill no earlier than bar
// t+1, and Cash plus position value must always equal the equity point
// it reports.
type Broker interface {
	// SubmitOrder queues an intent for execution at the next bar
	// boundary and reports its acceptance.
	SubmitOrder(intent types.OrderIntent) types.OrderResult
	// MarkToMarket advances the broker to the given bar: any pending
	// intent from an earlier bar fills at this bar's open, then the
	// equity point valued at the open is returned.
	MarkToMarket(bar types.Bar) types.EquityPoint
	// Position returns the current open position.
	Position() types.Position
	// Cash returns available cash.
	Cash() decimal.Decimal
}
