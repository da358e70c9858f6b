// README: Settlement record produced for every completed trip.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"colibri/internal/types"
)

type Settlement struct {
	TripID     types.ID
	Driver     types.ID
	Passenger  types.ID
	Fare       types.Money
	Rate       decimal.Decimal
	Commission types.Money
	// Balance is the wallet balance reported by the creditor, when it reports one.
	Balance   *decimal.Decimal
	Settled   bool
	SettledAt time.Time
}
