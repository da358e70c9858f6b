// README: Pricing rate definition and fare quotes.
package pricing

import (
	"github.com/shopspring/decimal"

	"colibri/internal/types"
)

type Rate struct {
	BaseFare decimal.Decimal
	PerKm    decimal.Decimal
	Currency string
}

// DefaultRate is 25 + 8.5 per kilometre.
var DefaultRate = Rate{
	BaseFare: decimal.NewFromInt(25),
	PerKm:    decimal.RequireFromString("8.5"),
	Currency: types.DefaultCurrency,
}

// Distance sources reported on a Quote.
const (
	SourceRoute     = "route"
	SourceHaversine = "haversine"
)

type Quote struct {
	DistanceKm float64
	Source     string
	Fare       types.Money
}
