// README: Common money value object used across modules.
package types

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency every fare and commission is quoted in.
const DefaultCurrency = "MXN"

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney rounds amount to cents.
func NewMoney(amount decimal.Decimal) Money {
	return Money{Amount: amount.Round(2), Currency: DefaultCurrency}
}

// MoneyFromFloat converts a client-supplied float into cents-rounded Money.
// NaN and infinities have no decimal form and become zero.
func MoneyFromFloat(v float64) Money {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NewMoney(decimal.Zero)
	}
	return NewMoney(decimal.NewFromFloat(v))
}

func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}
