package billing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// percentOf returns amount * rate / 100 rounded half away from zero. Every
// percentage in the package goes through here so displayed totals and
// settlement checks round the same way.
func percentOf(amount int64, rate float64) int64 {
	if amount == 0 || rate == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(rate)).
		Div(hundred).
		Round(0).
		IntPart()
}
