// Package pricing derives case item drop chances from prices.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// Decay is the exponent slope applied to the price ratio above 1.
	Decay = 0.94

	// MinChance keeps expensive items selectable instead of rounding to zero.
	MinChance = 1e-16
)

// DropChance returns the selection weight in (0, 1] of an item priced
// itemPrice inside a case priced casePrice.
//
// Items no more expensive than the case always get 1.0. Above that the
// chance decays as exp(-0.94 * (itemPrice/casePrice - 1)), floored at MinChance.
// A non-positive case price yields 1.0 since no ratio can be formed.
func DropChance(casePrice, itemPrice decimal.Decimal) float64 {
	if !casePrice.IsPositive() || itemPrice.LessThanOrEqual(casePrice) {
		return 1.0
	}

	ratio := itemPrice.InexactFloat64() / casePrice.InexactFloat64()
	chance := math.Exp(-Decay * (ratio - 1))
	if chance < MinChance {
		return MinChance
	}
	if chance > 1 {
		return 1
	}
	return chance
}

// Matches reports whether a stored chance equals the one derived from prices.
// Stored values go through float8 so exact equality is expected.
func Matches(stored float64, casePrice, itemPrice decimal.Decimal) bool {
	return stored == DropChance(casePrice, itemPrice)
}
