// Package reward implements the gamble maths of case spins, upgrades and
// contracts. Nothing here touches storage; callers persist the outcome.
package reward

import (
	"errors"

	"github.com/shopspring/decimal"

	"case-market/internal/model"
)

const (
	// UpgradeCap is the highest upgrade win chance in percent.
	UpgradeCap = 75.0

	// MinContractItems is the smallest number of items a contract accepts.
	MinContractItems = 3

	// RollMax is the upper bound of upgrade and contract rolls.
	RollMax = 100.0
)

var (
	cashbackRate  = decimal.RequireFromString("0.02")
	contractFloor = decimal.RequireFromString("0.5")
	hundred       = decimal.NewFromInt(100)
)

// Errors for reward draws
var (
	ErrNoWeights     = errors.New("no positive weights to draw from")
	ErrInvalidTarget = errors.New("target price must be positive")
)

// WeightedIndex picks an index with probability weight/sum(weights).
// Non-positive weights are never picked. The returned roll is the drawn
// point in [0, sum) and can be stored for audit.
func WeightedIndex(weights []float64, r Roller) (int, float64, error) {
	var total float64
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return 0, 0, ErrNoWeights
	}

	point := r.Uniform(0, total)
	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if point < acc {
			return i, point, nil
		}
	}
	// Float rounding at the top edge.
	return last, point, nil
}

// Draw selects one droppable case item by its stored drop chance.
// Items flagged never_drop are excluded entirely.
func Draw(items []*model.CaseItem, r Roller) (*model.CaseItem, float64, error) {
	weights := make([]float64, len(items))
	for i, ci := range items {
		if !ci.NeverDrop {
			weights[i] = ci.DropChance
		}
	}
	idx, point, err := WeightedIndex(weights, r)
	if err != nil {
		return nil, 0, err
	}
	return items[idx], point, nil
}

// UpgradeChance returns the win chance in percent of staking attempt
// against a target priced target, capped at UpgradeCap.
func UpgradeChance(attempt, target decimal.Decimal) (float64, error) {
	if !target.IsPositive() {
		return 0, ErrInvalidTarget
	}
	chance := attempt.Mul(hundred).Div(target).InexactFloat64()
	if chance > UpgradeCap {
		return UpgradeCap, nil
	}
	if chance < 0 {
		return 0, nil
	}
	return chance, nil
}

// UpgradeWins reports whether a roll in [0, 100] beats chance.
func UpgradeWins(roll, chance float64) bool {
	return roll <= chance
}

// Cashback is the consolation refund of a lost upgrade.
func Cashback(attempt decimal.Decimal) decimal.Decimal {
	return attempt.Mul(cashbackRate).Round(2)
}

// ContractMultiplier maps a roll in [0, 100] to a payout multiplier.
func ContractMultiplier(roll float64) decimal.Decimal {
	switch {
	case roll <= 50:
		return decimal.RequireFromString("0.5")
	case roll <= 94:
		return decimal.NewFromInt(2)
	case roll <= 98:
		return decimal.NewFromInt(3)
	case roll <= 98.9:
		return decimal.NewFromInt(4)
	default:
		return decimal.NewFromInt(5)
	}
}

// ContractBounds returns the price window [low, high] of the payout item.
func ContractBounds(attempt, multiplier decimal.Decimal) (low, high decimal.Decimal) {
	return attempt.Mul(contractFloor), attempt.Mul(multiplier)
}

// PickUniform returns one of ids chosen uniformly.
func PickUniform(ids []int64, r Roller) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoWeights
	}
	return ids[r.Intn(len(ids))], nil
}
