// Package redistribute divides a government transfer budget across
// households. Every strategy reduces to weights that are normalized against
// the budget; a strategy whose weights carry no information (all zero, or no
// spread between households) falls back to an equal split rather than
// failing.
package redistribute

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Strategy names.
const (
	StrategyEqual        = "equal"
	StrategyIncome       = "income_proportional"
	StrategyPoverty      = "poverty_focused"
	StrategyUnemployment = "unemployment_focused"
	StrategyFamilySize   = "family_size"
	StrategyMixed        = "mixed"
)

// povertyAlpha blends the income gap against the balance gap under the
// poverty focused strategy.
const povertyAlpha = 0.5

// unemployedWeight is the weight multiplier for households with no employed
// member.
var unemployedWeight = decimal.NewFromInt(2)

// ErrUnknownStrategy is returned for a strategy name outside the known set.
var ErrUnknownStrategy = errors.New("redistribute: unknown strategy")

// Household carries the per-household signals the strategies read.
type Household struct {
	ID         string
	Income     decimal.Decimal
	Balance    decimal.Decimal
	FamilySize int
	Employed   bool
}

// Allocate splits total across households by the named strategy. The mixed
// strategy reads mixWeights (strategy name to weight); other strategies
// ignore it. An empty household list yields an empty allocation.
func Allocate(strategy string, total decimal.Decimal, households []Household, mixWeights map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(households) == 0 || !total.IsPositive() {
		return map[string]decimal.Decimal{}, nil
	}

	switch strategy {
	case StrategyEqual:
		return equalSplit(total, households), nil
	case StrategyIncome:
		return byWeights(total, households, incomeGapWeights(households)), nil
	case StrategyPoverty:
		return byWeights(total, households, povertyWeights(households)), nil
	case StrategyUnemployment:
		return byWeights(total, households, unemploymentWeights(households)), nil
	case StrategyFamilySize:
		return byWeights(total, households, familySizeWeights(households)), nil
	case StrategyMixed:
		return mixed(total, households, mixWeights)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func equalSplit(total decimal.Decimal, households []Household) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(households))
	share := total.Div(decimal.NewFromInt(int64(len(households))))
	for _, h := range households {
		out[h.ID] = share
	}
	return out
}

// byWeights normalizes weights against the total. Weights that sum to zero
// carry no information and degrade to an equal split.
func byWeights(total decimal.Decimal, households []Household, weights []decimal.Decimal) map[string]decimal.Decimal {
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		return equalSplit(total, households)
	}
	out := make(map[string]decimal.Decimal, len(households))
	for i, h := range households {
		out[h.ID] = total.Mul(weights[i]).Div(sum)
	}
	return out
}

// incomeGapWeights weights each household by its distance below the highest
// income. Identical incomes produce all-zero weights.
func incomeGapWeights(households []Household) []decimal.Decimal {
	max := households[0].Income
	for _, h := range households[1:] {
		if h.Income.GreaterThan(max) {
			max = h.Income
		}
	}
	weights := make([]decimal.Decimal, len(households))
	for i, h := range households {
		weights[i] = max.Sub(h.Income)
	}
	return weights
}

// povertyWeights blends the income gap and the balance gap.
func povertyWeights(households []Household) []decimal.Decimal {
	maxIncome := households[0].Income
	maxBalance := households[0].Balance
	for _, h := range households[1:] {
		if h.Income.GreaterThan(maxIncome) {
			maxIncome = h.Income
		}
		if h.Balance.GreaterThan(maxBalance) {
			maxBalance = h.Balance
		}
	}
	alpha := decimal.NewFromFloat(povertyAlpha)
	oneMinus := decimal.NewFromInt(1).Sub(alpha)
	weights := make([]decimal.Decimal, len(households))
	for i, h := range households {
		incomeGap := maxIncome.Sub(h.Income)
		balanceGap := maxBalance.Sub(h.Balance)
		weights[i] = alpha.Mul(incomeGap).Add(oneMinus.Mul(balanceGap))
	}
	return weights
}

// unemploymentWeights gives unemployed households double weight. All
// households in the same state means no spread, which degrades to equal.
func unemploymentWeights(households []Household) []decimal.Decimal {
	anyEmployed, anyUnemployed := false, false
	for _, h := range households {
		if h.Employed {
			anyEmployed = true
		} else {
			anyUnemployed = true
		}
	}
	weights := make([]decimal.Decimal, len(households))
	if !anyEmployed || !anyUnemployed {
		return weights
	}
	for i, h := range households {
		if h.Employed {
			weights[i] = decimal.NewFromInt(1)
		} else {
			weights[i] = unemployedWeight
		}
	}
	return weights
}

func familySizeWeights(households []Household) []decimal.Decimal {
	weights := make([]decimal.Decimal, len(households))
	for i, h := range households {
		if h.FamilySize > 0 {
			weights[i] = decimal.NewFromInt(int64(h.FamilySize))
		}
	}
	return weights
}

// mixed splits the budget across component strategies by their weights and
// sums the per-household results. Any weight mass not assigned to a known
// component goes to an equal split.
func mixed(total decimal.Decimal, households []Household, mixWeights map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(mixWeights) == 0 {
		return equalSplit(total, households), nil
	}

	weightSum := decimal.Zero
	for name, w := range mixWeights {
		if name == StrategyMixed {
			return nil, fmt.Errorf("%w: mixed cannot nest itself", ErrUnknownStrategy)
		}
		if w.IsNegative() {
			return nil, fmt.Errorf("redistribute: negative weight for %q", name)
		}
		weightSum = weightSum.Add(w)
	}
	if !weightSum.IsPositive() {
		return equalSplit(total, households), nil
	}
	one := decimal.NewFromInt(1)
	if weightSum.GreaterThan(one) {
		return nil, fmt.Errorf("redistribute: mix weights sum to %s, above 1", weightSum)
	}

	out := make(map[string]decimal.Decimal, len(households))
	for _, h := range households {
		out[h.ID] = decimal.Zero
	}
	accumulate := func(alloc map[string]decimal.Decimal) {
		for id, amount := range alloc {
			out[id] = out[id].Add(amount)
		}
	}

	for name, w := range mixWeights {
		if w.IsZero() {
			continue
		}
		part, err := Allocate(name, total.Mul(w), households, nil)
		if err != nil {
			return nil, err
		}
		accumulate(part)
	}
	if remainder := one.Sub(weightSum); remainder.IsPositive() {
		accumulate(equalSplit(total.Mul(remainder), households))
	}
	return out, nil
}
