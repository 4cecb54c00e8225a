// Package tax implements the progressive income tax schedule, VAT splitting,
// and corporate tax math. Everything here is pure computation over an
// immutable TaxPolicy snapshot; the ledger performs the actual transfers.
package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

var (
	// ErrInvalidBrackets signals a malformed bracket table — a programmer
	// error, not an expected business outcome.
	ErrInvalidBrackets = errors.New("tax: invalid bracket table")
)

// Engine evaluates a fixed TaxPolicy. Replace the whole Engine to change
// policy mid-run; brackets are validated once at construction.
type Engine struct {
	policy model.TaxPolicy
}

// NewEngine validates the policy and returns an Engine.
// Brackets must be sorted ascending by cutoff, start at a non-negative
// cutoff, and carry rates in [0,1).
func NewEngine(policy model.TaxPolicy) (*Engine, error) {
	if len(policy.IncomeBrackets) == 0 {
		return nil, fmt.Errorf("%w: no income brackets", ErrInvalidBrackets)
	}
	one := decimal.NewFromInt(1)
	prev := decimal.NewFromInt(-1)
	for i, b := range policy.IncomeBrackets {
		if b.Cutoff.IsNegative() {
			return nil, fmt.Errorf("%w: bracket %d has negative cutoff", ErrInvalidBrackets, i)
		}
		if b.Cutoff.LessThanOrEqual(prev) && i > 0 {
			return nil, fmt.Errorf("%w: cutoffs not strictly increasing at bracket %d", ErrInvalidBrackets, i)
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("%w: bracket %d rate out of [0,1)", ErrInvalidBrackets, i)
		}
		prev = b.Cutoff
	}
	if policy.VATRate.IsNegative() || policy.CorporateTaxRate.IsNegative() {
		return nil, fmt.Errorf("%w: negative flat rate", ErrInvalidBrackets)
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the policy snapshot the engine evaluates.
func (e *Engine) Policy() model.TaxPolicy { return e.policy }

// VATRate returns the flat consumption tax rate.
func (e *Engine) VATRate() decimal.Decimal { return e.policy.VATRate }

// CorporateRate returns the flat corporate income tax rate.
func (e *Engine) CorporateRate() decimal.Decimal { return e.policy.CorporateTaxRate }

// ProgressiveIncomeTax computes the personal income tax on a gross wage.
// For brackets [(c0,r0), (c1,r1), …] sorted ascending, the tax is the sum
// over brackets where gross > ci of rate_i × (min(gross, c_{i+1}) − c_i);
// the last bracket is unbounded above. Negative gross is taxed as zero.
func (e *Engine) ProgressiveIncomeTax(gross decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	if gross.LessThanOrEqual(decimal.Zero) {
		return total
	}
	brackets := e.policy.IncomeBrackets
	for i, b := range brackets {
		if gross.LessThanOrEqual(b.Cutoff) {
			break
		}
		upper := gross
		if i+1 < len(brackets) && brackets[i+1].Cutoff.LessThan(gross) {
			upper = brackets[i+1].Cutoff
		}
		total = total.Add(upper.Sub(b.Cutoff).Mul(b.Rate))
	}
	return total
}

// NetWage returns gross minus progressive income tax, floored at zero,
// together with the tax withheld.
func (e *Engine) NetWage(gross decimal.Decimal) (net, withheld decimal.Decimal) {
	withheld = e.ProgressiveIncomeTax(gross)
	net = gross.Sub(withheld)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net, withheld
}

// VATSplit splits an ex-tax price into the total the buyer pays and the VAT
// portion owed to the government. The seller receives exactly exTax.
func (e *Engine) VATSplit(exTax decimal.Decimal) (totalCost, vat decimal.Decimal) {
	vat = exTax.Mul(e.policy.VATRate)
	return exTax.Add(vat), vat
}

// CorporateTax computes the month-end corporate tax over accumulated income
// and expenses: max(0, income − expenses) × corporate rate. Firms pay even
// when it pushes their balance negative.
func (e *Engine) CorporateTax(income, expenses decimal.Decimal) decimal.Decimal {
	profit := income.Sub(expenses)
	if profit.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return profit.Mul(e.policy.CorporateTaxRate)
}
