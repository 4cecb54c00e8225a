// Package gdp estimates monthly output three ways from ledger aggregates.
// The approaches measure the same activity through different transaction
// sets, so they disagree in practice; the spread is reported as a
// statistical discrepancy rather than forced to zero.
package gdp

import (
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

// LedgerView is the slice of ledger state the calculator reads.
type LedgerView interface {
	PeriodStats(month int) model.PeriodStatistics
	AggregateFirmProfits(month int) decimal.Decimal
}

// Report holds the three estimates for one month.
type Report struct {
	Month int `json:"month"`

	// Production: gross product sales net of intermediate resource inputs.
	Production decimal.Decimal `json:"production_approach"`

	// Expenditure: household consumption plus government spending.
	Expenditure decimal.Decimal `json:"expenditure_approach"`

	// Income: wages paid plus firm operating profits.
	Income decimal.Decimal `json:"income_approach"`

	// StatisticalDiscrepancy is the spread between the highest and lowest
	// estimate.
	StatisticalDiscrepancy decimal.Decimal `json:"statistical_discrepancy"`
}

// Calculator computes GDP reports against a ledger.
type Calculator struct {
	ledger LedgerView
}

// NewCalculator returns a calculator reading the given ledger.
func NewCalculator(l LedgerView) *Calculator {
	return &Calculator{ledger: l}
}

// Monthly estimates the month's output by all three approaches.
func (c *Calculator) Monthly(month int) Report {
	stats := c.ledger.PeriodStats(month)

	production := stats.ProductVolume.Sub(stats.ResourceVolume)
	expenditure := stats.TotalConsumption.Add(stats.GovernmentSpending)
	income := stats.WageVolume.Add(c.ledger.AggregateFirmProfits(month))

	low, high := production, production
	for _, v := range []decimal.Decimal{expenditure, income} {
		if v.LessThan(low) {
			low = v
		}
		if v.GreaterThan(high) {
			high = v
		}
	}

	return Report{
		Month:                  month,
		Production:             production,
		Expenditure:            expenditure,
		Income:                 income,
		StatisticalDiscrepancy: high.Sub(low),
	}
}
