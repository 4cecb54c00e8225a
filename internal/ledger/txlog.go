package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

// appendTx appends one immutable record to the log and every index, then
// folds it into the month's running statistics. The log append is always the
// last side effect of a composite operation, so a record in the log implies
// the transfers it describes were fully applied. Callers hold the lock.
func (c *Core) appendTx(tx *model.Transaction) {
	c.txHistory = append(c.txHistory, tx)
	c.txByMonth[tx.Month] = append(c.txByMonth[tx.Month], tx)
	c.txByType[tx.Type] = append(c.txByType[tx.Type], tx)
	if tx.SenderID != "" {
		c.txByParty[tx.SenderID] = append(c.txByParty[tx.SenderID], tx)
	}
	if tx.ReceiverID != "" && tx.ReceiverID != tx.SenderID {
		c.txByParty[tx.ReceiverID] = append(c.txByParty[tx.ReceiverID], tx)
	}
	c.updatePeriodStats(tx)
	metrics.TransactionsTotal.WithLabelValues(tx.Type).Inc()
}

// periodStatsFor returns the month's statistics bucket, creating it on first
// touch. Callers hold the lock.
func (c *Core) periodStatsFor(month int) *model.PeriodStatistics {
	stats, ok := c.periodStats[month]
	if !ok {
		stats = &model.PeriodStatistics{Period: month}
		c.periodStats[month] = stats
	}
	return stats
}

func (c *Core) updatePeriodStats(tx *model.Transaction) {
	stats := c.periodStatsFor(tx.Month)
	stats.TotalTransactions++
	stats.TotalVolume = stats.TotalVolume.Add(tx.Amount)

	switch tx.Type {
	case model.TxPurchase, model.TxProductSale, model.TxInherentMarket, model.TxGovernmentProcurement:
		stats.ProductVolume = stats.ProductVolume.Add(tx.Amount)
		if tx.Type == model.TxPurchase && c.agentTypes[tx.SenderID] == model.AgentHousehold {
			stats.TotalConsumption = stats.TotalConsumption.Add(tx.Amount)
		}
	case model.TxLaborPayment:
		stats.WageVolume = stats.WageVolume.Add(tx.Amount)
	case model.TxLaborTax:
		// Withheld tax is part of gross compensation, so it counts toward
		// wage volume as well as tax volume.
		stats.WageVolume = stats.WageVolume.Add(tx.Amount)
		stats.TaxVolume = stats.TaxVolume.Add(tx.Amount)
	case model.TxResourcePurchase:
		stats.ResourceVolume = stats.ResourceVolume.Add(tx.Amount)
	case model.TxConsumeTax, model.TxCorporateTax:
		stats.TaxVolume = stats.TaxVolume.Add(tx.Amount)
	}
	if tx.Type == model.TxGovernmentProcurement {
		stats.GovernmentSpending = stats.GovernmentSpending.Add(tx.Amount)
	}
}

// TxFilter selects transactions. Zero values mean "any".
type TxFilter struct {
	Month    int
	HasMonth bool
	Type     string
	PartyID  string
}

// GetTransactions returns log records matching the filter, narrowest index
// first so common queries stay O(result) rather than O(log).
func (c *Core) GetTransactions(f TxFilter) []*model.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	var base []*model.Transaction
	switch {
	case f.HasMonth:
		base = c.txByMonth[f.Month]
	case f.PartyID != "":
		base = c.txByParty[f.PartyID]
	case f.Type != "":
		base = c.txByType[f.Type]
	default:
		base = c.txHistory
	}

	out := make([]*model.Transaction, 0, len(base))
	for _, tx := range base {
		if f.HasMonth && tx.Month != f.Month {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.PartyID != "" && tx.SenderID != f.PartyID && tx.ReceiverID != f.PartyID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// PeriodStats returns a copy of the month's accumulated statistics.
func (c *Core) PeriodStats(month int) model.PeriodStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.periodStatsFor(month)
	return *stats
}

// TaxCollection breaks down one month's government tax receipts.
type TaxCollection struct {
	ConsumeTax   decimal.Decimal `json:"consume_tax"`
	LaborTax     decimal.Decimal `json:"labor_tax"`
	CorporateTax decimal.Decimal `json:"corporate_tax"`
	TotalTax     decimal.Decimal `json:"total_tax"`
}

// MonthlyTaxCollection sums tax transactions received by the government in
// one month, by kind.
func (c *Core) MonthlyTaxCollection(month int, govID string) TaxCollection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monthlyTaxCollection(month, govID)
}

func (c *Core) monthlyTaxCollection(month int, govID string) TaxCollection {
	var tc TaxCollection
	tc.ConsumeTax, tc.LaborTax, tc.CorporateTax = decimal.Zero, decimal.Zero, decimal.Zero
	for _, tx := range c.txByMonth[month] {
		if tx.ReceiverID != govID {
			continue
		}
		switch tx.Type {
		case model.TxConsumeTax:
			tc.ConsumeTax = tc.ConsumeTax.Add(tx.Amount)
		case model.TxLaborTax:
			tc.LaborTax = tc.LaborTax.Add(tx.Amount)
		case model.TxCorporateTax:
			tc.CorporateTax = tc.CorporateTax.Add(tx.Amount)
		}
	}
	tc.TotalTax = tc.ConsumeTax.Add(tc.LaborTax).Add(tc.CorporateTax)
	return tc
}
