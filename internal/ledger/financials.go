package ledger

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

// firmFinancialsFor returns the firm's bucket for the month, creating it on
// first touch. Callers hold the lock.
func (c *Core) firmFinancialsFor(firmID string, month int) *model.FirmFinancials {
	byMonth, ok := c.firmMonthly[firmID]
	if !ok {
		byMonth = make(map[int]*model.FirmFinancials)
		c.firmMonthly[firmID] = byMonth
	}
	fin, ok := byMonth[month]
	if !ok {
		fin = &model.FirmFinancials{}
		byMonth[month] = fin
	}
	return fin
}

// FirmMonthlyFinancials returns a copy of one firm's figures for one month.
func (c *Core) FirmMonthlyFinancials(firmID string, month int) model.FirmFinancials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.firmFinancialsFor(firmID, month)
}

// RecordProductionCost attributes a non-ledger production cost to a firm's
// monthly figures without moving money.
func (c *Core) RecordProductionCost(firmID string, month int, cost decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fin := c.firmFinancialsFor(firmID, month)
	fin.ProductionCost = fin.ProductionCost.Add(cost)
}

// AggregateFirmProfits sums every firm's monthly profit, counting losses at
// zero.
func (c *Core) AggregateFirmProfits(month int) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := decimal.Zero
	for _, byMonth := range c.firmMonthly {
		fin, ok := byMonth[month]
		if !ok {
			continue
		}
		profit := fin.Income.Sub(fin.Expenses)
		if profit.IsPositive() {
			sum = sum.Add(profit)
		}
	}
	return sum
}

// PurchaseResult reports the money legs of a completed purchase.
type PurchaseResult struct {
	Tx        *model.Transaction
	TaxTx     *model.Transaction
	TotalCost decimal.Decimal
	VAT       decimal.Decimal
}

// PendingPurchase is a purchase whose money has moved but whose records are
// not yet in the log. Commit it once the goods side settled, or abort it to
// put the money back. Log records only ever describe fully applied
// purchases.
type PendingPurchase struct {
	month    int
	buyerID  string
	sellerID string
	govID    string
	price    decimal.Decimal
	vat      decimal.Decimal
	txType   string
	meta     map[string]string
	done     bool
}

// BeginPurchase moves the money side of a goods purchase: the buyer pays
// price plus VAT, the seller receives the pre-tax price, and the government
// receives the VAT. A zero vat amount (government procurement, firm resource
// buying) produces no tax leg. Either both legs apply or neither does.
func (c *Core) BeginPurchase(month int, buyerID, sellerID, govID string, price, vat decimal.Decimal, txType string, meta map[string]string) (*PendingPurchase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := price.Add(vat)
	if c.isBlockedAtZero(buyerID) && c.balances[buyerID].LessThan(total) {
		metrics.InsufficientFundsTotal.Inc()
		return nil, fmt.Errorf("%w: %s has %s, purchase needs %s",
			ErrInsufficientFunds, buyerID, c.balances[buyerID], total)
	}

	if err := c.transfer(buyerID, sellerID, price); err != nil {
		return nil, err
	}
	if vat.IsPositive() {
		if err := c.transfer(buyerID, govID, vat); err != nil {
			c.reverse(buyerID, sellerID, price)
			return nil, err
		}
	}

	return &PendingPurchase{
		month:    month,
		buyerID:  buyerID,
		sellerID: sellerID,
		govID:    govID,
		price:    price,
		vat:      vat,
		txType:   txType,
		meta:     meta,
	}, nil
}

// CommitPurchase writes the pending purchase's records to the log and folds
// it into firm financials. The VAT record is tied to the purchase record.
func (c *Core) CommitPurchase(p *PendingPurchase) *PurchaseResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.done {
		return nil
	}
	p.done = true

	if c.agentTypes[p.sellerID] == model.AgentFirm {
		fin := c.firmFinancialsFor(p.sellerID, p.month)
		fin.Income = fin.Income.Add(p.price)
	}
	if c.agentTypes[p.buyerID] == model.AgentFirm {
		fin := c.firmFinancialsFor(p.buyerID, p.month)
		fin.Expenses = fin.Expenses.Add(p.price)
	}

	tx := model.NewTransaction(p.buyerID, p.sellerID, p.price, p.txType, p.month)
	tx.Metadata = p.meta
	c.appendTx(tx)

	res := &PurchaseResult{Tx: tx, TotalCost: p.price.Add(p.vat), VAT: p.vat}
	if p.vat.IsPositive() {
		taxTx := model.NewTransaction(p.buyerID, p.govID, p.vat, model.TxConsumeTax, p.month)
		taxTx.RelatedTxID = tx.ID
		c.appendTx(taxTx)
		res.TaxTx = taxTx
	}
	return res
}

// AbortPurchase puts the pending purchase's money back. Nothing reaches the
// log.
func (c *Core) AbortPurchase(p *PendingPurchase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.done {
		return
	}
	p.done = true

	c.reverse(p.buyerID, p.sellerID, p.price)
	if p.vat.IsPositive() {
		c.reverse(p.buyerID, p.govID, p.vat)
	}
}

// ApplyPurchase is the one-shot path: begin and commit with no goods step in
// between.
func (c *Core) ApplyPurchase(month int, buyerID, sellerID, govID string, price, vat decimal.Decimal, txType string, meta map[string]string) (*PurchaseResult, error) {
	p, err := c.BeginPurchase(month, buyerID, sellerID, govID, price, vat, txType, meta)
	if err != nil {
		return nil, err
	}
	return c.CommitPurchase(p), nil
}

// WageResult reports the money legs of one wage payment.
type WageResult struct {
	Tx    *model.Transaction
	TaxTx *model.Transaction
	Gross decimal.Decimal
	Net   decimal.Decimal
	Tax   decimal.Decimal
}

// ApplyWage pays one worker: the firm is debited the gross wage, the
// household receives the net, and the government receives the withheld
// income tax as a labor_tax record. Firms may go negative paying wages.
func (c *Core) ApplyWage(month int, firmID, householdID, govID string, gross, net, tax decimal.Decimal, meta map[string]string) (*WageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transfer(firmID, householdID, net); err != nil {
		return nil, err
	}
	if tax.IsPositive() {
		if err := c.transfer(firmID, govID, tax); err != nil {
			c.reverse(firmID, householdID, net)
			return nil, err
		}
	}

	fin := c.firmFinancialsFor(firmID, month)
	fin.Expenses = fin.Expenses.Add(gross)
	fin.Wage = fin.Wage.Add(gross)

	tx := model.NewTransaction(firmID, householdID, net, model.TxLaborPayment, month)
	tx.Metadata = meta
	c.appendTx(tx)

	res := &WageResult{Tx: tx, Gross: gross, Net: net, Tax: tax}
	if tax.IsPositive() {
		taxTx := model.NewTransaction(firmID, govID, tax, model.TxLaborTax, month)
		taxTx.RelatedTxID = tx.ID
		c.appendTx(taxTx)
		res.TaxTx = taxTx
	}
	return res, nil
}

// ErrAlreadySettled marks a corporate tax settlement attempted twice for the
// same month.
var ErrAlreadySettled = fmt.Errorf("ledger: corporate tax already settled")

// SettleCorporateTax charges every firm rate times its positive monthly
// profit and pays the government. Settlement is idempotent per month; a
// second call returns ErrAlreadySettled without moving money. Firms with no
// profit owe nothing; firms short of cash go negative.
func (c *Core) SettleCorporateTax(month int, govID string, rate decimal.Decimal) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.corporateTaxSettled[month] {
		return nil, fmt.Errorf("%w: month %d", ErrAlreadySettled, month)
	}
	c.corporateTaxSettled[month] = true

	charged := make(map[string]decimal.Decimal)
	for firmID, byMonth := range c.firmMonthly {
		fin, ok := byMonth[month]
		if !ok {
			continue
		}
		profit := fin.Income.Sub(fin.Expenses)
		if !profit.IsPositive() {
			continue
		}
		due := profit.Mul(rate)
		if !due.IsPositive() {
			continue
		}
		// Firms are never blocked at zero, so this cannot fail.
		if err := c.transfer(firmID, govID, due); err != nil {
			slog.Error("corporate tax transfer failed", "firm", firmID, "err", err)
			continue
		}
		fin.Tax = fin.Tax.Add(due)
		tx := model.NewTransaction(firmID, govID, due, model.TxCorporateTax, month)
		c.appendTx(tx)
		charged[firmID] = due
	}
	return charged, nil
}

// RedistributionResult summarizes one month's payout round.
type RedistributionResult struct {
	Paid       decimal.Decimal
	Recipients int
	Skipped    []string
}

// ApplyRedistribution pays each allocated household from the government
// account. Households the government cannot cover are skipped and reported
// rather than failing the whole round.
func (c *Core) ApplyRedistribution(month int, govID string, allocations map[string]decimal.Decimal) RedistributionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res RedistributionResult
	res.Paid = decimal.Zero
	for householdID, amount := range allocations {
		if !amount.IsPositive() {
			continue
		}
		if err := c.transfer(govID, householdID, amount); err != nil {
			slog.Warn("redistribution payment skipped",
				"household", householdID, "amount", amount.String(), "err", err)
			res.Skipped = append(res.Skipped, householdID)
			continue
		}
		tx := model.NewTransaction(govID, householdID, amount, model.TxRedistribution, month)
		c.appendTx(tx)
		res.Paid = res.Paid.Add(amount)
		res.Recipients++
	}
	if res.Recipients > 0 {
		c.redistributionPerCap[month] = res.Paid.Div(decimal.NewFromInt(int64(res.Recipients)))
	}
	return res
}

// AddInterest credits interest from a bank to an account holder.
func (c *Core) AddInterest(month int, bankID, agentID string, amount decimal.Decimal) (*model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transfer(bankID, agentID, amount); err != nil {
		return nil, err
	}
	tx := model.NewTransaction(bankID, agentID, amount, model.TxInterest, month)
	c.appendTx(tx)
	return tx, nil
}

// AddServiceCharge debits a service fee from the payer. Household payers
// must cover the fee in full.
func (c *Core) AddServiceCharge(month int, payerID, providerID string, amount decimal.Decimal, meta map[string]string) (*model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transfer(payerID, providerID, amount); err != nil {
		return nil, err
	}
	if c.agentTypes[providerID] == model.AgentFirm {
		fin := c.firmFinancialsFor(providerID, month)
		fin.Income = fin.Income.Add(amount)
	}
	tx := model.NewTransaction(payerID, providerID, amount, model.TxService, month)
	tx.Metadata = meta
	c.appendTx(tx)
	return tx, nil
}
