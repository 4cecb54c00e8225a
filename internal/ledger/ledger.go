// Package ledger implements the central ledger and transaction core: agent
// balances, the transfer primitive, the append-only transaction log with its
// month/type/party indexes, per-firm monthly financials, and month-end
// corporate tax settlement.
//
// The Core is one actor: a single mutex serializes every exported operation,
// so composite flows (taxed purchase, wage split, settlement) observe and
// mutate a consistent snapshot without finer-grained locking.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a household or government
	// account cannot cover a debit. Firm accounts never hit this: they
	// proceed into negative balance with a logged warning.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrUnknownAgent is returned by operations that require the agent to
	// have been registered (most lookups lazily create instead).
	ErrUnknownAgent = errors.New("ledger: unknown agent")
)

// Core owns all account balances. Balances are mutated only through its
// operations; callers never reach into shared structures.
type Core struct {
	mu sync.Mutex

	balances   map[string]decimal.Decimal
	agentTypes map[string]model.AgentType

	txHistory []*model.Transaction
	txByMonth map[int][]*model.Transaction
	txByType  map[string][]*model.Transaction
	txByParty map[string][]*model.Transaction

	periodStats map[int]*model.PeriodStatistics

	// firmMonthly[firmID][month] — accumulated income/expenses/wage/tax.
	firmMonthly          map[string]map[int]*model.FirmFinancials
	corporateTaxSettled  map[int]bool
	redistributionPerCap map[int]decimal.Decimal
}

// NewCore creates an empty ledger core.
func NewCore() *Core {
	return &Core{
		balances:             make(map[string]decimal.Decimal),
		agentTypes:           make(map[string]model.AgentType),
		txByMonth:            make(map[int][]*model.Transaction),
		txByType:             make(map[string][]*model.Transaction),
		txByParty:            make(map[string][]*model.Transaction),
		periodStats:          make(map[int]*model.PeriodStatistics),
		firmMonthly:          make(map[string]map[int]*model.FirmFinancials),
		corporateTaxSettled:  make(map[int]bool),
		redistributionPerCap: make(map[int]decimal.Decimal),
	}
}

// InitLedger creates an account with an initial amount and registers the
// agent type. An existing account is never overwritten.
func (c *Core) InitLedger(agentID string, agentType model.AgentType, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.balances[agentID]; !ok {
		c.balances[agentID] = amount
	}
	c.agentTypes[agentID] = agentType
}

// QueryBalance returns the current balance; unknown agents read as zero.
func (c *Core) QueryBalance(agentID string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[agentID]
}

// AgentType reports the registered type of an agent.
func (c *Core) AgentType(agentID string) (model.AgentType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.agentTypes[agentID]
	return t, ok
}

// AgentsByType lists registered agent IDs of one type.
func (c *Core) AgentsByType(t model.AgentType) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, at := range c.agentTypes {
		if at == t {
			ids = append(ids, id)
		}
	}
	return ids
}

// Deposit adds funds to an account, lazily creating it as a market account.
// Used for issuance-style flows (initial endowments, bank interest sources).
func (c *Core) Deposit(agentID string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureAccount(agentID)
	c.balances[agentID] = c.balances[agentID].Add(amount)
}

// ensureAccount lazily creates an account at zero. Callers hold the lock.
// Agents first seen inside a transfer default to the market type so the
// household zero-floor rule never applies to synthetic counterparties.
func (c *Core) ensureAccount(agentID string) {
	if _, ok := c.balances[agentID]; !ok {
		c.balances[agentID] = decimal.Zero
	}
	if _, ok := c.agentTypes[agentID]; !ok {
		c.agentTypes[agentID] = model.AgentMarket
	}
}

// isBlockedAtZero reports whether the agent's balance is hard-floored.
// Callers hold the lock.
func (c *Core) isBlockedAtZero(agentID string) bool {
	switch c.agentTypes[agentID] {
	case model.AgentHousehold, model.AgentGovernment:
		return true
	default:
		return false
	}
}

// transfer is the core primitive: decrement from, increment to. It never
// fails for firm-type senders (negative balance allowed, logged) and fails
// with ErrInsufficientFunds for household/government senders short of funds.
// Callers hold the lock.
func (c *Core) transfer(from, to string, amount decimal.Decimal) error {
	c.ensureAccount(from)
	c.ensureAccount(to)

	if c.balances[from].LessThan(amount) {
		if c.isBlockedAtZero(from) {
			metrics.InsufficientFundsTotal.Inc()
			return fmt.Errorf("%w: %s has %s, needs %s",
				ErrInsufficientFunds, from, c.balances[from], amount)
		}
		slog.Warn("account going negative",
			"agent", from,
			"balance", c.balances[from].String(),
			"debit", amount.String(),
		)
	}

	c.balances[from] = c.balances[from].Sub(amount)
	c.balances[to] = c.balances[to].Add(amount)
	return nil
}

// reverse undoes a previously applied transfer during composite rollback.
// Callers hold the lock.
func (c *Core) reverse(from, to string, amount decimal.Decimal) {
	c.balances[from] = c.balances[from].Add(amount)
	c.balances[to] = c.balances[to].Sub(amount)
}

// Transfer moves money between two accounts and appends a transfer record.
func (c *Core) Transfer(month int, from, to string, amount decimal.Decimal) (*model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transfer(from, to, amount); err != nil {
		return nil, err
	}
	tx := model.NewTransaction(from, to, amount, model.TxTransfer, month)
	c.appendTx(tx)
	return tx, nil
}

// FinancialSummary is the rolled-up view of one agent's ledger history.
type FinancialSummary struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// QueryFinancialSummary returns balance plus accumulated firm income and
// expenses across all months. For non-firm agents the totals are zero.
func (c *Core) QueryFinancialSummary(agentID string) FinancialSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	income := decimal.Zero
	expenses := decimal.Zero
	for _, fin := range c.firmMonthly[agentID] {
		income = income.Add(fin.Income)
		expenses = expenses.Add(fin.Expenses)
	}
	return FinancialSummary{
		Balance:       c.balances[agentID],
		TotalIncome:   income,
		TotalExpenses: expenses,
		NetProfit:     income.Sub(expenses),
	}
}

// HouseholdMonthlyStats sums a household's in-month cash flows from the log:
// income from labor payments and interest, expenses from purchases (VAT
// included as real cash outflow) and services. Redistribution is excluded
// from income so redistribution strategies do not feed back on themselves.
func (c *Core) HouseholdMonthlyStats(householdID string, month int) (income, expense, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	income, expense = decimal.Zero, decimal.Zero
	for _, tx := range c.txByParty[householdID] {
		if tx.Month != month {
			continue
		}
		switch tx.Type {
		case model.TxPurchase, model.TxConsumeTax, model.TxService:
			if tx.SenderID == householdID {
				expense = expense.Add(tx.Amount)
			}
		case model.TxLaborPayment, model.TxInterest:
			if tx.ReceiverID == householdID {
				income = income.Add(tx.Amount)
			}
		}
	}
	return income, expense, c.balances[householdID]
}

// RedistributionPerCapita returns the average per-household redistribution
// recorded for a month, zero when none ran.
func (c *Core) RedistributionPerCapita(month int) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redistributionPerCap[month]
}

// SetRedistributionPerCapita records the month's average payout.
func (c *Core) SetRedistributionPerCapita(month int, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redistributionPerCap[month] = amount
}
