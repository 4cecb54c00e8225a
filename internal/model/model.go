// Package model defines the core domain types shared across the economy engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Matching scores and strategy weights are dimensionless and stay float64.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgentType classifies an account holder. Household and government accounts
// are hard-blocked at zero balance; firm accounts may go negative
// (debt-financed operation). Market accounts absorb abstract resource flows.
type AgentType string

const (
	AgentHousehold  AgentType = "household"
	AgentFirm       AgentType = "firm"
	AgentGovernment AgentType = "government"
	AgentBank       AgentType = "bank"
	AgentMarket     AgentType = "market"
)

// Transaction types — a closed tag set. Every balance-changing composite
// operation appends exactly one transaction of one of these types describing
// the net business event (tax splits are separate consume_tax / labor_tax /
// corporate_tax records so the audit trail sums to zero per composite).
const (
	TxPurchase              = "purchase"
	TxResourcePurchase      = "resource_purchase"
	TxProductSale           = "product_sale"
	TxLaborPayment          = "labor_payment"
	TxConsumeTax            = "consume_tax"
	TxLaborTax              = "labor_tax"
	TxCorporateTax          = "corporate_tax"
	TxRedistribution        = "redistribution"
	TxInterest              = "interest"
	TxService               = "service"
	TxInherentMarket        = "inherent_market"
	TxGovernmentProcurement = "government_procurement"
	TxTransfer              = "transfer"
)

// Transaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is an immutable record of one business event. Once appended to
// the log it is never modified or deleted — all statistics derive from it.
type Transaction struct {
	ID          string            `json:"id"`
	SenderID    string            `json:"sender_id"`
	ReceiverID  string            `json:"receiver_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Type        string            `json:"type"`
	Month       int               `json:"month"`
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RelatedTxID string            `json:"related_transaction_id,omitempty"`
}

// NewTransaction creates a completed transaction record with a fresh ID.
func NewTransaction(sender, receiver string, amount decimal.Decimal, txType string, month int) *Transaction {
	return &Transaction{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Type:       txType,
		Month:      month,
		Status:     StatusCompleted,
		Timestamp:  time.Now().UTC(),
	}
}

// Product is a stock entry owned by one seller. BasePrice and UnitCost are
// fixed at first assignment and keep the gross margin derivable even as Price
// fluctuates.
type Product struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	OwnerID        string          `json:"owner_id"`
	Amount         decimal.Decimal `json:"amount"`
	Price          decimal.Decimal `json:"price"`
	BasePrice      decimal.Decimal `json:"base_price"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Classification string          `json:"classification,omitempty"`
}

// Reservation statuses. Active is the only non-terminal state.
const (
	ReservationActive    = "active"
	ReservationConfirmed = "confirmed"
	ReservationReleased  = "released"
	ReservationExpired   = "expired"
)

// InventoryReservation is a time-boxed hold on seller stock. Available stock
// for new reservations = actual stock − Σ(active reservation quantities).
type InventoryReservation struct {
	ReservationID string          `json:"reservation_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	ProductID     string          `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Status        string          `json:"status"`
}

// UnmetDemand accumulates failed reservation attempts for one
// (seller, product) pair in one month. Diagnostic only, never blocking.
type UnmetDemand struct {
	Attempts          int             `json:"attempts"`
	QuantityRequested decimal.Decimal `json:"qty_requested"`
	QuantityShort     decimal.Decimal `json:"qty_short"`
}

// TraitRequirement describes one required trait for a job: the expected level
// distribution and how much a mismatch matters.
type TraitRequirement struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Importance float64 `json:"importance"`
}

// Job is a posting by a firm. PositionsAvailable decrements on each accepted
// offer; IsValid flips to false exactly when it reaches zero.
type Job struct {
	JobID              string                      `json:"job_id"`
	FirmID             string                      `json:"firm_id"`
	SOC                string                      `json:"soc"`
	Title              string                      `json:"title"`
	WagePerHour        decimal.Decimal             `json:"wage_per_hour"`
	RequiredSkills     map[string]TraitRequirement `json:"required_skills,omitempty"`
	RequiredAbilities  map[string]TraitRequirement `json:"required_abilities,omitempty"`
	PositionsAvailable int                         `json:"positions_available"`
	IsValid            bool                        `json:"is_valid"`
}

// WorkerProfile identifies one household member slot and its trait levels.
// LHType distinguishes members within a household ("head" or "spouse").
type WorkerProfile struct {
	HouseholdID  string             `json:"household_id"`
	LHType       string             `json:"lh_type"`
	Skills       map[string]float64 `json:"skills"`
	Abilities    map[string]float64 `json:"abilities"`
	ExpectedWage decimal.Decimal    `json:"expected_wage"`
}

// WorkerKey uniquely identifies a worker slot.
func (w WorkerProfile) WorkerKey() string { return w.HouseholdID + "/" + w.LHType }

// JobApplication is one (job, worker) application; a worker applies to a
// posting at most once.
type JobApplication struct {
	JobID        string             `json:"job_id"`
	HouseholdID  string             `json:"household_id"`
	LHType       string             `json:"lh_type"`
	ExpectedWage decimal.Decimal    `json:"expected_wage"`
	Skills       map[string]float64 `json:"worker_skills,omitempty"`
	Abilities    map[string]float64 `json:"worker_abilities,omitempty"`
	Month        int                `json:"month"`
	Loss         float64            `json:"loss"`
}

// Offer statuses.
const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
)

// Offer is a pending job offer to one worker. Accepting one offer rejects all
// other pending offers held by the same worker; a rejection promotes the next
// ranked backup candidate for the job.
type Offer struct {
	OfferID     string  `json:"offer_id"`
	JobID       string  `json:"job_id"`
	HouseholdID string  `json:"household_id"`
	LHType      string  `json:"lh_type"`
	Rank        int     `json:"rank"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
}

// WorkerKey identifies the worker slot holding this offer.
func (o *Offer) WorkerKey() string { return o.HouseholdID + "/" + o.LHType }

// MatchedJob is the durable record of a completed hire. A worker with a
// MatchedJob and no later termination event is employed.
type MatchedJob struct {
	Job             Job             `json:"job"`
	HouseholdID     string          `json:"household_id"`
	LHType          string          `json:"lh_type"`
	FirmID          string          `json:"firm_id"`
	AverageWage     decimal.Decimal `json:"average_wage"`
	SkillMatchScore float64         `json:"skill_match_score"`
	Month           int             `json:"month"`
}

// TaxBracket is one rung of the progressive income tax ladder. Cutoff is the
// income level where Rate begins to apply.
type TaxBracket struct {
	Cutoff decimal.Decimal `json:"cutoff"`
	Rate   decimal.Decimal `json:"rate"`
}

// TaxPolicy is an immutable snapshot of all tax parameters. Replacing it is a
// full-value swap, never a partial mutation.
type TaxPolicy struct {
	IncomeBrackets   []TaxBracket    `json:"income_brackets"`
	VATRate          decimal.Decimal `json:"vat_rate"`
	CorporateTaxRate decimal.Decimal `json:"corporate_tax_rate"`
}

// DefaultTaxPolicy returns the stock policy: six progressive brackets,
// 8% VAT, 21% corporate.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		IncomeBrackets: []TaxBracket{
			{Cutoff: decimal.Zero, Rate: decimal.NewFromFloat(0.10)},
			{Cutoff: decimal.NewFromInt(10000), Rate: decimal.NewFromFloat(0.15)},
			{Cutoff: decimal.NewFromInt(40000), Rate: decimal.NewFromFloat(0.22)},
			{Cutoff: decimal.NewFromInt(85000), Rate: decimal.NewFromFloat(0.24)},
			{Cutoff: decimal.NewFromInt(160000), Rate: decimal.NewFromFloat(0.32)},
			{Cutoff: decimal.NewFromInt(200000), Rate: decimal.NewFromFloat(0.35)},
		},
		VATRate:          decimal.NewFromFloat(0.08),
		CorporateTaxRate: decimal.NewFromFloat(0.21),
	}
}

// PeriodStatistics accumulates per-month aggregates as transactions append.
type PeriodStatistics struct {
	Period             int             `json:"period"`
	TotalTransactions  int             `json:"total_transactions"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	ProductVolume      decimal.Decimal `json:"product_volume"`
	WageVolume         decimal.Decimal `json:"wage_volume"`
	ResourceVolume     decimal.Decimal `json:"resource_volume"`
	TaxVolume          decimal.Decimal `json:"tax_volume"`
	TotalConsumption   decimal.Decimal `json:"total_consumption"`
	GovernmentSpending decimal.Decimal `json:"total_government_spending"`
}

// FirmFinancials tracks one firm's accumulated figures for one month.
type FirmFinancials struct {
	Income         decimal.Decimal `json:"income"`
	Expenses       decimal.Decimal `json:"expenses"`
	Wage           decimal.Decimal `json:"wage"`
	Tax            decimal.Decimal `json:"tax"`
	ProductionCost decimal.Decimal `json:"production_cost"`
}
