// Package economy provides the HTTP handlers and business logic tying the
// ledger, the goods market, the labor market, and the tax engine into one
// simulation backend.
//
// All monetary values use shopspring/decimal — never float64 for money.
package economy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/gdp"
	"github.com/agentsim/economy-engine/internal/inventory"
	"github.com/agentsim/economy-engine/internal/labor"
	"github.com/agentsim/economy-engine/internal/ledger"
	"github.com/agentsim/economy-engine/internal/model"
	"github.com/agentsim/economy-engine/internal/oracle"
	"github.com/agentsim/economy-engine/internal/tax"
)

// Params carries the simulation constants the service needs at runtime.
type Params struct {
	GovernmentID           string
	OfferPolicy            string
	AvgWeeklyHours         int64
	PeriodsPerMonth        int64
	RedistributionStrategy string
}

// Service handles economy operations. Each underlying component serializes
// its own state; the service mutex only guards the tax engine swap.
type Service struct {
	ledger *ledger.Core
	goods  *inventory.Market
	jobs   *labor.Market
	gdp    *gdp.Calculator

	mu    sync.RWMutex
	taxes *tax.Engine

	params Params
	wsHub  *WSHub         // optional WebSocket hub for transaction broadcasts
	oracle *oracle.Client // optional decision service, see SetOracle
}

// NewService creates a new economy service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(core *ledger.Core, goods *inventory.Market, jobs *labor.Market, taxes *tax.Engine, params Params, hub *WSHub) *Service {
	if params.OfferPolicy == "" {
		params.OfferPolicy = labor.PolicyBestLoss
	}
	if params.AvgWeeklyHours == 0 {
		params.AvgWeeklyHours = 40
	}
	if params.PeriodsPerMonth == 0 {
		params.PeriodsPerMonth = 4
	}
	return &Service{
		ledger: core,
		goods:  goods,
		jobs:   jobs,
		gdp:    gdp.NewCalculator(core),
		taxes:  taxes,
		params: params,
		wsHub:  hub,
	}
}

// taxEngine returns the current tax engine. The engine is swapped whole on
// policy updates, never mutated.
func (s *Service) taxEngine() *tax.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taxes
}

// Routes mounts every handler on a fresh router.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/agents", s.CreateAgent)
	r.Get("/agents/{agentID}/balance", s.GetBalance)
	r.Get("/agents/{agentID}/summary", s.GetFinancialSummary)
	r.Get("/agents/{agentID}/monthly/{month}", s.GetHouseholdMonthly)
	r.Post("/transfer", s.ExecuteTransfer)
	r.Get("/transactions", s.ListTransactions)

	r.Post("/inventory/stock", s.AddStock)
	r.Get("/inventory/{sellerID}", s.GetInventory)
	r.Post("/inventory/reserve", s.ReserveStock)
	r.Post("/inventory/release", s.ReleaseReservation)
	r.Post("/purchase", s.ExecutePurchase)
	r.Post("/shop", s.Shop)
	r.Post("/purchase/direct", s.ExecuteDirectPurchase)
	r.Post("/procurement", s.ExecuteProcurement)
	r.Post("/resources", s.ExecuteResourcePurchase)
	r.Post("/inherent-market", s.ExecuteInherentMarketSale)

	r.Post("/jobs", s.PostJob)
	r.Get("/jobs", s.ListOpenJobs)
	r.Post("/jobs/apply", s.ApplyForJobs)
	r.Post("/jobs/offers", s.MakeOffers)
	r.Post("/jobs/offers/decide", s.DecideOffers)
	r.Post("/jobs/resolve", s.ResolveOffers)
	r.Get("/jobs/matches", s.ListMatches)
	r.Post("/wages", s.PayWage)
	r.Post("/interest", s.PayInterest)
	r.Post("/service-charge", s.ChargeService)
	r.Post("/production-cost", s.RecordProductionCost)
	r.Get("/firms/{firmID}/financials/{month}", s.GetFirmFinancials)

	r.Get("/tax/policy", s.GetTaxPolicy)
	r.Get("/tax/income", s.GetIncomeTax)
	r.Put("/tax/policy", s.UpdateTaxPolicy)
	r.Post("/tax/settle", s.SettleCorporateTax)
	r.Post("/redistribute", s.Redistribute)

	r.Get("/periods/{month}/stats", s.GetPeriodStats)
	r.Get("/periods/{month}/taxes", s.GetTaxCollection)
	r.Get("/periods/{month}/gdp", s.GetGDP)
	r.Get("/periods/{month}/sales", s.GetSalesStats)
	r.Get("/periods/{month}/unmet-demand", s.GetUnmetDemand)

	return r
}

// --- Ledger handlers ---

// CreateAgentRequest is the JSON body for POST /agents.
type CreateAgentRequest struct {
	AgentID        string          `json:"agent_id"`
	AgentType      model.AgentType `json:"agent_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// CreateAgent handles POST /api/v1/agents
func (s *Service) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		writeError(w, "agent_id is required", http.StatusBadRequest)
		return
	}
	switch req.AgentType {
	case model.AgentHousehold, model.AgentFirm, model.AgentGovernment, model.AgentBank, model.AgentMarket:
	default:
		writeError(w, "unknown agent_type", http.StatusBadRequest)
		return
	}
	if req.InitialBalance.IsNegative() {
		writeError(w, "initial_balance must not be negative", http.StatusBadRequest)
		return
	}

	s.ledger.InitLedger(req.AgentID, req.AgentType, req.InitialBalance)
	slog.Info("agent registered",
		"agent", req.AgentID,
		"type", string(req.AgentType),
		"balance", req.InitialBalance.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{
		"balance": s.ledger.QueryBalance(req.AgentID),
	})
}

// GetBalance handles GET /api/v1/agents/{agentID}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{
		"balance": s.ledger.QueryBalance(agentID),
	})
}

// GetFinancialSummary handles GET /api/v1/agents/{agentID}/summary
func (s *Service) GetFinancialSummary(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.QueryFinancialSummary(agentID))
}

// GetHouseholdMonthly handles GET /api/v1/agents/{agentID}/monthly/{month}
func (s *Service) GetHouseholdMonthly(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, "invalid month", http.StatusBadRequest)
		return
	}

	income, expense, balance := s.ledger.HouseholdMonthlyStats(agentID, month)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{
		"income":  income,
		"expense": expense,
		"balance": balance,
	})
}

// TransferRequest is the JSON body for POST /transfer.
type TransferRequest struct {
	Month      int             `json:"month"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// ExecuteTransfer handles POST /api/v1/transfer
func (s *Service) ExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		writeError(w, "sender_id and receiver_id are required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	tx, err := s.ledger.Transfer(req.Month, req.SenderID, req.ReceiverID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	s.broadcastTx(tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// ListTransactions handles GET /api/v1/transactions
// Optional filters: ?month=, ?type=, ?party=.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var f ledger.TxFilter
	if v := r.URL.Query().Get("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "invalid month filter", http.StatusBadRequest)
			return
		}
		f.Month, f.HasMonth = month, true
	}
	f.Type = r.URL.Query().Get("type")
	f.PartyID = r.URL.Query().Get("party")

	txs := s.ledger.GetTransactions(f)
	if txs == nil {
		txs = []*model.Transaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// monthParam parses the {month} URL parameter.
func monthParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, "invalid month", http.StatusBadRequest)
		return 0, false
	}
	return month, true
}

// broadcastTx pushes a completed transaction to WebSocket clients.
func (s *Service) broadcastTx(tx *model.Transaction) {
	if s.wsHub == nil || tx == nil {
		return
	}
	s.wsHub.Broadcast(tx)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
