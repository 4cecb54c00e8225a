package economy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/ledger"
	"github.com/agentsim/economy-engine/internal/model"
	"github.com/agentsim/economy-engine/internal/redistribute"
	"github.com/agentsim/economy-engine/internal/tax"
)

// GetTaxPolicy handles GET /api/v1/tax/policy
func (s *Service) GetTaxPolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.taxEngine().Policy())
}

// UpdateTaxPolicy handles PUT /api/v1/tax/policy
// The policy is replaced whole; a body that fails validation leaves the
// current policy untouched.
func (s *Service) UpdateTaxPolicy(w http.ResponseWriter, r *http.Request) {
	var req model.TaxPolicy
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	engine, err := tax.NewEngine(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.taxes = engine
	s.mu.Unlock()
	slog.Info("tax policy replaced",
		"brackets", len(req.IncomeBrackets),
		"vat", req.VATRate.String(),
		"corporate", req.CorporateTaxRate.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(engine.Policy())
}

// SettleRequest is the JSON body for POST /tax/settle.
type SettleRequest struct {
	Month int `json:"month"`
}

// SettleCorporateTax handles POST /api/v1/tax/settle
// Charges every firm corporate tax on its monthly profit. Idempotent per
// month; a repeat settlement returns 409.
func (s *Service) SettleCorporateTax(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	charged, err := s.ledger.SettleCorporateTax(req.Month, s.params.GovernmentID, s.taxEngine().CorporateRate())
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadySettled) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("corporate tax settled", "month", req.Month, "firms", len(charged))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(charged)
}

// RedistributeRequest is the JSON body for POST /redistribute.
type RedistributeRequest struct {
	Month    int             `json:"month"`
	Strategy string          `json:"strategy"`
	Budget   decimal.Decimal `json:"budget"`

	// MixWeights is read only by the mixed strategy.
	MixWeights map[string]decimal.Decimal `json:"mix_weights,omitempty"`

	// FamilySizes is read only by the family_size and mixed strategies;
	// absent households count as size 1.
	FamilySizes map[string]int `json:"family_sizes,omitempty"`
}

// RedistributeResponse is the JSON body returned from POST /redistribute.
type RedistributeResponse struct {
	Allocations map[string]decimal.Decimal `json:"allocations"`
	Paid        decimal.Decimal            `json:"paid"`
	Recipients  int                        `json:"recipients"`
	PerCapita   decimal.Decimal            `json:"per_capita"`
	Skipped     []string                   `json:"skipped,omitempty"`
}

// Redistribute handles POST /api/v1/redistribute
// Splits a transfer budget across registered households by strategy and
// pays it from the government account. An omitted budget defaults to the
// month's total tax collection.
func (s *Service) Redistribute(w http.ResponseWriter, r *http.Request) {
	var req RedistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.params.RedistributionStrategy
	}
	budget := req.Budget
	if budget.IsZero() {
		budget = s.ledger.MonthlyTaxCollection(req.Month, s.params.GovernmentID).TotalTax
	}
	if budget.IsNegative() {
		writeError(w, "budget must not be negative", http.StatusBadRequest)
		return
	}

	employed := s.jobs.EmployedHouseholds()
	var households []redistribute.Household
	for _, id := range s.ledger.AgentsByType(model.AgentHousehold) {
		income, _, balance := s.ledger.HouseholdMonthlyStats(id, req.Month)
		size := req.FamilySizes[id]
		if size == 0 {
			size = 1
		}
		households = append(households, redistribute.Household{
			ID:         id,
			Income:     income,
			Balance:    balance,
			FamilySize: size,
			Employed:   employed[id],
		})
	}

	allocations, err := redistribute.Allocate(strategy, budget, households, req.MixWeights)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.ledger.ApplyRedistribution(req.Month, s.params.GovernmentID, allocations)
	slog.Info("redistribution executed",
		"month", req.Month,
		"strategy", strategy,
		"budget", budget.String(),
		"paid", result.Paid.String(),
		"recipients", result.Recipients,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RedistributeResponse{
		Allocations: allocations,
		Paid:        result.Paid,
		Recipients:  result.Recipients,
		PerCapita:   s.ledger.RedistributionPerCapita(req.Month),
		Skipped:     result.Skipped,
	})
}

// GetPeriodStats handles GET /api/v1/periods/{month}/stats
func (s *Service) GetPeriodStats(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.PeriodStats(month))
}

// GetTaxCollection handles GET /api/v1/periods/{month}/taxes
func (s *Service) GetTaxCollection(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.MonthlyTaxCollection(month, s.params.GovernmentID))
}

// GetGDP handles GET /api/v1/periods/{month}/gdp
func (s *Service) GetGDP(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.gdp.Monthly(month))
}
