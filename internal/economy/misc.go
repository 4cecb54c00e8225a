package economy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

// InterestRequest is the JSON body for POST /interest.
type InterestRequest struct {
	Month   int             `json:"month"`
	BankID  string          `json:"bank_id"`
	AgentID string          `json:"agent_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// PayInterest handles POST /api/v1/interest
func (s *Service) PayInterest(w http.ResponseWriter, r *http.Request) {
	var req InterestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if t, ok := s.ledger.AgentType(req.BankID); !ok || t != model.AgentBank {
		writeError(w, "bank_id must be a bank agent", http.StatusForbidden)
		return
	}

	tx, err := s.ledger.AddInterest(req.Month, req.BankID, req.AgentID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	s.broadcastTx(tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// ServiceChargeRequest is the JSON body for POST /service-charge.
type ServiceChargeRequest struct {
	Month      int             `json:"month"`
	PayerID    string          `json:"payer_id"`
	ProviderID string          `json:"provider_id"`
	Amount     decimal.Decimal `json:"amount"`
	Service    string          `json:"service"`
}

// ChargeService handles POST /api/v1/service-charge
func (s *Service) ChargeService(w http.ResponseWriter, r *http.Request) {
	var req ServiceChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	tx, err := s.ledger.AddServiceCharge(req.Month, req.PayerID, req.ProviderID,
		req.Amount, map[string]string{"service": req.Service})
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	s.broadcastTx(tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// ProductionCostRequest is the JSON body for POST /production-cost.
type ProductionCostRequest struct {
	Month  int             `json:"month"`
	FirmID string          `json:"firm_id"`
	Cost   decimal.Decimal `json:"cost"`
}

// RecordProductionCost handles POST /api/v1/production-cost
// Attributes a non-ledger production cost to the firm's monthly figures.
func (s *Service) RecordProductionCost(w http.ResponseWriter, r *http.Request) {
	var req ProductionCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirmID == "" || req.Cost.IsNegative() {
		writeError(w, "firm_id and a non-negative cost are required", http.StatusBadRequest)
		return
	}

	s.ledger.RecordProductionCost(req.FirmID, req.Month, req.Cost)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.FirmMonthlyFinancials(req.FirmID, req.Month))
}

// GetFirmFinancials handles GET /api/v1/firms/{firmID}/financials/{month}
func (s *Service) GetFirmFinancials(w http.ResponseWriter, r *http.Request) {
	firmID := chi.URLParam(r, "firmID")
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, "invalid month", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.FirmMonthlyFinancials(firmID, month))
}

// InherentMarketRequest is the JSON body for POST /inherent-market.
type InherentMarketRequest struct {
	Month     int             `json:"month"`
	BuyerID   string          `json:"buyer_id"`
	MarketID  string          `json:"market_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ExecuteInherentMarketSale handles POST /api/v1/inherent-market
// Buying from an always-stocked market agent. No VAT; the record carries
// the inherent_market type so period statistics keep the channel separate.
func (s *Service) ExecuteInherentMarketSale(w http.ResponseWriter, r *http.Request) {
	var req InherentMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if t, ok := s.ledger.AgentType(req.MarketID); !ok || t != model.AgentMarket {
		writeError(w, "market_id must be a market agent", http.StatusForbidden)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	product, err := s.goods.Product(req.MarketID, req.ProductID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	price := product.Price.Mul(req.Quantity)

	pending, err := s.ledger.BeginPurchase(req.Month, req.BuyerID, req.MarketID,
		s.params.GovernmentID, price, decimal.Zero, model.TxInherentMarket,
		map[string]string{"product_id": req.ProductID, "quantity": req.Quantity.String()})
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	if err := s.goods.DirectSell(req.Month, req.BuyerID, req.MarketID, req.ProductID, req.Quantity, price); err != nil {
		s.ledger.AbortPurchase(pending)
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	result := s.ledger.CommitPurchase(pending)
	s.broadcastTx(result.Tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PurchaseResponse{
		Transaction: result.Tx,
		TotalCost:   result.TotalCost,
		VAT:         decimal.Zero,
	})
}

// GetIncomeTax handles GET /api/v1/tax/income?gross=
// Pure calculation, no ledger effect.
func (s *Service) GetIncomeTax(w http.ResponseWriter, r *http.Request) {
	gross, err := decimal.NewFromString(r.URL.Query().Get("gross"))
	if err != nil {
		writeError(w, "gross query parameter is required", http.StatusBadRequest)
		return
	}
	if gross.IsNegative() {
		writeError(w, "gross must not be negative", http.StatusBadRequest)
		return
	}

	net, withheld := s.taxEngine().NetWage(gross)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{
		"gross": gross,
		"tax":   withheld,
		"net":   net,
	})
}
