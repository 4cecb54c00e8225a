package economy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/inventory"
	"github.com/agentsim/economy-engine/internal/ledger"
	"github.com/agentsim/economy-engine/internal/model"
)

// AddStock handles POST /api/v1/inventory/stock
func (s *Service) AddStock(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.ProductID == "" {
		writeError(w, "owner_id and product_id are required", http.StatusBadRequest)
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, "amount must not be negative", http.StatusBadRequest)
		return
	}

	s.goods.AddStock(req)
	p, err := s.goods.Product(req.OwnerID, req.ProductID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// GetInventory handles GET /api/v1/inventory/{sellerID}
func (s *Service) GetInventory(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerID")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.goods.SellerInventory(sellerID))
}

// ReserveRequest is the JSON body for POST /inventory/reserve.
type ReserveRequest struct {
	Month     int             `json:"month"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ReserveStock handles POST /api/v1/inventory/reserve
func (s *Service) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" {
		writeError(w, "buyer_id is required", http.StatusBadRequest)
		return
	}

	res, err := s.goods.Reserve(req.Month, req.BuyerID, req.SellerID, req.ProductID, req.Quantity)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, inventory.ErrProductNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

// ReleaseRequest is the JSON body for POST /inventory/release.
type ReleaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

// ReleaseReservation handles POST /api/v1/inventory/release
func (s *Service) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.goods.Release(req.ReservationID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, inventory.ErrReservationNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurchaseRequest is the JSON body for POST /purchase.
type PurchaseRequest struct {
	Month         int    `json:"month"`
	ReservationID string `json:"reservation_id"`
}

// PurchaseResponse is the JSON body returned from the purchase endpoints.
type PurchaseResponse struct {
	Transaction    *model.Transaction `json:"transaction"`
	TaxTransaction *model.Transaction `json:"tax_transaction,omitempty"`
	TotalCost      decimal.Decimal    `json:"total_cost"`
	VAT            decimal.Decimal    `json:"vat"`
}

// ExecutePurchase handles POST /api/v1/purchase
// Settles a reserved purchase: validate the hold, move the money, then
// confirm the goods. Household buyers pay VAT on top of the listed price.
// If the goods side fails after payment, the money is put back.
func (s *Service) ExecutePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.goods.Validate(req.ReservationID)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, inventory.ErrReservationNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, err.Error(), status)
		return
	}

	product, err := s.goods.Product(res.SellerID, res.ProductID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	price := product.Price.Mul(res.Quantity)

	vat := decimal.Zero
	if t, _ := s.ledger.AgentType(res.BuyerID); t == model.AgentHousehold {
		_, vat = s.taxEngine().VATSplit(price)
	}

	pending, err := s.ledger.BeginPurchase(req.Month, res.BuyerID, res.SellerID,
		s.params.GovernmentID, price, vat, model.TxPurchase, map[string]string{
			"product_id":     res.ProductID,
			"quantity":       res.Quantity.String(),
			"reservation_id": res.ReservationID,
		})
	if err != nil {
		// A hold the buyer cannot pay for is dead weight; give the stock
		// back to other buyers instead of waiting out the TTL.
		s.goods.Release(res.ReservationID)
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			writeError(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.goods.Confirm(req.Month, res.ReservationID, price); err != nil {
		s.ledger.AbortPurchase(pending)
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	result := s.ledger.CommitPurchase(pending)

	slog.Info("purchase settled",
		"buyer", res.BuyerID,
		"seller", res.SellerID,
		"product", res.ProductID,
		"qty", res.Quantity.String(),
		"total", result.TotalCost.String(),
		"vat", vat.String(),
	)
	s.broadcastTx(result.Tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PurchaseResponse{
		Transaction:    result.Tx,
		TaxTransaction: result.TaxTx,
		TotalCost:      result.TotalCost,
		VAT:            result.VAT,
	})
}

// DirectPurchaseRequest is the JSON body for POST /purchase/direct.
type DirectPurchaseRequest struct {
	Month     int             `json:"month"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ExecuteDirectPurchase handles POST /api/v1/purchase/direct
// Pays first and takes goods second with no hold in between. Kept for
// callers that do not use reservations; between payment and the goods step
// another buyer can drain the stock, in which case the payment is reversed
// and the attempt counts as unmet demand.
func (s *Service) ExecuteDirectPurchase(w http.ResponseWriter, r *http.Request) {
	var req DirectPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	product, err := s.goods.Product(req.SellerID, req.ProductID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	price := product.Price.Mul(req.Quantity)

	vat := decimal.Zero
	if t, _ := s.ledger.AgentType(req.BuyerID); t == model.AgentHousehold {
		_, vat = s.taxEngine().VATSplit(price)
	}

	pending, err := s.ledger.BeginPurchase(req.Month, req.BuyerID, req.SellerID,
		s.params.GovernmentID, price, vat, model.TxPurchase, map[string]string{
			"product_id": req.ProductID,
			"quantity":   req.Quantity.String(),
			"channel":    "direct",
		})
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}

	if err := s.goods.DirectSell(req.Month, req.BuyerID, req.SellerID, req.ProductID, req.Quantity, price); err != nil {
		s.ledger.AbortPurchase(pending)
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	result := s.ledger.CommitPurchase(pending)
	s.broadcastTx(result.Tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PurchaseResponse{
		Transaction:    result.Tx,
		TaxTransaction: result.TaxTx,
		TotalCost:      result.TotalCost,
		VAT:            result.VAT,
	})
}

// ExecuteProcurement handles POST /api/v1/procurement
// Government buying is VAT exempt and recorded as government_procurement.
func (s *Service) ExecuteProcurement(w http.ResponseWriter, r *http.Request) {
	var req DirectPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if t, ok := s.ledger.AgentType(req.BuyerID); !ok || t != model.AgentGovernment {
		writeError(w, "buyer must be a government agent", http.StatusForbidden)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	product, err := s.goods.Product(req.SellerID, req.ProductID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	price := product.Price.Mul(req.Quantity)

	pending, err := s.ledger.BeginPurchase(req.Month, req.BuyerID, req.SellerID,
		s.params.GovernmentID, price, decimal.Zero, model.TxGovernmentProcurement,
		map[string]string{"product_id": req.ProductID, "quantity": req.Quantity.String()})
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	if err := s.goods.DirectSell(req.Month, req.BuyerID, req.SellerID, req.ProductID, req.Quantity, price); err != nil {
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

// ResourcePurchaseRequest is the JSON body for POST /resources.
type ResourcePurchaseRequest struct {
	Month      int             `json:"month"`
	BuyerID    string          `json:"buyer_id"`
	SellerID   string          `json:"seller_id"`
	ResourceID string          `json:"resource_id"`
	Cost       decimal.Decimal `json:"cost"`
}

// ExecuteResourcePurchase handles POST /api/v1/resources
// Firm-to-firm intermediate input buying. No VAT; the cost lands in the
// buyer's expenses and the seller's income.
func (s *Service) ExecuteResourcePurchase(w http.ResponseWriter, r *http.Request) {
	var req ResourcePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Cost.IsPositive() {
		writeError(w, "cost must be positive", http.StatusBadRequest)
		return
	}

	result, err := s.ledger.ApplyPurchase(req.Month, req.BuyerID, req.SellerID,
		s.params.GovernmentID, req.Cost, decimal.Zero, model.TxResourcePurchase,
		map[string]string{"resource_id": req.ResourceID})
	if err != nil {
		writeError(w, err.Error(), http.StatusPaymentRequired)
		return
	}
	s.broadcastTx(result.Tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PurchaseResponse{
		Transaction: result.Tx,
		TotalCost:   result.TotalCost,
		VAT:         decimal.Zero,
	})
}

// GetSalesStats handles GET /api/v1/periods/{month}/sales
func (s *Service) GetSalesStats(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.goods.MonthlySalesStats(month))
}

// GetUnmetDemand handles GET /api/v1/periods/{month}/unmet-demand
func (s *Service) GetUnmetDemand(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.goods.UnmetDemand(month))
}
