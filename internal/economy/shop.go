package economy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
	"github.com/agentsim/economy-engine/internal/oracle"
)

// SetOracle attaches a decision service client. Without one the shop
// endpoint answers 503.
func (s *Service) SetOracle(c *oracle.Client) {
	s.oracle = c
}

// ShopRequest is the JSON body for POST /shop.
type ShopRequest struct {
	Month   int    `json:"month"`
	BuyerID string `json:"buyer_id"`

	// SellerIDs limits the catalog shown to the oracle. Empty means every
	// seller the buyer already knows is out of scope, so it must be set.
	SellerIDs []string `json:"seller_ids"`
}

// ShopResponse reports each attempted line of the plan.
type ShopResponse struct {
	Completed []PurchaseResponse `json:"completed"`
	Failed    []string           `json:"failed,omitempty"`
}

// Shop handles POST /api/v1/shop
// Asks the decision oracle what the buyer purchases this month and settles
// each line through the reservation pipeline. Lines that cannot be reserved
// or paid are reported, not retried.
func (s *Service) Shop(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, "decision oracle not configured", http.StatusServiceUnavailable)
		return
	}

	var req ShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" || len(req.SellerIDs) == 0 {
		writeError(w, "buyer_id and seller_ids are required", http.StatusBadRequest)
		return
	}

	var catalog []model.Product
	for _, sellerID := range req.SellerIDs {
		catalog = append(catalog, s.goods.SellerInventory(sellerID)...)
	}

	plan, err := s.oracle.PurchasePlan(r.Context(), req.Month, req.BuyerID,
		s.ledger.QueryBalance(req.BuyerID), catalog)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	var resp ShopResponse
	for _, line := range plan {
		result, err := s.settleReservedPurchase(req.Month, req.BuyerID, line)
		if err != nil {
			slog.Warn("shopping line failed",
				"buyer", req.BuyerID,
				"seller", line.SellerID,
				"product", line.ProductID,
				"err", err,
			)
			resp.Failed = append(resp.Failed, line.SellerID+"/"+line.ProductID)
			continue
		}
		resp.Completed = append(resp.Completed, *result)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// settleReservedPurchase runs one plan line through reserve, pay, confirm.
func (s *Service) settleReservedPurchase(month int, buyerID string, line oracle.PurchaseIntent) (*PurchaseResponse, error) {
	res, err := s.goods.Reserve(month, buyerID, line.SellerID, line.ProductID, line.Quantity)
	if err != nil {
		return nil, err
	}

	product, err := s.goods.Product(res.SellerID, res.ProductID)
	if err != nil {
		s.goods.Release(res.ReservationID)
		return nil, err
	}
	price := product.Price.Mul(res.Quantity)

	vat := decimal.Zero
	if t, _ := s.ledger.AgentType(buyerID); t == model.AgentHousehold {
		_, vat = s.taxEngine().VATSplit(price)
	}

	pending, err := s.ledger.BeginPurchase(month, buyerID, res.SellerID,
		s.params.GovernmentID, price, vat, model.TxPurchase, map[string]string{
			"product_id":     res.ProductID,
			"quantity":       res.Quantity.String(),
			"reservation_id": res.ReservationID,
			"channel":        "oracle",
		})
	if err != nil {
		s.goods.Release(res.ReservationID)
		return nil, err
	}
	if err := s.goods.Confirm(month, res.ReservationID, price); err != nil {
		s.ledger.AbortPurchase(pending)
		return nil, err
	}
	result := s.ledger.CommitPurchase(pending)
	s.broadcastTx(result.Tx)

	return &PurchaseResponse{
		Transaction:    result.Tx,
		TaxTransaction: result.TaxTx,
		TotalCost:      result.TotalCost,
		VAT:            result.VAT,
	}, nil
}
