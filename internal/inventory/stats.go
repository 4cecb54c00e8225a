package inventory

import (
	"github.com/shopspring/decimal"
)

// Demand levels classify a product's monthly requested quantity.
const (
	DemandHigh   = "high"
	DemandNormal = "normal"
	DemandLow    = "low"
)

var (
	demandHighCutoff = decimal.NewFromInt(100)
	demandLowCutoff  = decimal.NewFromInt(10)
)

// SalesStats aggregates one (seller, product) pair for one month. Requested
// quantity counts both filled sales and unmet attempts, so demand is visible
// even when stock ran out.
type SalesStats struct {
	SellerID          string          `json:"seller_id"`
	ProductID         string          `json:"product_id"`
	UnitsSold         decimal.Decimal `json:"units_sold"`
	Revenue           decimal.Decimal `json:"revenue"`
	ReservedSales     int             `json:"reserved_sales"`
	DirectSales       int             `json:"direct_sales"`
	QuantityRequested decimal.Decimal `json:"qty_requested"`
	QuantityShort     decimal.Decimal `json:"qty_short"`
	FailedAttempts    int             `json:"failed_attempts"`
	DemandLevel       string          `json:"demand_level"`
}

// MonthlySalesStats folds the month's sales and unmet demand into per-pair
// aggregates keyed "seller/product".
func (m *Market) MonthlySalesStats(month int) map[string]SalesStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SalesStats)
	get := func(sellerID, productID string) SalesStats {
		key := sellerID + "/" + productID
		s, ok := out[key]
		if !ok {
			s = SalesStats{SellerID: sellerID, ProductID: productID}
		}
		return s
	}

	for _, sale := range m.sales {
		if sale.Month != month {
			continue
		}
		s := get(sale.SellerID, sale.ProductID)
		s.UnitsSold = s.UnitsSold.Add(sale.Quantity)
		s.Revenue = s.Revenue.Add(sale.Revenue)
		s.QuantityRequested = s.QuantityRequested.Add(sale.Quantity)
		if sale.Reserved {
			s.ReservedSales++
		} else {
			s.DirectSales++
		}
		out[sale.SellerID+"/"+sale.ProductID] = s
	}

	for key, u := range m.unmetDemand[month] {
		s, ok := out[key]
		if !ok {
			bySlash := splitKey(key)
			s = SalesStats{SellerID: bySlash[0], ProductID: bySlash[1]}
		}
		s.QuantityRequested = s.QuantityRequested.Add(u.QuantityRequested)
		s.QuantityShort = u.QuantityShort
		s.FailedAttempts = u.Attempts
		out[key] = s
	}

	for key, s := range out {
		switch {
		case s.QuantityRequested.GreaterThan(demandHighCutoff):
			s.DemandLevel = DemandHigh
		case s.QuantityRequested.LessThan(demandLowCutoff):
			s.DemandLevel = DemandLow
		default:
			s.DemandLevel = DemandNormal
		}
		out[key] = s
	}
	return out
}

func splitKey(key string) [2]string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return [2]string{key[:i], key[i+1:]}
		}
	}
	return [2]string{key, ""}
}
