// Package inventory holds seller stock and the reservation protocol that
// keeps goods movement consistent with payment. A reservation places a
// time-boxed hold on stock; payment settles against the hold and then
// confirms it, so two buyers can never be sold the same units.
package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

var (
	// ErrProductNotFound is returned when the (seller, product) pair has no
	// stock entry.
	ErrProductNotFound = errors.New("inventory: product not found")

	// ErrInsufficientStock is returned when available stock cannot cover a
	// requested quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")

	// ErrReservationNotFound is returned for unknown reservation IDs.
	ErrReservationNotFound = errors.New("inventory: reservation not found")

	// ErrReservationNotActive is returned when confirming or releasing a
	// reservation that already reached a terminal state.
	ErrReservationNotActive = errors.New("inventory: reservation not active")

	// ErrReservationExpired is returned when settling against a hold whose
	// deadline has passed.
	ErrReservationExpired = errors.New("inventory: reservation expired")
)

// SaleRecord is one completed goods movement, kept for sales statistics.
type SaleRecord struct {
	SellerID  string
	ProductID string
	BuyerID   string
	Quantity  decimal.Decimal
	Revenue   decimal.Decimal
	Reserved  bool
	Month     int
}

// Market is the inventory actor. One mutex serializes every operation.
type Market struct {
	mu sync.Mutex

	// products is keyed seller then product.
	products     map[string]map[string]*model.Product
	reservations map[string]*model.InventoryReservation

	// unmetDemand is keyed by month, then "seller/product".
	unmetDemand map[int]map[string]*model.UnmetDemand
	sales       []SaleRecord

	reservationTTL time.Duration
	now            func() time.Time
}

// NewMarket creates an empty inventory market. Reservations placed on it
// expire after ttl.
func NewMarket(ttl time.Duration) *Market {
	return &Market{
		products:       make(map[string]map[string]*model.Product),
		reservations:   make(map[string]*model.InventoryReservation),
		unmetDemand:    make(map[int]map[string]*model.UnmetDemand),
		reservationTTL: ttl,
		now:            time.Now,
	}
}

// AddStock registers or tops up a seller's product. Price fields are set on
// first registration and left alone on top-ups unless the new price is
// positive.
func (m *Market) AddStock(p model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySeller, ok := m.products[p.OwnerID]
	if !ok {
		bySeller = make(map[string]*model.Product)
		m.products[p.OwnerID] = bySeller
	}
	existing, ok := bySeller[p.ProductID]
	if !ok {
		cp := p
		if cp.BasePrice.IsZero() {
			cp.BasePrice = cp.Price
		}
		bySeller[p.ProductID] = &cp
		return
	}
	existing.Amount = existing.Amount.Add(p.Amount)
	if p.Price.IsPositive() {
		existing.Price = p.Price
	}
}

// Product returns a copy of the seller's stock entry.
func (m *Market) Product(sellerID, productID string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[sellerID][productID]
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %s/%s", ErrProductNotFound, sellerID, productID)
	}
	return *p, nil
}

// SellerInventory returns copies of every product a seller stocks.
func (m *Market) SellerInventory(sellerID string) []model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Product, 0, len(m.products[sellerID]))
	for _, p := range m.products[sellerID] {
		out = append(out, *p)
	}
	return out
}

// SetPrice updates a product's listed price.
func (m *Market) SetPrice(sellerID, productID string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[sellerID][productID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrProductNotFound, sellerID, productID)
	}
	p.Price = price
	return nil
}

// expireStale walks active reservations and expires the ones past deadline,
// returning their held stock to availability. There is no background timer;
// expiry happens lazily on the operations that care. Callers hold the lock.
func (m *Market) expireStale() {
	now := m.now()
	for _, r := range m.reservations {
		if r.Status == model.ReservationActive && now.After(r.ExpiresAt) {
			r.Status = model.ReservationExpired
			metrics.ReservationsTotal.WithLabelValues(model.ReservationExpired).Inc()
			slog.Debug("reservation expired",
				"reservation", r.ReservationID, "product", r.ProductID)
		}
	}
}

// availableStock is actual stock minus active holds. Callers hold the lock.
func (m *Market) availableStock(sellerID, productID string) decimal.Decimal {
	p, ok := m.products[sellerID][productID]
	if !ok {
		return decimal.Zero
	}
	avail := p.Amount
	for _, r := range m.reservations {
		if r.Status == model.ReservationActive && r.SellerID == sellerID && r.ProductID == productID {
			avail = avail.Sub(r.Quantity)
		}
	}
	return avail
}

// AvailableStock reports stock not covered by active holds.
func (m *Market) AvailableStock(sellerID, productID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()
	return m.availableStock(sellerID, productID)
}

// Reserve places a hold on seller stock for the buyer. A request that cannot
// be covered fails in full, never partially, and is recorded as unmet demand
// for the month.
func (m *Market) Reserve(month int, buyerID, sellerID, productID string, qty decimal.Decimal) (*model.InventoryReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()

	if !qty.IsPositive() {
		return nil, fmt.Errorf("inventory: quantity must be positive, got %s", qty)
	}
	if _, ok := m.products[sellerID][productID]; !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrProductNotFound, sellerID, productID)
	}

	avail := m.availableStock(sellerID, productID)
	if avail.LessThan(qty) {
		m.recordUnmetDemand(month, sellerID, productID, qty, qty.Sub(avail))
		return nil, fmt.Errorf("%w: %s/%s has %s available, requested %s",
			ErrInsufficientStock, sellerID, productID, avail, qty)
	}

	now := m.now()
	r := &model.InventoryReservation{
		ReservationID: uuid.New().String(),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ProductID:     productID,
		Quantity:      qty,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.reservationTTL),
		Status:        model.ReservationActive,
	}
	m.reservations[r.ReservationID] = r
	return r, nil
}

// recordUnmetDemand merges one failed attempt into the month's counters.
// Callers hold the lock.
func (m *Market) recordUnmetDemand(month int, sellerID, productID string, requested, short decimal.Decimal) {
	byKey, ok := m.unmetDemand[month]
	if !ok {
		byKey = make(map[string]*model.UnmetDemand)
		m.unmetDemand[month] = byKey
	}
	key := sellerID + "/" + productID
	u, ok := byKey[key]
	if !ok {
		u = &model.UnmetDemand{}
		byKey[key] = u
	}
	u.Attempts++
	u.QuantityRequested = u.QuantityRequested.Add(requested)
	u.QuantityShort = u.QuantityShort.Add(short)
	metrics.UnmetDemandTotal.Inc()
}

// UnmetDemand returns a copy of the month's unmet demand keyed
// "seller/product".
func (m *Market) UnmetDemand(month int) map[string]model.UnmetDemand {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]model.UnmetDemand, len(m.unmetDemand[month]))
	for k, u := range m.unmetDemand[month] {
		out[k] = *u
	}
	return out
}

// Reservation returns a copy of one reservation.
func (m *Market) Reservation(id string) (model.InventoryReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()

	r, ok := m.reservations[id]
	if !ok {
		return model.InventoryReservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	return *r, nil
}

// Validate checks that a reservation can still be settled against without
// changing its state. Payment happens between Validate and Confirm.
func (m *Market) Validate(id string) (model.InventoryReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()

	r, ok := m.reservations[id]
	if !ok {
		return model.InventoryReservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	switch r.Status {
	case model.ReservationActive:
		return *r, nil
	case model.ReservationExpired:
		return model.InventoryReservation{}, fmt.Errorf("%w: %s", ErrReservationExpired, id)
	default:
		return model.InventoryReservation{}, fmt.Errorf("%w: %s is %s", ErrReservationNotActive, id, r.Status)
	}
}

// Confirm settles an active reservation: held stock leaves the seller for
// good and the sale is recorded. Terminal states reject.
func (m *Market) Confirm(month int, id string, revenue decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()

	r, ok := m.reservations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	if r.Status == model.ReservationExpired {
		return fmt.Errorf("%w: %s", ErrReservationExpired, id)
	}
	if r.Status != model.ReservationActive {
		return fmt.Errorf("%w: %s is %s", ErrReservationNotActive, id, r.Status)
	}

	p, ok := m.products[r.SellerID][r.ProductID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrProductNotFound, r.SellerID, r.ProductID)
	}
	p.Amount = p.Amount.Sub(r.Quantity)
	r.Status = model.ReservationConfirmed
	metrics.ReservationsTotal.WithLabelValues(model.ReservationConfirmed).Inc()

	m.sales = append(m.sales, SaleRecord{
		SellerID:  r.SellerID,
		ProductID: r.ProductID,
		BuyerID:   r.BuyerID,
		Quantity:  r.Quantity,
		Revenue:   revenue,
		Reserved:  true,
		Month:     month,
	})
	return nil
}

// Release cancels an active reservation and returns its hold to
// availability.
func (m *Market) Release(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	if r.Status != model.ReservationActive {
		return fmt.Errorf("%w: %s is %s", ErrReservationNotActive, id, r.Status)
	}
	r.Status = model.ReservationReleased
	metrics.ReservationsTotal.WithLabelValues(model.ReservationReleased).Inc()
	return nil
}

// DirectSell moves stock without a prior reservation. This is the legacy
// path for callers that pay first and take goods second; between those two
// steps another buyer can drain the stock, so new callers should reserve.
func (m *Market) DirectSell(month int, buyerID, sellerID, productID string, qty, revenue decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireStale()

	if _, ok := m.products[sellerID][productID]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrProductNotFound, sellerID, productID)
	}
	avail := m.availableStock(sellerID, productID)
	if avail.LessThan(qty) {
		m.recordUnmetDemand(month, sellerID, productID, qty, qty.Sub(avail))
		return fmt.Errorf("%w: %s/%s has %s available, requested %s",
			ErrInsufficientStock, sellerID, productID, avail, qty)
	}
	m.products[sellerID][productID].Amount = m.products[sellerID][productID].Amount.Sub(qty)

	m.sales = append(m.sales, SaleRecord{
		SellerID:  sellerID,
		ProductID: productID,
		BuyerID:   buyerID,
		Quantity:  qty,
		Revenue:   revenue,
		Reserved:  false,
		Month:     month,
	})
	return nil
}
