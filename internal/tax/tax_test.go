package tax

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func twoBracketEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(model.TaxPolicy{
		IncomeBrackets: []model.TaxBracket{
			{Cutoff: d(0), Rate: d(0.10)},
			{Cutoff: d(10000), Rate: d(0.15)},
		},
		VATRate:          d(0.08),
		CorporateTaxRate: d(0.21),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func TestNewEngine_EmptyBrackets(t *testing.T) {
	_, err := NewEngine(model.TaxPolicy{VATRate: d(0.08)})
	if err == nil {
		t.Fatal("expected error for empty bracket table")
	}
}

func TestNewEngine_UnsortedBrackets(t *testing.T) {
	_, err := NewEngine(model.TaxPolicy{
		IncomeBrackets: []model.TaxBracket{
			{Cutoff: d(10000), Rate: d(0.15)},
			{Cutoff: d(0), Rate: d(0.10)},
		},
	})
	if err == nil {
		t.Fatal("expected error for unsorted brackets")
	}
}

func TestNewEngine_RateOutOfRange(t *testing.T) {
	_, err := NewEngine(model.TaxPolicy{
		IncomeBrackets: []model.TaxBracket{{Cutoff: d(0), Rate: d(1.0)}},
	})
	if err == nil {
		t.Fatal("expected error for rate >= 1")
	}
}

func TestProgressiveIncomeTax_WorkedExample(t *testing.T) {
	// brackets [(0,0.10),(10000,0.15)], gross 15000
	// tax = 10000*0.10 + 5000*0.15 = 1750, net = 13250
	e := twoBracketEngine(t)
	tax := e.ProgressiveIncomeTax(d(15000))
	if !tax.Equal(d(1750)) {
		t.Errorf("expected tax 1750, got %s", tax)
	}
	net, withheld := e.NetWage(d(15000))
	if !net.Equal(d(13250)) {
		t.Errorf("expected net 13250, got %s", net)
	}
	if !withheld.Equal(d(1750)) {
		t.Errorf("expected withheld 1750, got %s", withheld)
	}
}

func TestProgressiveIncomeTax_DefaultPolicy(t *testing.T) {
	e, err := NewEngine(model.DefaultTaxPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 50000 = 10000*0.10 + 30000*0.15 + 10000*0.22 = 1000 + 4500 + 2200
	tax := e.ProgressiveIncomeTax(d(50000))
	if !tax.Equal(d(7700)) {
		t.Errorf("expected tax 7700, got %s", tax)
	}
}

func TestProgressiveIncomeTax_ZeroAndNegative(t *testing.T) {
	e := twoBracketEngine(t)
	if tax := e.ProgressiveIncomeTax(d(0)); !tax.IsZero() {
		t.Errorf("expected zero tax on zero income, got %s", tax)
	}
	if tax := e.ProgressiveIncomeTax(d(-100)); !tax.IsZero() {
		t.Errorf("expected zero tax on negative income, got %s", tax)
	}
}

func TestProgressiveIncomeTax_Monotonic(t *testing.T) {
	e, _ := NewEngine(model.DefaultTaxPolicy())
	prev := decimal.Zero
	for _, g := range []float64{0, 500, 9999, 10000, 10001, 39999, 40000, 85000, 160000, 200000, 500000} {
		gross := d(g)
		tax := e.ProgressiveIncomeTax(gross)
		if tax.LessThan(prev) {
			t.Errorf("tax not monotone at gross=%s: %s < %s", gross, tax, prev)
		}
		if gross.IsPositive() && tax.GreaterThanOrEqual(gross) {
			t.Errorf("tax should be < gross for finite rates: gross=%s tax=%s", gross, tax)
		}
		prev = tax
	}
}

func TestVATSplit(t *testing.T) {
	e := twoBracketEngine(t)
	total, vat := e.VATSplit(d(100))
	if !total.Equal(d(108)) {
		t.Errorf("expected total 108, got %s", total)
	}
	if !vat.Equal(d(8)) {
		t.Errorf("expected vat 8, got %s", vat)
	}
}

func TestCorporateTax(t *testing.T) {
	e := twoBracketEngine(t)

	tests := []struct {
		income, expenses, want float64
	}{
		{1000, 0, 210},
		{1000, 400, 126},
		{1000, 1000, 0},
		{500, 1000, 0}, // loss, no tax
	}
	for _, tt := range tests {
		got := e.CorporateTax(d(tt.income), d(tt.expenses))
		if !got.Equal(d(tt.want)) {
			t.Errorf("CorporateTax(%v,%v) = %s, want %v", tt.income, tt.expenses, got, tt.want)
		}
	}
}
