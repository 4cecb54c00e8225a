package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.GovernmentID != "gov_main" {
		t.Errorf("government_id = %q", cfg.GovernmentID)
	}
	if cfg.ReservationTTL != 5*time.Minute {
		t.Errorf("reservation_ttl = %v", cfg.ReservationTTL)
	}
	if cfg.VATRate != 0.08 {
		t.Errorf("vat_rate = %v", cfg.VATRate)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ECONOMY_GOVERNMENT_ID", "gov_test")
	t.Setenv("ECONOMY_VAT_RATE", "0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GovernmentID != "gov_test" {
		t.Errorf("government_id = %q, want gov_test", cfg.GovernmentID)
	}
	if cfg.VATRate != 0.2 {
		t.Errorf("vat_rate = %v, want 0.2", cfg.VATRate)
	}
}

func TestLoadRejectsBadRates(t *testing.T) {
	t.Setenv("ECONOMY_VAT_RATE", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("vat_rate 1.5 accepted")
	}
}
