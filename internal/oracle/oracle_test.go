package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

func TestJobChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decide/applications" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"apply_job_ids":["job_1","job_3"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	ids, err := c.JobChoices(context.Background(), 1,
		model.WorkerProfile{HouseholdID: "hh_1", LHType: "head"}, nil)
	if err != nil {
		t.Fatalf("JobChoices: %v", err)
	}
	if len(ids) != 2 || ids[0] != "job_1" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestResponsesAreCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"purchases":[{"seller_id":"farm_1","product_id":"grain","quantity":"2"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		plan, err := c.PurchasePlan(context.Background(), 1, "hh_1", decimal.NewFromInt(100), nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(plan) != 1 || !plan[0].Quantity.Equal(decimal.NewFromInt(2)) {
			t.Fatalf("plan = %v", plan)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	_, err := c.AcceptOffer(context.Background(), 1, "hh_1/head", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
