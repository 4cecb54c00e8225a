package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/agentsim/economy-engine/internal/config"
	"github.com/agentsim/economy-engine/internal/economy"
	"github.com/agentsim/economy-engine/internal/inventory"
	"github.com/agentsim/economy-engine/internal/labor"
	"github.com/agentsim/economy-engine/internal/ledger"
	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
	"github.com/agentsim/economy-engine/internal/oracle"
	"github.com/agentsim/economy-engine/internal/tax"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	// --- Tax engine ---
	policy := model.DefaultTaxPolicy()
	policy.VATRate = decimal.NewFromFloat(cfg.VATRate)
	policy.CorporateTaxRate = decimal.NewFromFloat(cfg.CorporateTaxRate)
	taxes, err := tax.NewEngine(policy)
	if err != nil {
		slog.Error("tax policy invalid", "err", err)
		os.Exit(1)
	}

	// --- Core components ---
	core := ledger.NewCore()
	core.InitLedger(cfg.GovernmentID, model.AgentGovernment, decimal.Zero)

	goods := inventory.NewMarket(cfg.ReservationTTL)
	jobs := labor.NewMarket()
	jobs.SetLossThreshold(cfg.LossThreshold)

	// --- WebSocket hub ---
	wsHub := economy.NewWSHub()

	// --- Economy service ---
	svc := economy.NewService(core, goods, jobs, taxes, economy.Params{
		GovernmentID:           cfg.GovernmentID,
		OfferPolicy:            cfg.OfferPolicy,
		AvgWeeklyHours:         cfg.AvgWeeklyHours,
		PeriodsPerMonth:        cfg.PeriodsPerMonth,
		RedistributionStrategy: cfg.RedistributionStrategy,
	}, wsHub)
	if cfg.OracleURL != "" {
		svc.SetOracle(oracle.NewClient(cfg.OracleURL, cfg.OracleCacheTTL))
		slog.Info("decision oracle configured", "url", cfg.OracleURL)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(rateLimit(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"economy-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time transaction updates.
		r.Get("/ws", wsHub.HandleWS)
		r.Mount("/", svc.Routes())
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("economy-engine listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down economy-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("economy-engine stopped")
}

// rateLimit sheds load once the shared token bucket empties. Simulation
// drivers poll aggressively; 429 tells them to back off rather than queue.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
