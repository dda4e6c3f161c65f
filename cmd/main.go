// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vaultstage/rights-engine/internal/config"
	"github.com/vaultstage/rights-engine/internal/database"
	"github.com/vaultstage/rights-engine/internal/handler"
	"github.com/vaultstage/rights-engine/internal/notify"
	"github.com/vaultstage/rights-engine/internal/repository"
	"github.com/vaultstage/rights-engine/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ── 1. Connect to PostgreSQL and apply migrations ────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("✓ Connected to PostgreSQL")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	expRepo := repository.NewExperienceRepository(pool)
	unlockRepo := repository.NewUnlockRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)
	disputeRepo := repository.NewDisputeRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	dispatcher := notify.LogDispatcher{}
	promos := service.NewPromoResolver(promoRepo)
	experiences := service.NewExperienceService(expRepo, expRepo)
	unlocks := service.NewUnlockService(expRepo, unlockRepo, promos, dispatcher)
	refunds := service.NewRefundService(expRepo, unlockRepo, dispatcher, cfg.AdminIDs)
	approvals := service.NewApprovalWorkflow(approvalRepo, expRepo)
	disputes := service.NewDisputeWorkflow(disputeRepo, expRepo)

	api := handler.New(experiences, unlocks, refunds, promos, approvals, disputes, auditRepo)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS for browser clients
	api.Routes(r)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("✓ Server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
