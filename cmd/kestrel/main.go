// Kestrel - Pricing quotes that deploy in 60 seconds.
// Copyright (c) 2025 openpricing
// Licensed under the Apache License 2.0

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

	"github.com/openpricing/kestrel/internal/api"
	"github.com/openpricing/kestrel/internal/bus"
	"github.com/openpricing/kestrel/internal/cache"
	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/pricing"
	"github.com/openpricing/kestrel/internal/quote"
	"github.com/openpricing/kestrel/internal/repository"
	"github.com/openpricing/kestrel/internal/submit"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Pricing Engine
	engine := pricing.NewEngine()

	// Load catalogs from database (no hardcoded defaults - configure via API)
	loadCatalogsFromDatabase(ctx, repo, engine)
	slog.Info("pricing engine initialized",
		"rules_count", engine.RulesCount(),
		"services_count", engine.EndpointsCount(),
	)

	// Initialize Quote Composer
	composer := quote.NewComposer(engine)
	slog.Info("quote composer initialized", "engine_version", quote.EngineVersion)

	// Initialize submission worker
	var submitWorker *submit.Worker
	if cfg.Submission.Enabled || os.Getenv("KESTREL_SUBMIT_WORKER") == "true" {
		if url := os.Getenv("KESTREL_WEBHOOK_URL"); url != "" {
			cfg.Submission.WebhookURL = url
			cfg.Submission.Enabled = true
		}

		submitWorker = submit.NewWorker(busImpl, cfg.Submission)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		if err := submitWorker.Start(submit.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start submission worker", "error", err)
		} else {
			slog.Info("submission worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, composer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop submission worker first
	if submitWorker != nil {
		if err := submitWorker.Stop(); err != nil {
			slog.Error("failed to stop submission worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadCatalogsFromDatabase loads pricing rules and service endpoints from the
// database into the engine. Catalogs are configured via the API - no
// hardcoded defaults. A missing catalog is not fatal: the server starts
// empty and catalogs can be added then hot-reloaded.
func loadCatalogsFromDatabase(ctx context.Context, repo domain.Repository, engine *pricing.Engine) {
	dbRules, err := repo.ListPricingRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list pricing rules from database", "error", err)
	} else if len(dbRules) > 0 {
		slog.Info("loading pricing rules from database", "count", len(dbRules))
		engine.LoadRules(dbRules)
	} else {
		slog.Info("no pricing rules in database - configure via POST /rules API")
	}

	dbEndpoints, err := repo.ListServiceEndpoints(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list service endpoints from database", "error", err)
	} else if len(dbEndpoints) > 0 {
		slog.Info("loading service endpoints from database", "count", len(dbEndpoints))
		engine.LoadEndpoints(dbEndpoints)
	} else {
		slog.Info("no service endpoints in database - configure via POST /services API")
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║     Pricing & Quote Engine                ║")
	fmt.Println("  ║      Every price, one pass.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /quote             - Compute a quote from answers")
	fmt.Println("    GET  /quotes/{id}       - Get quote by ID")
	fmt.Println("    GET  /rules             - List pricing rules")
	fmt.Println("    POST /rules             - Create a pricing rule")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /services          - List service endpoints")
	fmt.Println("    POST /services          - Create a service endpoint")
	fmt.Println("    PUT  /services/{id}     - Update a service endpoint")
	fmt.Println("    DELETE /services/{id}   - Delete a service endpoint")
	fmt.Println("    POST /services/reload   - Hot-reload services")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
