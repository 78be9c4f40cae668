// Command server starts the transaction risk scoring API.
//
// Startup loads the historical transaction snapshot and the trained
// classifier artifact; the process refuses to start if either is missing or
// unparseable, or if the artifact's feature schema does not match the
// serving schema. Both are shared read-only across all requests.
//
// Configuration comes from defaults, an optional ./config.yaml, and
// RISK_-prefixed environment variables (see internal/config).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aegis/risk-api/internal/api"
	"aegis/risk-api/internal/config"
	"aegis/risk-api/internal/explain"
	"aegis/risk-api/internal/features"
	"aegis/risk-api/internal/ledger"
	"aegis/risk-api/internal/model"
	"aegis/risk-api/internal/policy"
)

func main() {
	// Structured logging before anything else so startup failures are visible.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// ── Load startup inputs (both fatal if absent or malformed) ───────────────
	l, err := ledger.Load(cfg.SnapshotPath)
	if err != nil {
		slog.Error("failed to load transaction snapshot", "path", cfg.SnapshotPath, "error", err)
		os.Exit(1)
	}

	forest, err := model.Load(cfg.ModelPath)
	if err != nil {
		slog.Error("failed to load classifier artifact", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}

	slog.Info("startup inputs loaded",
		"transactions", l.Len(),
		"users", len(l.Users()),
		"trees", len(forest.Trees),
	)

	// ── Wire dependencies ─────────────────────────────────────────────────────
	deriver := features.NewDeriver()
	deriver.RareLocationFreq = cfg.Policy.RareLocationFreq

	pol := policyFromConfig(cfg.Policy)

	gateway := explain.New(explain.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Model:   cfg.Gateway.Model,
		Timeout: cfg.Gateway.Timeout,
	}, cfg.KnowledgePath)

	handler := api.NewHandler(l, deriver, forest, pol, gateway)
	router := api.NewRouter(handler)

	// ── Start HTTP server ─────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

func policyFromConfig(pc config.PolicyConfig) policy.Policy {
	p := policy.Default()
	p.HighThreshold = pc.HighThreshold
	p.MediumThreshold = pc.MediumThreshold
	p.NewDeviceBoost = pc.NewDeviceBoost
	p.NewLocationBoost = pc.NewLocationBoost
	p.ZScoreLimit = pc.ZScoreLimit
	p.RapidWindowSecs = pc.RapidWindowSecs
	p.OddHourBefore = pc.OddHourBefore
	return p
}
