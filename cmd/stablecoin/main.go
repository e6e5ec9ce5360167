// Package main is the entry point for the stablecoin engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/fd1az/stablecoin-engine/business/auction"
	"github.com/fd1az/stablecoin-engine/business/funding"
	"github.com/fd1az/stablecoin-engine/business/ledger"
	"github.com/fd1az/stablecoin-engine/business/oracle"
	"github.com/fd1az/stablecoin-engine/business/position"
	positionDI "github.com/fd1az/stablecoin-engine/business/position/di"
	"github.com/fd1az/stablecoin-engine/business/risk"
	"github.com/fd1az/stablecoin-engine/business/workflow"
	workflowDI "github.com/fd1az/stablecoin-engine/business/workflow/di"
	"github.com/fd1az/stablecoin-engine/internal/apm"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/health"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/metrics"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stablecoin-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	log.Info(ctx, "starting stablecoin engine",
		"version", version,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		tp, err := apm.NewTraceProvider(ctx, log, apm.Options{
			Provider:    apm.ParseProvider(cfg.Telemetry.TraceProvider),
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer tp.Stop()
		log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider)
	}

	metricOpts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "" {
		metricOpts = append(metricOpts, metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.OtelCollector,
			Endpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure: true,
		}))
	}
	mp, err := metrics.NewMetricProvider(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer mp.Shutdown(context.Background())

	healthServer := health.NewServer(cfg.Health.Port, version, log)

	mono, err := monolith.New(ctx, cfg, log, healthServer)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&ledger.Module{},
		&oracle.Module{},
		&risk.Module{},
		&auction.Module{},
		&position.Module{},
		&funding.Module{},
		&workflow.Module{}, // Depends on every module above
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	mountInspectors(healthServer, mono)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}

	sweeper := workflowDI.GetSweeper(mono.Services())
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	sweeper.Stop()
	workflowDI.GetPool(mono.Services()).Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "health server shutdown failed", "error", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.Log.File == "" {
		return logger.New(os.Stderr, level, cfg.App.Name, nil)
	}
	return logger.NewRotating(logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}, level, cfg.App.Name, true)
}

// mountInspectors exposes read-only views of positions and their history.
func mountInspectors(hs *health.Server, mono monolith.Monolith) {
	positions := positionDI.GetService(mono.Services())

	hs.Mount(http.MethodGet, "/positions/{id}", func(w http.ResponseWriter, r *http.Request) {
		st, a, err := positions.Assess(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"position": st,
			"health":   a.Health,
			"ratio":    a.Ratio,
		})
	})

	hs.Mount(http.MethodGet, "/positions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := positions.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]map[string]any, len(events))
		for i, e := range events {
			out[i] = map[string]any{"type": e.EventType(), "at": e.OccurredAt(), "event": e}
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperror.GetCode(err) {
	case apperror.CodeNotFound, apperror.CodePositionNotFound:
		status = http.StatusNotFound
	case apperror.CodeValidationError, apperror.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"code": string(apperror.GetCode(err)), "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
