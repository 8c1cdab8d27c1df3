package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aule-agent/internal/adapters/duckdb"
	"github.com/manthysbr/aule-agent/internal/adapters/inventory"
	"github.com/manthysbr/aule-agent/internal/adapters/mqtt"
	"github.com/manthysbr/aule-agent/internal/adapters/providers"
	appconfig "github.com/manthysbr/aule-agent/internal/config"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
	"github.com/manthysbr/aule-agent/internal/core/services"
	"github.com/manthysbr/aule-agent/pkg/kernel"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, path, err := appconfig.Resolve(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("starting aule agent", "config", path, "settings", appconfig.Masked(cfg))

	if err := run(logger, cfg); err != nil {
		logger.Error("agent stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg *domain.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := duckdb.NewRepository(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	llm, err := providers.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to init llm provider: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	var alerts ports.AlertPublisher = mqtt.NewNoopAlertPublisher(logger)
	if cfg.MQTT.Broker != "" {
		publisher := mqtt.NewAlertPublisher(cfg.MQTT, logger)
		alerts = publisher
		g.Go(func() error {
			return publisher.Run(gCtx)
		})
	}

	var inventoryClient ports.InventoryClient
	if cfg.Inventory.BaseURL != "" {
		inventoryClient = inventory.NewClient(cfg.Inventory.BaseURL, cfg.Inventory.Token, cfg.Inventory.Timeout)
	} else {
		logger.Warn("inventory backend not configured, inventory_lookup disabled")
	}

	eventBus := services.NewEventBus(logger)
	sessions := services.NewSessionStore(repo, 0)
	results := services.NewResultCache(0)

	registry, err := domain.NewRegistry(services.NewDefaultFunctions(services.FunctionDeps{
		Inventory: inventoryClient,
		Knowledge: repo,
		Alerts:    alerts,
		Sessions:  sessions,
		Events:    eventBus,
		Results:   results,
	})...)
	if err != nil {
		return fmt.Errorf("failed to build action registry: %w", err)
	}
	logger.Info("actions registered", "actions", registry.Names())

	agentCfg := cfg.Agent
	repairer := services.NewJSONRepairer(logger, llm, agentCfg.CallTimeout)
	extractor := services.NewActionExtractor(logger, registry, llm, repairer, agentCfg.CallTimeout)
	dispatcher := services.NewDispatcher(logger, registry, results)
	tracer := services.NewTraceCollector(eventBus, 0)
	agent := services.NewReasoningAgent(logger, llm, extractor, dispatcher, sessions, agentCfg).WithTracer(tracer)

	apiServer := kernel.NewServer(logger, agent, dispatcher, sessions, eventBus, repo, tracer)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Listen.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Listen.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
